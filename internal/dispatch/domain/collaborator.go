package domain

import "context"

// RenderKind 渲染形态
type RenderKind string

const (
	RenderDefault RenderKind = ""        // 渠道投递正文
	RenderSummary RenderKind = "summary" // 摘要条目正文
)

// Renderer 渲染协作方：按给定语言填充消息的 subject/body/url。
// 语言显式传入，渲染过程不依赖任何环境态。
type Renderer interface {
	Render(ctx context.Context, msg *Message, kind RenderKind, locale string) error
}

// Dispatcher 异步投递协作方：整批交接 staged 消息，引擎不等待
// 投递确认，dispatched 终态由投递方负责。
type Dispatcher interface {
	BatchDispatch(ctx context.Context, msgs []*Message) error
}

// Sender 终端发送接口（邮件、短信），由投递 worker 消费
type Sender interface {
	Send(ctx context.Context, target, subject, content string) error
}

// EventPublisher 事件发布接口，事务内写 outbox
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
	PublishInTx(ctx context.Context, tx any, topic string, key string, event any) error
}
