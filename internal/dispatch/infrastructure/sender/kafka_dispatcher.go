// Package sender 投递侧适配器：批量交接走 Kafka，终端发送走邮件/短信
package sender

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
)

// TopicDispatch 投递指令主题，由投递 worker 消费
const TopicDispatch = "notification.dispatch"

// DeliveryCommand 发送到 Kafka 的统一投递指令格式，
// 与消费侧的指令结构按字段一一对应。
type DeliveryCommand struct {
	MessageID uint64 `json:"message_id"`
	To        string `json:"to"`
	PathType  string `json:"path_type"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	DelayFor  int64  `json:"delay_for_seconds,omitempty"`
}

// KafkaBatchDispatcher 将 staged 消息逐条转为投递指令发布到 Kafka。
// 引擎交接后即返回，终态由投递 worker 回写。
type KafkaBatchDispatcher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaBatchDispatcher 创建 Kafka 批量交接器
func NewKafkaBatchDispatcher(producer *kafka.Producer, topic string) domain.Dispatcher {
	if topic == "" {
		topic = TopicDispatch
	}
	return &KafkaBatchDispatcher{
		producer: producer,
		topic:    topic,
	}
}

// BatchDispatch 整批交接消息
func (d *KafkaBatchDispatcher) BatchDispatch(ctx context.Context, msgs []*domain.Message) error {
	for _, m := range msgs {
		pathType := domain.PathTypeEmail
		if m.Channel != nil {
			pathType = m.Channel.PathType
		}
		cmd := DeliveryCommand{
			MessageID: m.ID,
			To:        m.To,
			PathType:  string(pathType),
			Subject:   m.Subject,
			Body:      m.Body,
			DelayFor:  int64(m.DelayFor.Seconds()),
		}

		payload, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("failed to marshal delivery command: %w", err)
		}

		// 使用收件地址做 Key 保证同一接收者的时序性
		if err := d.producer.PublishToTopic(ctx, d.topic, []byte(m.To), payload); err != nil {
			return fmt.Errorf("failed to publish delivery command: %w", err)
		}
	}
	return nil
}
