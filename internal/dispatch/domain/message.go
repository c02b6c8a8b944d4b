package domain

import (
	"fmt"
	"time"
)

// WorkflowState 消息生命周期状态
type WorkflowState string

const (
	MessageStateBuilt      WorkflowState = "built"       // 已构建，未入库
	MessageStateStaged     WorkflowState = "staged"      // 已入库，等待异步投递
	MessageStateDispatched WorkflowState = "dispatched"  // 投递方确认送出
	MessageStateCancelled  WorkflowState = "cancelled"   // 被更新的同类消息取代
	MessageStateSendFailed WorkflowState = "send_failed" // 投递失败
)

// Message 一次具体投递单元。被更新的同类消息取代时置为 cancelled，
// 而不是原地修改。
type Message struct {
	ID               uint64
	NotificationID   uint64
	NotificationName string
	UserID           uint64
	ChannelID        uint64
	To               string

	// ToEmail 面向邮箱类投递（email/sms），参与限流计数
	ToEmail bool

	Subject string
	Body    string
	URL     string

	// Frequency 来自裁决该消息的策略
	Frequency     Frequency
	WorkflowState WorkflowState

	AssetKey      string
	ContextID     uint64
	ContextType   string
	CourseID      uint64
	RootAccountID uint64

	DelayFor time.Duration
	Data     map[string]any

	CreatedAt time.Time

	// User / Channel 运行期反向引用，不落库
	User    *User
	Channel *CommunicationChannel
}

// Stage 进入待投递状态。仅允许 built → staged
func (m *Message) Stage() error {
	if m.WorkflowState != MessageStateBuilt {
		return fmt.Errorf("message %d: cannot stage from state %q", m.ID, m.WorkflowState)
	}
	m.WorkflowState = MessageStateStaged
	return nil
}

// MarkDispatched 投递方确认送出。仅允许 staged → dispatched
func (m *Message) MarkDispatched() error {
	if m.WorkflowState != MessageStateStaged {
		return fmt.Errorf("message %d: cannot dispatch from state %q", m.ID, m.WorkflowState)
	}
	m.WorkflowState = MessageStateDispatched
	return nil
}

// InferDefaults 为绕过 staging 的站内消息补全默认值
func (m *Message) InferDefaults() {
	if m.WorkflowState == "" {
		m.WorkflowState = MessageStateBuilt
	}
	if m.Subject == "" {
		m.Subject = m.NotificationName
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
}

// DelayedMessage 摘要条目：一次事件的延后汇总，由范围外的周期任务消费
type DelayedMessage struct {
	ID             uint64
	PolicyID       uint64
	NotificationID uint64
	ChannelID      uint64
	UserID         uint64
	Frequency      Frequency
	RootAccountID  uint64
	NameOfTopic    string
	Link           string
	Summary        string
	ContextID      uint64
	ContextType    string
	WorkflowState  string
}
