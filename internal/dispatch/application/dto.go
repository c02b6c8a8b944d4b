package application

import (
	"time"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// DispatchCommand 一次分发请求
type DispatchCommand struct {
	// NotificationName 通知目录中的类型名称
	NotificationName string
	// Asset 事件主体描述
	Asset AssetPayload
	// RecipientIDs 收件人用户 ID 列表
	RecipientIDs []uint64
	// Data 合入消息的附加数据，至少包含 course_id 与 root_account_id
	Data map[string]any
}

// AssetPayload 资产描述
type AssetPayload struct {
	Key           string
	Title         string
	URL           string
	ContextID     uint64
	ContextType   string
	ContextLocale string
	RootAccountID uint64
}

// MessageDTO 消息视图
type MessageDTO struct {
	ID               uint64    `json:"id"`
	NotificationName string    `json:"notification_name"`
	UserID           uint64    `json:"user_id"`
	ChannelID        uint64    `json:"channel_id,omitempty"`
	To               string    `json:"to"`
	Subject          string    `json:"subject"`
	Frequency        string    `json:"frequency,omitempty"`
	WorkflowState    string    `json:"workflow_state"`
	CreatedAt        time.Time `json:"created_at"`
}

func toMessageDTO(m *domain.Message) MessageDTO {
	return MessageDTO{
		ID:               m.ID,
		NotificationName: m.NotificationName,
		UserID:           m.UserID,
		ChannelID:        m.ChannelID,
		To:               m.To,
		Subject:          m.Subject,
		Frequency:        string(m.Frequency),
		WorkflowState:    string(m.WorkflowState),
		CreatedAt:        m.CreatedAt,
	}
}

// DeliveryCommand 投递 worker 消费的单条投递指令
type DeliveryCommand struct {
	MessageID uint64 `json:"message_id"`
	To        string `json:"to"`
	PathType  string `json:"path_type"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	DelayFor  int64  `json:"delay_for_seconds,omitempty"`
}
