package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// DeliveryService 异步投递侧：消费分发主题的投递指令，调用终端发送器，
// 并回写消息终态。dispatched 状态的唯一归属方。
type DeliveryService struct {
	messages domain.MessageRepository
	senders  map[domain.PathType]domain.Sender
}

// NewDeliveryService 构造函数
func NewDeliveryService(messages domain.MessageRepository, senders map[domain.PathType]domain.Sender) *DeliveryService {
	return &DeliveryService{
		messages: messages,
		senders:  senders,
	}
}

// Deliver 处理一条投递指令。找不到对应发送器的渠道类型（如 push 由
// 独立网关处理）只记录日志，不算失败。
func (s *DeliveryService) Deliver(ctx context.Context, cmd DeliveryCommand) error {
	sender, ok := s.senders[domain.PathType(cmd.PathType)]
	if !ok {
		logging.Info(ctx, "no sender for path type, skipping",
			"message_id", cmd.MessageID, "path_type", cmd.PathType)
		return nil
	}

	if err := sender.Send(ctx, cmd.To, cmd.Subject, cmd.Body); err != nil {
		logging.Error(ctx, "message delivery failed",
			"message_id", cmd.MessageID, "path_type", cmd.PathType, "error", err)
		if markErr := s.messages.MarkSendFailed(ctx, []uint64{cmd.MessageID}, err.Error()); markErr != nil {
			return fmt.Errorf("mark send failed: %w", markErr)
		}
		return nil
	}

	if err := s.messages.MarkDispatched(ctx, []uint64{cmd.MessageID}); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}
