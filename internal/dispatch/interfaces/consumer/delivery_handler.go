// Package consumer 投递主题的 Kafka 消费侧
package consumer

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wyfcoding/coursenotify/internal/dispatch/application"
	"github.com/wyfcoding/pkg/logging"
)

// DeliveryEventHandler 消费分发主题的投递指令，交给投递服务执行
type DeliveryEventHandler struct {
	delivery *application.DeliveryService
}

// NewDeliveryEventHandler 创建投递指令处理器
func NewDeliveryEventHandler(delivery *application.DeliveryService) *DeliveryEventHandler {
	return &DeliveryEventHandler{delivery: delivery}
}

// HandleDeliveryCommand 处理一条投递指令。指令格式损坏时丢弃并记录，
// 不阻塞消费位点。
func (h *DeliveryEventHandler) HandleDeliveryCommand(ctx context.Context, msg kafkago.Message) error {
	var cmd application.DeliveryCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		logging.Error(ctx, "dropping malformed delivery command",
			"topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}

	logging.Info(ctx, "Handling delivery command",
		"message_id", cmd.MessageID, "path_type", cmd.PathType)

	return h.delivery.Deliver(ctx, cmd)
}
