package mysql

import (
	"context"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
)

// streamItemRepositoryImpl 是 domain.StreamItemRepository 接口的 GORM 实现。
type streamItemRepositoryImpl struct {
	db *gorm.DB
}

// NewStreamItemRepository 创建信息流仓储实例
func NewStreamItemRepository(db *gorm.DB) domain.StreamItemRepository {
	return &streamItemRepositoryImpl{db: db}
}

// CreateFromMessage 把站内消息登记为用户信息流条目
func (r *streamItemRepositoryImpl) CreateFromMessage(ctx context.Context, msg *domain.Message) error {
	model := &StreamItemPO{
		UserID:         msg.UserID,
		MessageID:      msg.ID,
		NotificationID: msg.NotificationID,
		ContextID:      msg.ContextID,
		ContextType:    msg.ContextType,
		Title:          msg.Subject,
		URL:            msg.URL,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		logging.Error(ctx, "stream_repository.create_from_message failed", "user_id", msg.UserID, "error", err)
		return fmt.Errorf("failed to create stream item: %w", err)
	}
	return nil
}
