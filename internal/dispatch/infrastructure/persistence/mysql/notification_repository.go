package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
)

// notificationRepositoryImpl 是 domain.NotificationRepository 接口的 GORM 实现。
type notificationRepositoryImpl struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知目录仓储实例
func NewNotificationRepository(db *gorm.DB) domain.NotificationRepository {
	return &notificationRepositoryImpl{db: db}
}

// GetByName 按名称查找通知类型，不存在时返回 nil
func (r *notificationRepositoryImpl) GetByName(ctx context.Context, name string) (*domain.Notification, error) {
	var model NotificationPO
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logging.Error(ctx, "notification_repository.get_by_name failed", "name", name, "error", err)
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return toNotification(&model), nil
}
