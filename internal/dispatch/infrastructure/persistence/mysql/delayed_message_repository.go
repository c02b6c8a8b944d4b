package mysql

import (
	"context"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
)

// delayedMessageRepositoryImpl 是 domain.DelayedMessageRepository 接口的 GORM 实现。
// 单集群部署下分片键随行落库，供摘要聚合任务按分片扫描。
type delayedMessageRepositoryImpl struct {
	db *gorm.DB
}

// NewDelayedMessageRepository 创建摘要条目仓储实例
func NewDelayedMessageRepository(db *gorm.DB) domain.DelayedMessageRepository {
	return &delayedMessageRepositoryImpl{db: db}
}

// Save 持久化单条摘要条目到收件人分片
func (r *delayedMessageRepositoryImpl) Save(ctx context.Context, shard string, dm *domain.DelayedMessage) error {
	model := toDelayedMessagePO(dm, shard)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		logging.Error(ctx, "delayed_message_repository.save failed",
			"user_id", dm.UserID, "shard", shard, "error", err)
		return fmt.Errorf("failed to save delayed message: %w", err)
	}
	dm.ID = model.ID
	return nil
}
