package mysql

import (
	"context"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
)

// userRepositoryImpl 是 domain.UserRepository 接口的 GORM 实现。
type userRepositoryImpl struct {
	db *gorm.DB
}

// NewUserRepository 创建收件人仓储实例
func NewUserRepository(db *gorm.DB) domain.UserRepository {
	return &userRepositoryImpl{db: db}
}

// FindByIDs 批量加载用户，一次性预加载渠道及其策略与覆盖记录，
// 引擎主循环期间不再回查数据库。
func (r *userRepositoryImpl) FindByIDs(ctx context.Context, ids []uint64) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []*UserPO
	err := r.db.WithContext(ctx).
		Preload("Channels", func(db *gorm.DB) *gorm.DB {
			return db.Order("communication_channels.position asc, communication_channels.id asc")
		}).
		Preload("Channels.Policies").
		Preload("Channels.Overrides").
		Where("id IN ?", ids).
		Find(&models).Error
	if err != nil {
		logging.Error(ctx, "user_repository.find_by_ids failed", "count", len(ids), "error", err)
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	users := make([]*domain.User, len(models))
	for i, m := range models {
		users[i] = toUser(m)
	}
	return users, nil
}
