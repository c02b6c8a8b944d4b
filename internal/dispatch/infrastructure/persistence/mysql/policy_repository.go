package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// policyRepositoryImpl 是 domain.PolicyRepository 接口的 GORM 实现。
type policyRepositoryImpl struct {
	db *gorm.DB
}

// NewPolicyRepository 创建策略仓储实例
func NewPolicyRepository(db *gorm.DB) domain.PolicyRepository {
	return &policyRepositoryImpl{db: db}
}

// FindOrCreateDailyFallback 幂等获取渠道上 (daily, 无通知类型) 的兜底
// 策略。并发创建撞 (channel, notification) 唯一约束时重读一次。
func (r *policyRepositoryImpl) FindOrCreateDailyFallback(ctx context.Context, channelID uint64) (*domain.NotificationPolicy, error) {
	find := func() (*PolicyPO, error) {
		var model PolicyPO
		err := r.db.WithContext(ctx).
			Where("communication_channel_id = ? AND notification_id IS NULL AND frequency = ?",
				channelID, string(domain.FrequencyDaily)).
			First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &model, nil
	}

	model, err := find()
	if err != nil {
		logging.Error(ctx, "policy_repository.find_daily_fallback failed", "channel_id", channelID, "error", err)
		return nil, fmt.Errorf("failed to find fallback policy: %w", err)
	}
	if model == nil {
		model = &PolicyPO{
			ChannelID: channelID,
			Frequency: string(domain.FrequencyDaily),
		}
		err = r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model).Error
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			logging.Error(ctx, "policy_repository.create_daily_fallback failed", "channel_id", channelID, "error", err)
			return nil, fmt.Errorf("failed to create fallback policy: %w", err)
		}
		if model.ID == 0 {
			// 另一并发请求已创建，重读拿到已存在的行
			if model, err = find(); err != nil || model == nil {
				logging.Error(ctx, "policy_repository.reread_daily_fallback failed", "channel_id", channelID, "error", err)
				return nil, fmt.Errorf("failed to reread fallback policy: %w", err)
			}
		}
	}

	return &domain.NotificationPolicy{
		ID:             model.ID,
		ChannelID:      model.ChannelID,
		NotificationID: model.NotificationID,
		Frequency:      domain.Frequency(model.Frequency),
	}, nil
}

// OverrideEnabledFor 该用户在指定上下文是否存在显式启用的覆盖记录
func (r *policyRepositoryImpl) OverrideEnabledFor(ctx context.Context, userID, contextID uint64, contextType string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&OverridePO{}).
		Where("user_id = ? AND context_id = ? AND context_type = ? AND workflow_state = ?",
			userID, contextID, contextType, domain.OverrideStateEnabled).
		Count(&count).Error
	if err != nil {
		logging.Error(ctx, "policy_repository.override_enabled_for failed",
			"user_id", userID, "context_id", contextID, "error", err)
		return false, fmt.Errorf("failed to query context override: %w", err)
	}
	return count > 0, nil
}
