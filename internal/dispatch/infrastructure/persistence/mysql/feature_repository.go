package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
)

// 功能开关上下文与状态
const (
	featureContextAccount = "Account"
	featureContextSite    = "SiteAdmin"
	featureStateOn        = "on"

	// SiteAdmin 开关是全站单行
	siteContextID = 0
)

// featureRepositoryImpl 是 domain.FeatureRepository 接口的 GORM 实现。
type featureRepositoryImpl struct {
	db *gorm.DB
}

// NewFeatureRepository 创建功能开关仓储实例
func NewFeatureRepository(db *gorm.DB) domain.FeatureRepository {
	return &featureRepositoryImpl{db: db}
}

func (r *featureRepositoryImpl) enabled(ctx context.Context, contextType string, contextID uint64, feature string) (bool, error) {
	var model FeatureFlagPO
	err := r.db.WithContext(ctx).
		Where("context_type = ? AND context_id = ? AND feature = ?", contextType, contextID, feature).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		logging.Error(ctx, "feature_repository.lookup failed", "feature", feature, "context_type", contextType, "error", err)
		return false, fmt.Errorf("failed to query feature flag: %w", err)
	}
	return model.State == featureStateOn, nil
}

// AccountEnabled 账户级开关
func (r *featureRepositoryImpl) AccountEnabled(ctx context.Context, accountID uint64, feature string) (bool, error) {
	return r.enabled(ctx, featureContextAccount, accountID, feature)
}

// SiteEnabled 全站开关
func (r *featureRepositoryImpl) SiteEnabled(ctx context.Context, feature string) (bool, error) {
	return r.enabled(ctx, featureContextSite, siteContextID, feature)
}
