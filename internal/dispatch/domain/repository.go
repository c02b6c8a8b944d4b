package domain

import (
	"context"
	"time"
)

// UserRepository 收件人仓储
type UserRepository interface {
	// FindByIDs 批量加载用户，预加载渠道及其策略与覆盖记录
	FindByIDs(ctx context.Context, ids []uint64) ([]*User, error)
}

// CancelScope 重复消息取消的范围：同一 (通知, 资产, 名称)
// 投向本次收件人集合、落在尾窗内的未投递消息
type CancelScope struct {
	NotificationID   uint64
	NotificationName string
	AssetKey         string
	UserIDs          []uint64
	Window           time.Duration
}

// MessageRepository 消息仓储
type MessageRepository interface {
	// CountRecentEmailByUser 统计各用户在 since 之后收到的邮箱类消息数。
	// 允许走只读副本；计数是时间点快照，运行期间不刷新，后续的重复
	// 取消可能令其与现实少量偏离，这是被接受的软保证。
	CountRecentEmailByUser(ctx context.Context, userIDs []uint64, since time.Time) (map[uint64]int64, error)

	// DispatchStaged 原子地取消范围内的重复待投递消息，并持久化本批
	// staged 消息，两步处于同一存储事务
	DispatchStaged(ctx context.Context, scope CancelScope, msgs []*Message) error

	// SaveDashboard 保存站内消息（不经过 staging 事务）
	SaveDashboard(ctx context.Context, msg *Message) error

	ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*Message, int64, error)

	// MarkDispatched / MarkSendFailed 由异步投递方回写终态
	MarkDispatched(ctx context.Context, ids []uint64) error
	MarkSendFailed(ctx context.Context, ids []uint64, reason string) error
}

// PolicyRepository 策略仓储。渠道上的策略与覆盖随用户预加载，
// 这里只保留引擎需要的两个受控操作。
type PolicyRepository interface {
	// FindOrCreateDailyFallback 幂等地获取 (渠道, daily, 无通知类型)
	// 兜底策略；创建撞唯一约束时重读一次并视为已找到
	FindOrCreateDailyFallback(ctx context.Context, channelID uint64) (*NotificationPolicy, error)

	// OverrideEnabledFor 该用户在指定上下文是否存在显式启用的覆盖记录
	OverrideEnabledFor(ctx context.Context, userID, contextID uint64, contextType string) (bool, error)
}

// DelayedMessageRepository 摘要条目仓储。shard 是收件人数据的分区
// 路由键，由调用方显式传入。
type DelayedMessageRepository interface {
	Save(ctx context.Context, shard string, dm *DelayedMessage) error
}

// StreamItemRepository 站内信息流仓储
type StreamItemRepository interface {
	CreateFromMessage(ctx context.Context, msg *Message) error
}

// FeatureRepository 功能开关查询
type FeatureRepository interface {
	AccountEnabled(ctx context.Context, accountID uint64, feature string) (bool, error)
	SiteEnabled(ctx context.Context, feature string) (bool, error)
}

// NotificationRepository 通知目录仓储
type NotificationRepository interface {
	// GetByName 按名称查找通知类型，不存在时返回 nil
	GetByName(ctx context.Context, name string) (*Notification, error)
}
