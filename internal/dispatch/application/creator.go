package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

const (
	// throttleWindow 限流计数的尾窗
	throttleWindow = 24 * time.Hour
	// defaultPendingWindow 重复消息取消的默认尾窗
	defaultPendingWindow = 6 * time.Hour
)

// CreatorDeps 引擎依赖的仓储与协作方集合
type CreatorDeps struct {
	Users      domain.UserRepository
	Messages   domain.MessageRepository
	Policies   domain.PolicyRepository
	Delayed    domain.DelayedMessageRepository
	Streams    domain.StreamItemRepository
	Features   domain.FeatureRepository
	Renderer   domain.Renderer
	Dispatcher domain.Dispatcher
}

// CreatorOptions 引擎可调参数
type CreatorOptions struct {
	// PendingDuplicateWindow 重复取消尾窗，零值取 6 小时
	PendingDuplicateWindow time.Duration
}

// MessageCreator 针对单次通知事件的分发引擎：决定每个收件人经由哪些
// 渠道、以何种频率收到通知，并完成一次性的投递交接。一次实例对应
// 一次调用，内部缓存（限流计数、开关位）均为运行期快照。
type MessageCreator struct {
	notification *domain.Notification
	asset        domain.Asset
	recipients   []*recipient
	messageData  map[string]any

	// userCounts 运行起点一次性计算的限流计数，运行期间不刷新
	userCounts map[uint64]int64

	courseID      uint64
	rootAccountID uint64

	muteByCourseEnabled bool
	granularEnabled     bool

	// contextEnabled 按用户缓存课程静音门的判定结果
	contextEnabled map[uint64]bool

	pendingWindow time.Duration
	deps          CreatorDeps
}

// NewMessageCreator 构造一次分发运行。toList 可混合用户 ID、用户对象与
// 渠道对象；data 为合入消息的附加数据，其中 course_id 与 root_account_id
// 用于解析覆盖范围与课程静音开关。
func NewMessageCreator(ctx context.Context, n *domain.Notification, asset domain.Asset, toList []any, data map[string]any, deps CreatorDeps, opts CreatorOptions) (*MessageCreator, error) {
	recipients, err := resolveRecipients(ctx, deps.Users, toList)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	userIDs := make([]uint64, 0, len(recipients))
	for _, r := range recipients {
		userIDs = append(userIDs, r.user.ID)
	}

	counts, err := deps.Messages.CountRecentEmailByUser(ctx, userIDs, time.Now().Add(-throttleWindow))
	if err != nil {
		// 静默把用户当作未限流会带来消息量失控的风险
		return nil, fmt.Errorf("load recent message counts: %w", err)
	}

	c := &MessageCreator{
		notification:   n,
		asset:          asset,
		recipients:     recipients,
		messageData:    data,
		userCounts:     counts,
		courseID:       uintFromData(data, "course_id"),
		rootAccountID:  uintFromData(data, "root_account_id"),
		contextEnabled: make(map[uint64]bool),
		pendingWindow:  opts.PendingDuplicateWindow,
		deps:           deps,
	}
	if c.pendingWindow <= 0 {
		c.pendingWindow = defaultPendingWindow
	}

	if c.courseID != 0 && c.rootAccountID != 0 {
		if c.muteByCourseEnabled, err = deps.Features.AccountEnabled(ctx, c.rootAccountID, domain.FeatureMuteByCourse); err != nil {
			return nil, fmt.Errorf("load account feature flag: %w", err)
		}
		if c.granularEnabled, err = deps.Features.SiteEnabled(ctx, domain.FeatureGranularPreferences); err != nil {
			return nil, fmt.Errorf("load site feature flag: %w", err)
		}
	}

	return c, nil
}

// Create 执行分发：产出立即消息与站内消息（返回值），并持久化摘要条目。
// 摘要条目只落库，不在返回值中。
func (c *MessageCreator) Create(ctx context.Context) ([]*domain.Message, error) {
	var immediate []*domain.Message
	var dashboard []*domain.Message
	var delayed []*delayedEntry

	for _, rcpt := range c.recipients {
		user := rcpt.user

		// 资产可能对部分用户不适用（如按用户生效的截止日期）
		asset := domain.AppliedTo(c.asset, c.notification, user)
		if asset == nil {
			continue
		}

		// 该用户整个处理块共用一次解析出的语言
		locale := domain.InferLocale(user, asset.Context())

		for _, ch := range rcpt.channels {
			if c.notification.IsRegistration {
				msgs, err := c.buildImmediateFor(ctx, user, asset, locale, []*domain.CommunicationChannel{ch})
				if err != nil {
					return nil, err
				}
				immediate = append(immediate, msgs...)
			} else if c.notification.IsSummarizable {
				rp, err := c.delayedPolicyFor(ctx, user, ch)
				if err != nil {
					return nil, err
				}
				if rp != nil {
					entry, err := c.buildSummaryFor(ctx, user, asset, locale, rp)
					if err != nil {
						return nil, err
					}
					delayed = append(delayed, entry)
				}
			}
		}

		if !c.notification.IsRegistration {
			// 兜底检查必须在该用户所有渠道处理完之后
			if c.notification.IsSummarizable && noDailyIn(delayed) && c.tooManyMessagesFor(user) {
				entry, err := c.buildFallbackFor(ctx, user, asset, locale)
				if err != nil {
					return nil, err
				}
				if entry != nil {
					delayed = append(delayed, entry)
				}
			}

			if !user.PreRegistered {
				channels := rejectUnconfirmed(c.immediateChannelsFor(user))
				msgs, err := c.buildImmediateFor(ctx, user, asset, locale, channels)
				if err != nil {
					return nil, err
				}
				immediate = append(immediate, msgs...)

				if c.notification.IsDashboard && c.notification.ShowInFeed {
					msg, err := c.buildDashboardFor(ctx, user, asset, locale)
					if err != nil {
						return nil, err
					}
					dashboard = append(dashboard, msg)
				}
			}
		}
	}

	// 摘要条目逐条落库，在取消事务之外；失败对整次调用是致命的
	for _, entry := range delayed {
		if err := c.deps.Delayed.Save(ctx, entry.shard, entry.dm); err != nil {
			return nil, fmt.Errorf("save delayed message: %w", err)
		}
	}

	if err := c.dispatchDashboard(ctx, dashboard); err != nil {
		return nil, err
	}
	if err := c.dispatchImmediate(ctx, immediate); err != nil {
		return nil, err
	}

	return append(immediate, dashboard...), nil
}

// dispatchImmediate 取消重复 + staged 落库处于同一事务；提交后整批交给
// 异步投递方，本引擎不等待投递确认。
func (c *MessageCreator) dispatchImmediate(ctx context.Context, msgs []*domain.Message) error {
	for _, m := range msgs {
		if err := m.Stage(); err != nil {
			return err
		}
	}

	scope := domain.CancelScope{
		NotificationID:   c.notification.ID,
		NotificationName: c.notification.Name,
		AssetKey:         c.asset.AssetKey(),
		UserIDs:          c.userIDs(),
		Window:           c.pendingWindow,
	}
	if err := c.deps.Messages.DispatchStaged(ctx, scope, msgs); err != nil {
		return fmt.Errorf("dispatch staged messages: %w", err)
	}

	if len(msgs) == 0 {
		return nil
	}
	if err := c.deps.Dispatcher.BatchDispatch(ctx, msgs); err != nil {
		// 交接失败不回滚已提交的 staged 消息，由投递方的补偿扫描兜底
		logging.Error(ctx, "batch dispatch hand-off failed",
			"notification", c.notification.Name, "count", len(msgs), "error", err)
	}
	return nil
}

// dispatchDashboard 站内消息不经过 staging：补全默认值后直接产生信息流条目。
// 注意站内消息不在重复取消范围内（沿袭既有行为，见 DESIGN.md）。
func (c *MessageCreator) dispatchDashboard(ctx context.Context, msgs []*domain.Message) error {
	for _, m := range msgs {
		m.InferDefaults()
		if err := c.deps.Messages.SaveDashboard(ctx, m); err != nil {
			return fmt.Errorf("save dashboard message: %w", err)
		}
		if err := c.deps.Streams.CreateFromMessage(ctx, m); err != nil {
			return fmt.Errorf("create stream item: %w", err)
		}
	}
	return nil
}

func (c *MessageCreator) userIDs() []uint64 {
	ids := make([]uint64, 0, len(c.recipients))
	for _, r := range c.recipients {
		ids = append(ids, r.user.ID)
	}
	return ids
}

// tooManyMessagesFor 限流判定：尾窗计数达到用户每日上限。计数是运行
// 起点的快照，之后的取消不会回冲。
func (c *MessageCreator) tooManyMessagesFor(u *domain.User) bool {
	return c.userCounts[u.ID] >= u.MaxMessagesPerDay()
}

// delayedEntry 摘要条目及其分区路由键
type delayedEntry struct {
	dm    *domain.DelayedMessage
	shard string
}

func noDailyIn(entries []*delayedEntry) bool {
	for _, e := range entries {
		if e.dm.Frequency == domain.FrequencyDaily {
			return false
		}
	}
	return true
}

func rejectUnconfirmed(channels []*domain.CommunicationChannel) []*domain.CommunicationChannel {
	out := make([]*domain.CommunicationChannel, 0, len(channels))
	for _, ch := range channels {
		if !ch.Unconfirmed {
			out = append(out, ch)
		}
	}
	return out
}

func uintFromData(data map[string]any, key string) uint64 {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case uint64:
		return v
	case int64:
		if v > 0 {
			return uint64(v)
		}
	case int:
		if v > 0 {
			return uint64(v)
		}
	case float64:
		if v > 0 {
			return uint64(v)
		}
	}
	return 0
}
