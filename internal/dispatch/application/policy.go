package application

import (
	"context"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// resolvedPolicy 一次频率裁决的结果。policy 可能是内存态（默认物化，
// 未持久化），override 来源时 policy 为 nil。
type resolvedPolicy struct {
	policy    *domain.NotificationPolicy
	override  *domain.NotificationPolicyOverride
	channel   *domain.CommunicationChannel
	frequency domain.Frequency
}

// delayedPolicyFor 判定渠道是否具备摘要资格并返回生效策略。
// 资格条件：渠道活跃、邮箱类型、用户未限流、课程静音门放行，
// 且按覆盖链解析出的频率为 daily/weekly。
func (c *MessageCreator) delayedPolicyFor(ctx context.Context, user *domain.User, ch *domain.CommunicationChannel) (*resolvedPolicy, error) {
	if !ch.Active {
		return nil, nil
	}
	if c.tooManyMessagesFor(user) {
		return nil, nil
	}
	if ch.PathType != domain.PathTypeEmail {
		return nil, nil
	}
	enabled, err := c.notificationsEnabledForContext(ctx, user)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	var rp *resolvedPolicy
	if c.granularEnabled {
		if o := c.overridePolicyFor(ch, c.courseID, domain.ContextTypeCourse); o != nil {
			rp = &resolvedPolicy{override: o, channel: ch, frequency: o.Frequency}
		}
		if rp == nil {
			if o := c.overridePolicyFor(ch, c.rootAccountID, domain.ContextTypeAccount); o != nil {
				rp = &resolvedPolicy{override: o, channel: ch, frequency: o.Frequency}
			}
		}
	}
	if rp == nil && c.shouldUseDefaultPolicy(user, ch) {
		// 内存态物化，不落库：从未配置偏好的用户在默认邮件渠道上
		// 拿到类目默认频率
		nid := c.notification.ID
		p := &domain.NotificationPolicy{
			ChannelID:      ch.ID,
			NotificationID: &nid,
			Frequency:      c.notification.DefaultFrequency(user),
			Channel:        ch,
		}
		rp = &resolvedPolicy{policy: p, channel: ch, frequency: p.Frequency}
	}
	if rp == nil {
		if p := ch.PolicyFor(c.notification.ID); p != nil {
			rp = &resolvedPolicy{policy: p, channel: ch, frequency: p.Frequency}
		}
	}

	if rp != nil && rp.frequency.Delayed() {
		return rp, nil
	}
	return nil, nil
}

// shouldUseDefaultPolicy 仅当渠道是用户默认邮件渠道、且用户所有渠道上
// 都不存在该通知的策略记录时，才物化默认策略。任何既有记录（包括
// never）都表示偏好页已被使用过。
func (c *MessageCreator) shouldUseDefaultPolicy(user *domain.User, ch *domain.CommunicationChannel) bool {
	return c.defaultEmail(user, ch) && !user.HasPolicyFor(c.notification.ID)
}

func (c *MessageCreator) defaultEmail(user *domain.User, ch *domain.CommunicationChannel) bool {
	ec := user.EmailChannel()
	return ec != nil && (ec == ch || (ch.ID != 0 && ec.ID == ch.ID))
}

// overridePolicyFor 渠道上匹配 (通知, 上下文) 的覆盖记录
func (c *MessageCreator) overridePolicyFor(ch *domain.CommunicationChannel, contextID uint64, contextType string) *domain.NotificationPolicyOverride {
	return ch.OverrideFor(c.notification.ID, contextID, contextType)
}

// liveFrequencyFor 覆盖链优先、其次既有策略的频率解析；不含默认物化。
// 返回空串表示该渠道没有任何生效策略。
func (c *MessageCreator) liveFrequencyFor(ch *domain.CommunicationChannel) domain.Frequency {
	if c.granularEnabled {
		if o := c.overridePolicyFor(ch, c.courseID, domain.ContextTypeCourse); o != nil {
			return o.Frequency
		}
		if o := c.overridePolicyFor(ch, c.rootAccountID, domain.ContextTypeAccount); o != nil {
			return o.Frequency
		}
	}
	if p := ch.PolicyFor(c.notification.ID); p != nil {
		return p.Frequency
	}
	return ""
}

// immediateChannelsFor 选出应当立即收到本通知的渠道。
//
// 当用户在非推送渠道上没有任何生效策略、且通知的默认频率是 immediately
// 时，回退集合为默认邮件渠道加上独立解析为 immediately 的推送渠道：
// 从未配置偏好的用户仍然通过邮件收到立即类通知。
// 未注册用户不产生立即渠道（注册类通知另行处理）。
func (c *MessageCreator) immediateChannelsFor(user *domain.User) []*domain.CommunicationChannel {
	if !user.Registered {
		return nil
	}

	var policyBearing []*domain.CommunicationChannel
	for _, ch := range user.Channels {
		if !ch.Active {
			continue
		}
		if c.liveFrequencyFor(ch) != "" {
			policyBearing = append(policyBearing, ch)
		}
	}

	var immediate []*domain.CommunicationChannel
	for _, ch := range policyBearing {
		if c.liveFrequencyFor(ch) == domain.FrequencyImmediately {
			immediate = append(immediate, ch)
		}
	}

	hasNonPushPolicy := false
	for _, ch := range policyBearing {
		if ch.PathType != domain.PathTypePush {
			hasNonPushPolicy = true
			break
		}
	}
	if !hasNonPushPolicy && c.notification.DefaultFrequency(user) == domain.FrequencyImmediately {
		var out []*domain.CommunicationChannel
		if ec := user.EmailChannel(); ec != nil {
			out = append(out, ec)
		}
		for _, ch := range immediate {
			if ch.PathType == domain.PathTypePush {
				out = append(out, ch)
			}
		}
		return out
	}

	return immediate
}

// notificationsEnabledForContext 课程静音门。可汇总通知在账户开启按课程
// 静音后，要求 (用户, 课程) 存在显式启用的覆盖记录；缺失则立即与摘要
// 两条路径都被阻断。非可汇总通知不受此门约束。
func (c *MessageCreator) notificationsEnabledForContext(ctx context.Context, user *domain.User) (bool, error) {
	if !c.notification.IsSummarizable {
		return true, nil
	}
	if !c.muteByCourseEnabled {
		return true, nil
	}
	if enabled, ok := c.contextEnabled[user.ID]; ok {
		return enabled, nil
	}
	enabled, err := c.deps.Policies.OverrideEnabledFor(ctx, user.ID, c.courseID, domain.ContextTypeCourse)
	if err != nil {
		return false, err
	}
	c.contextEnabled[user.ID] = enabled
	return enabled, nil
}
