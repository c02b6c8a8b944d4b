package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// newMessage 组装消息载荷：主题、通知引用、收件人、按用户收窄后的资产
// 与调用方附加数据。渲染由 Renderer 协作方完成，这里不做。
func (c *MessageCreator) newMessage(user *domain.User, asset domain.Asset, ch *domain.CommunicationChannel) *domain.Message {
	m := &domain.Message{
		NotificationID:   c.notification.ID,
		NotificationName: c.notification.Name,
		UserID:           user.ID,
		Subject:          c.notification.Subject,
		AssetKey:         asset.AssetKey(),
		CourseID:         c.courseID,
		RootAccountID:    c.rootAccountID,
		WorkflowState:    domain.MessageStateBuilt,
		Data:             c.messageData,
		User:             user,
	}
	if actx := asset.Context(); actx != nil {
		m.ContextID = actx.ID
		m.ContextType = actx.Type
		if m.RootAccountID == 0 {
			m.RootAccountID = actx.RootAccountID
		}
	}
	if c.notification.DelayFor > 0 {
		m.DelayFor = c.notification.DelayFor
	}
	if ch != nil {
		m.ChannelID = ch.ID
		m.Channel = ch
		m.To = ch.Path
		m.ToEmail = ch.PathType == domain.PathTypeEmail || ch.PathType == domain.PathTypeSMS
	}
	return m
}

// buildImmediateFor 为给定渠道集合构建立即消息。可汇总通知在用户限流时
// 降级：邮箱/短信渠道被剔除，推送豁免。bouncing 渠道无条件剔除。
func (c *MessageCreator) buildImmediateFor(ctx context.Context, user *domain.User, asset domain.Asset, locale string, channels []*domain.CommunicationChannel) ([]*domain.Message, error) {
	enabled, err := c.notificationsEnabledForContext(ctx, user)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	throttled := c.notification.IsSummarizable && c.tooManyMessagesFor(user)

	var msgs []*domain.Message
	for _, ch := range channels {
		if throttled && (ch.PathType == domain.PathTypeEmail || ch.PathType == domain.PathTypeSMS) {
			continue
		}
		if ch.Bouncing {
			continue
		}
		m := c.newMessage(user, asset, ch)
		m.Frequency = domain.FrequencyImmediately
		if err := c.deps.Renderer.Render(ctx, m, domain.RenderDefault, locale); err != nil {
			return nil, fmt.Errorf("render message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// buildSummaryFor 渲染摘要形态并生成摘要条目，落库路由到用户所在分区
func (c *MessageCreator) buildSummaryFor(ctx context.Context, user *domain.User, asset domain.Asset, locale string, rp *resolvedPolicy) (*delayedEntry, error) {
	m := c.newMessage(user, asset, rp.channel)
	m.Frequency = rp.frequency
	if err := c.deps.Renderer.Render(ctx, m, domain.RenderSummary, locale); err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}

	dm := &domain.DelayedMessage{
		NotificationID: c.notification.ID,
		ChannelID:      rp.channel.ID,
		UserID:         user.ID,
		Frequency:      rp.frequency,
		RootAccountID:  m.RootAccountID,
		NameOfTopic:    m.Subject,
		Link:           m.URL,
		Summary:        m.Body,
		ContextID:      m.ContextID,
		ContextType:    m.ContextType,
		WorkflowState:  "pending",
	}
	if rp.policy != nil {
		dm.PolicyID = rp.policy.ID
	}
	return &delayedEntry{dm: dm, shard: user.Shard}, nil
}

// buildFallbackFor 限流用户的兜底摘要：所有渠道都没有产出每日摘要时，
// 用其邮件渠道 find-or-create 一条 daily 兜底策略并据此生成摘要，保证
// 限流用户至少还能收到点什么。没有邮件渠道时不算错误，直接放弃。
func (c *MessageCreator) buildFallbackFor(ctx context.Context, user *domain.User, asset domain.Asset, locale string) (*delayedEntry, error) {
	var fallback *domain.CommunicationChannel
	for _, ch := range c.immediateChannelsFor(user) {
		if ch.PathType == domain.PathTypeEmail {
			fallback = ch
			break
		}
	}
	if fallback == nil {
		return nil, nil
	}

	policy, err := c.deps.Policies.FindOrCreateDailyFallback(ctx, fallback.ID)
	if err != nil {
		return nil, fmt.Errorf("find or create fallback policy: %w", err)
	}
	policy.Channel = fallback

	rp := &resolvedPolicy{policy: policy, channel: fallback, frequency: domain.FrequencyDaily}
	return c.buildSummaryFor(ctx, user, asset, locale, rp)
}

// buildDashboardFor 站内消息：To 固定为 dashboard，不绑定渠道
func (c *MessageCreator) buildDashboardFor(ctx context.Context, user *domain.User, asset domain.Asset, locale string) (*domain.Message, error) {
	m := c.newMessage(user, asset, nil)
	m.To = "dashboard"
	if err := c.deps.Renderer.Render(ctx, m, domain.RenderDefault, locale); err != nil {
		return nil, fmt.Errorf("render dashboard message: %w", err)
	}
	return m, nil
}
