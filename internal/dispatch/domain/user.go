package domain

// PathType 通信渠道类型
type PathType string

const (
	PathTypeEmail PathType = "email"
	PathTypeSMS   PathType = "sms"
	PathTypePush  PathType = "push"
)

// DefaultMaxMessagesPerDay 用户未单独配置时的每日消息上限
const DefaultMaxMessagesPerDay = 500

// CommunicationChannel 用户的一个投递端点（邮箱地址、手机号、推送 token）
type CommunicationChannel struct {
	ID       uint64
	UserID   uint64
	Path     string
	PathType PathType

	Active      bool
	Bouncing    bool
	Unconfirmed bool

	// User 反向引用，随渠道一起加载时可用
	User *User

	// Policies / Overrides 随渠道预加载，引擎内的策略解析不再回库查询
	Policies  []*NotificationPolicy
	Overrides []*NotificationPolicyOverride
}

// PolicyFor 返回该渠道上指定通知类型的既有策略，不存在时返回 nil
func (c *CommunicationChannel) PolicyFor(notificationID uint64) *NotificationPolicy {
	for _, p := range c.Policies {
		if p.NotificationID != nil && *p.NotificationID == notificationID {
			return p
		}
	}
	return nil
}

// OverrideFor 返回该渠道上匹配 (通知, 上下文) 的覆盖记录，不存在时返回 nil
func (c *CommunicationChannel) OverrideFor(notificationID, contextID uint64, contextType string) *NotificationPolicyOverride {
	if contextID == 0 {
		return nil
	}
	for _, o := range c.Overrides {
		if o.NotificationID != nil && *o.NotificationID == notificationID &&
			o.ContextID == contextID && o.ContextType == contextType {
			return o
		}
	}
	return nil
}

// User 收件人。本次运行内视为不可变快照
type User struct {
	ID     uint64
	Name   string
	Shard  string
	Locale string

	Registered    bool
	PreRegistered bool

	maxMessagesPerDay int64

	Channels []*CommunicationChannel
}

// NewUser 构造收件人快照，maxPerDay 为 0 时使用全局默认上限
func NewUser(id uint64, maxPerDay int64) *User {
	return &User{ID: id, maxMessagesPerDay: maxPerDay}
}

// SetMaxMessagesPerDay 设置每日消息上限
func (u *User) SetMaxMessagesPerDay(n int64) { u.maxMessagesPerDay = n }

// MaxMessagesPerDay 每日消息上限，未配置时取默认值
func (u *User) MaxMessagesPerDay() int64 {
	if u.maxMessagesPerDay > 0 {
		return u.maxMessagesPerDay
	}
	return DefaultMaxMessagesPerDay
}

// EmailChannel 用户的默认邮件渠道：第一个活跃的 email 渠道
func (u *User) EmailChannel() *CommunicationChannel {
	for _, c := range u.Channels {
		if c.PathType == PathTypeEmail && c.Active {
			return c
		}
	}
	return nil
}

// ActiveChannels 活跃渠道列表
func (u *User) ActiveChannels() []*CommunicationChannel {
	out := make([]*CommunicationChannel, 0, len(u.Channels))
	for _, c := range u.Channels {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// HasPolicyFor 用户任意渠道上是否存在该通知类型的策略记录。
// 存在任何记录（包括 never）即表示用户访问过偏好设置页，
// 默认策略的自动物化必须让位于用户的显式选择。
func (u *User) HasPolicyFor(notificationID uint64) bool {
	for _, c := range u.Channels {
		if c.PolicyFor(notificationID) != nil {
			return true
		}
	}
	return false
}
