// Package domain 通知分发引擎的领域模型
package domain

import "time"

// Frequency 投递频率
type Frequency string

const (
	FrequencyImmediately Frequency = "immediately" // 立即投递
	FrequencyDaily       Frequency = "daily"       // 每日摘要
	FrequencyWeekly      Frequency = "weekly"      // 每周摘要
	FrequencyNever       Frequency = "never"       // 不投递
)

// Delayed 判断频率是否属于摘要（延迟）投递
func (f Frequency) Delayed() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// Notification 通知类型（类目），在通知目录中注册，对本引擎是只读输入
type Notification struct {
	ID       uint64
	Name     string
	Category string
	Subject  string

	// IsRegistration 注册类通知：只走立即投递路径
	IsRegistration bool
	// IsSummarizable 可汇总通知：受按课程静音与限流降级约束
	IsSummarizable bool
	// IsDashboard 是否产生站内信息流消息
	IsDashboard bool
	// ShowInFeed 是否展示在信息流中
	ShowInFeed bool

	// DelayFor 投递前的延迟时长，零值表示不延迟
	DelayFor time.Duration

	// DefaultFreq 类目级默认频率
	DefaultFreq Frequency
	// DefaultFor 可选的按用户默认频率钩子（如观察者角色有独立默认值）
	DefaultFor func(u *User) Frequency
}

// DefaultFrequency 返回该通知对指定用户的默认频率
func (n *Notification) DefaultFrequency(u *User) Frequency {
	if n.DefaultFor != nil {
		return n.DefaultFor(u)
	}
	return n.DefaultFreq
}

// 引擎依赖的功能开关
const (
	// FeatureMuteByCourse 账户级开关：允许按课程静音可汇总通知
	FeatureMuteByCourse = "mute_notifications_by_course"
	// FeatureGranularPreferences 站点级开关：启用课程/账户粒度的策略覆盖
	FeatureGranularPreferences = "notification_granular_course_preferences"
)
