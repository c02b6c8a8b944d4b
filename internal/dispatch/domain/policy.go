package domain

// 覆盖记录的上下文类型
const (
	ContextTypeCourse  = "Course"
	ContextTypeAccount = "Account"
)

// 覆盖记录状态
const (
	OverrideStateEnabled  = "enabled"
	OverrideStateDisabled = "disabled"
)

// NotificationPolicy 渠道级频率偏好，按 (渠道, 通知类型) 唯一。
// NotificationID 为 nil 表示兜底每日摘要策略（不绑定具体通知类型）。
type NotificationPolicy struct {
	ID             uint64
	ChannelID      uint64
	NotificationID *uint64
	Frequency      Frequency

	// Channel 反向引用，随策略一起加载，摘要构建时无需回库
	Channel *CommunicationChannel
}

// NotificationPolicyOverride 上下文（课程/账户）范围的覆盖记录，
// 优先级高于渠道级策略。预先存在，对本引擎只读。
type NotificationPolicyOverride struct {
	ID             uint64
	UserID         uint64
	ChannelID      uint64
	NotificationID *uint64
	ContextID      uint64
	ContextType    string
	Frequency      Frequency
	WorkflowState  string
}
