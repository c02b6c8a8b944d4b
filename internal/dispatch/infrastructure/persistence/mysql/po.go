// Package mysql 分发引擎的 GORM 持久化实现
package mysql

import (
	"time"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// 渠道与用户的注册状态
const (
	stateActive        = "active"
	stateUnconfirmed   = "unconfirmed"
	stateRegistered    = "registered"
	statePreRegistered = "pre_registered"
)

type UserPO struct {
	ID                uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Name              string `gorm:"column:name;type:varchar(255)"`
	Shard             string `gorm:"column:shard;type:varchar(64);index"`
	Locale            string `gorm:"column:locale;type:varchar(16)"`
	WorkflowState     string `gorm:"column:workflow_state;type:varchar(32);not null;default:'pre_registered'"`
	MaxMessagesPerDay int64  `gorm:"column:max_messages_per_day;default:0"`

	Channels []*ChannelPO `gorm:"foreignKey:UserID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserPO) TableName() string { return "users" }

type ChannelPO struct {
	ID            uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        uint64 `gorm:"column:user_id;index;not null"`
	Path          string `gorm:"column:path;type:varchar(255);not null"`
	PathType      string `gorm:"column:path_type;type:varchar(16);not null;default:'email'"`
	WorkflowState string `gorm:"column:workflow_state;type:varchar(32);not null;default:'unconfirmed'"`
	Bouncing      bool   `gorm:"column:bouncing;default:false"`
	Position      int    `gorm:"column:position;default:0"`

	Policies  []*PolicyPO   `gorm:"foreignKey:ChannelID"`
	Overrides []*OverridePO `gorm:"foreignKey:ChannelID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelPO) TableName() string { return "communication_channels" }

type PolicyPO struct {
	ID             uint64  `gorm:"column:id;primaryKey;autoIncrement"`
	ChannelID      uint64  `gorm:"column:communication_channel_id;uniqueIndex:uk_channel_notification;not null"`
	NotificationID *uint64 `gorm:"column:notification_id;uniqueIndex:uk_channel_notification"`
	Frequency      string  `gorm:"column:frequency;type:varchar(16);not null;default:'never'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PolicyPO) TableName() string { return "notification_policies" }

type OverridePO struct {
	ID             uint64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID         uint64  `gorm:"column:user_id;index;not null"`
	ChannelID      uint64  `gorm:"column:communication_channel_id;index"`
	NotificationID *uint64 `gorm:"column:notification_id"`
	ContextID      uint64  `gorm:"column:context_id;index;not null"`
	ContextType    string  `gorm:"column:context_type;type:varchar(32);not null"`
	Frequency      string  `gorm:"column:frequency;type:varchar(16)"`
	WorkflowState  string  `gorm:"column:workflow_state;type:varchar(32);not null;default:'enabled'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (OverridePO) TableName() string { return "notification_policy_overrides" }

type MessagePO struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	NotificationID   uint64 `gorm:"column:notification_id;index;not null"`
	NotificationName string `gorm:"column:notification_name;type:varchar(255);index;not null"`
	UserID           uint64 `gorm:"column:user_id;index;not null"`
	ChannelID        uint64 `gorm:"column:communication_channel_id"`
	To               string `gorm:"column:to;type:varchar(255)"`
	ToEmail          bool   `gorm:"column:to_email;index;default:false"`
	Subject          string `gorm:"column:subject;type:varchar(255)"`
	Body             string `gorm:"column:body;type:text"`
	URL              string `gorm:"column:url;type:varchar(1024)"`
	Frequency        string `gorm:"column:frequency;type:varchar(16)"`
	WorkflowState    string `gorm:"column:workflow_state;type:varchar(32);index;not null;default:'built'"`
	AssetKey         string `gorm:"column:asset_key;type:varchar(255);index"`
	ContextID        uint64 `gorm:"column:context_id"`
	ContextType      string `gorm:"column:context_type;type:varchar(32)"`
	CourseID         uint64 `gorm:"column:course_id"`
	RootAccountID    uint64 `gorm:"column:root_account_id"`
	DelayForSeconds  int64  `gorm:"column:delay_for_seconds;default:0"`
	FailReason       string `gorm:"column:fail_reason;type:varchar(255)"`

	CreatedAt time.Time `gorm:"column:created_at;index;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MessagePO) TableName() string { return "messages" }

type DelayedMessagePO struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	PolicyID       uint64 `gorm:"column:notification_policy_id"`
	NotificationID uint64 `gorm:"column:notification_id;index;not null"`
	ChannelID      uint64 `gorm:"column:communication_channel_id;index;not null"`
	UserID         uint64 `gorm:"column:user_id;index;not null"`
	Shard          string `gorm:"column:shard;type:varchar(64);index"`
	Frequency      string `gorm:"column:frequency;type:varchar(16);not null"`
	RootAccountID  uint64 `gorm:"column:root_account_id"`
	NameOfTopic    string `gorm:"column:name_of_topic;type:varchar(255)"`
	Link           string `gorm:"column:link;type:varchar(1024)"`
	Summary        string `gorm:"column:summary;type:text"`
	ContextID      uint64 `gorm:"column:context_id"`
	ContextType    string `gorm:"column:context_type;type:varchar(32)"`
	WorkflowState  string `gorm:"column:workflow_state;type:varchar(32);not null;default:'pending'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DelayedMessagePO) TableName() string { return "delayed_messages" }

type StreamItemPO struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID         uint64 `gorm:"column:user_id;index;not null"`
	MessageID      uint64 `gorm:"column:message_id;index"`
	NotificationID uint64 `gorm:"column:notification_id"`
	ContextID      uint64 `gorm:"column:context_id"`
	ContextType    string `gorm:"column:context_type;type:varchar(32)"`
	Title          string `gorm:"column:title;type:varchar(255)"`
	URL            string `gorm:"column:url;type:varchar(1024)"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (StreamItemPO) TableName() string { return "stream_items" }

type NotificationPO struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Name             string `gorm:"column:name;type:varchar(255);uniqueIndex;not null"`
	Category         string `gorm:"column:category;type:varchar(128)"`
	Subject          string `gorm:"column:subject;type:varchar(255)"`
	IsRegistration   bool   `gorm:"column:is_registration;default:false"`
	IsSummarizable   bool   `gorm:"column:is_summarizable;default:true"`
	IsDashboard      bool   `gorm:"column:is_dashboard;default:false"`
	ShowInFeed       bool   `gorm:"column:show_in_feed;default:true"`
	DelayForSeconds  int64  `gorm:"column:delay_for_seconds;default:0"`
	DefaultFrequency string `gorm:"column:default_frequency;type:varchar(16);not null;default:'never'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (NotificationPO) TableName() string { return "notifications" }

type FeatureFlagPO struct {
	ID          uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	ContextType string `gorm:"column:context_type;type:varchar(32);uniqueIndex:uk_context_feature;not null"`
	ContextID   uint64 `gorm:"column:context_id;uniqueIndex:uk_context_feature;not null"`
	Feature     string `gorm:"column:feature;type:varchar(128);uniqueIndex:uk_context_feature;not null"`
	State       string `gorm:"column:state;type:varchar(16);not null;default:'off'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FeatureFlagPO) TableName() string { return "feature_flags" }

func toMessagePO(m *domain.Message) *MessagePO {
	return &MessagePO{
		ID:               m.ID,
		NotificationID:   m.NotificationID,
		NotificationName: m.NotificationName,
		UserID:           m.UserID,
		ChannelID:        m.ChannelID,
		To:               m.To,
		ToEmail:          m.ToEmail,
		Subject:          m.Subject,
		Body:             m.Body,
		URL:              m.URL,
		Frequency:        string(m.Frequency),
		WorkflowState:    string(m.WorkflowState),
		AssetKey:         m.AssetKey,
		ContextID:        m.ContextID,
		ContextType:      m.ContextType,
		CourseID:         m.CourseID,
		RootAccountID:    m.RootAccountID,
		DelayForSeconds:  int64(m.DelayFor.Seconds()),
		CreatedAt:        m.CreatedAt,
	}
}

func toMessage(po *MessagePO) *domain.Message {
	return &domain.Message{
		ID:               po.ID,
		NotificationID:   po.NotificationID,
		NotificationName: po.NotificationName,
		UserID:           po.UserID,
		ChannelID:        po.ChannelID,
		To:               po.To,
		ToEmail:          po.ToEmail,
		Subject:          po.Subject,
		Body:             po.Body,
		URL:              po.URL,
		Frequency:        domain.Frequency(po.Frequency),
		WorkflowState:    domain.WorkflowState(po.WorkflowState),
		AssetKey:         po.AssetKey,
		ContextID:        po.ContextID,
		ContextType:      po.ContextType,
		CourseID:         po.CourseID,
		RootAccountID:    po.RootAccountID,
		DelayFor:         time.Duration(po.DelayForSeconds) * time.Second,
		CreatedAt:        po.CreatedAt,
	}
}

func toUser(po *UserPO) *domain.User {
	u := domain.NewUser(po.ID, po.MaxMessagesPerDay)
	u.Name = po.Name
	u.Shard = po.Shard
	u.Locale = po.Locale
	u.Registered = po.WorkflowState == stateRegistered
	u.PreRegistered = po.WorkflowState == statePreRegistered
	u.Channels = make([]*domain.CommunicationChannel, 0, len(po.Channels))
	for _, ch := range po.Channels {
		u.Channels = append(u.Channels, toChannel(ch, u))
	}
	return u
}

func toChannel(po *ChannelPO, owner *domain.User) *domain.CommunicationChannel {
	ch := &domain.CommunicationChannel{
		ID:          po.ID,
		UserID:      po.UserID,
		Path:        po.Path,
		PathType:    domain.PathType(po.PathType),
		Active:      po.WorkflowState == stateActive,
		Bouncing:    po.Bouncing,
		Unconfirmed: po.WorkflowState == stateUnconfirmed,
		User:        owner,
	}
	ch.Policies = make([]*domain.NotificationPolicy, 0, len(po.Policies))
	for _, p := range po.Policies {
		ch.Policies = append(ch.Policies, &domain.NotificationPolicy{
			ID:             p.ID,
			ChannelID:      p.ChannelID,
			NotificationID: p.NotificationID,
			Frequency:      domain.Frequency(p.Frequency),
			Channel:        ch,
		})
	}
	ch.Overrides = make([]*domain.NotificationPolicyOverride, 0, len(po.Overrides))
	for _, o := range po.Overrides {
		ch.Overrides = append(ch.Overrides, &domain.NotificationPolicyOverride{
			ID:             o.ID,
			UserID:         o.UserID,
			ChannelID:      o.ChannelID,
			NotificationID: o.NotificationID,
			ContextID:      o.ContextID,
			ContextType:    o.ContextType,
			Frequency:      domain.Frequency(o.Frequency),
			WorkflowState:  o.WorkflowState,
		})
	}
	return ch
}

func toNotification(po *NotificationPO) *domain.Notification {
	return &domain.Notification{
		ID:             po.ID,
		Name:           po.Name,
		Category:       po.Category,
		Subject:        po.Subject,
		IsRegistration: po.IsRegistration,
		IsSummarizable: po.IsSummarizable,
		IsDashboard:    po.IsDashboard,
		ShowInFeed:     po.ShowInFeed,
		DelayFor:       time.Duration(po.DelayForSeconds) * time.Second,
		DefaultFreq:    domain.Frequency(po.DefaultFrequency),
	}
}

func toDelayedMessagePO(dm *domain.DelayedMessage, shard string) *DelayedMessagePO {
	return &DelayedMessagePO{
		ID:             dm.ID,
		PolicyID:       dm.PolicyID,
		NotificationID: dm.NotificationID,
		ChannelID:      dm.ChannelID,
		UserID:         dm.UserID,
		Shard:          shard,
		Frequency:      string(dm.Frequency),
		RootAccountID:  dm.RootAccountID,
		NameOfTopic:    dm.NameOfTopic,
		Link:           dm.Link,
		Summary:        dm.Summary,
		ContextID:      dm.ContextID,
		ContextType:    dm.ContextType,
		WorkflowState:  dm.WorkflowState,
	}
}
