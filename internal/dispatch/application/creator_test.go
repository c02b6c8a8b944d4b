package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

func runCreate(t *testing.T, env *testEnv, n *domain.Notification, asset domain.Asset, toList []any, data map[string]any) []*domain.Message {
	t.Helper()
	creator, err := NewMessageCreator(context.Background(), n, asset, toList, data, env.deps(), CreatorOptions{})
	require.NoError(t, err)
	msgs, err := creator.Create(context.Background())
	require.NoError(t, err)
	return msgs
}

func TestCreateImmediateForConfiguredUser(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(registeredUser(1, "alice@example.test"))
	n := testNotification(100, "AssignmentCreated", false, domain.FrequencyNever)
	addPolicy(user.Channels[0], n.ID, domain.FrequencyImmediately)

	msgs := runCreate(t, env, n, testAsset("assignment_1"), []any{uint64(1)}, nil)

	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, domain.MessageStateStaged, m.WorkflowState)
	assert.Equal(t, "alice@example.test", m.To)
	assert.True(t, m.ToEmail)
	assert.Equal(t, domain.FrequencyImmediately, m.Frequency)
	assert.NotZero(t, m.ID)

	require.Len(t, env.messages.batches, 1)
	scope := env.messages.batches[0].scope
	assert.Equal(t, n.ID, scope.NotificationID)
	assert.Equal(t, "assignment_1", scope.AssetKey)
	assert.Equal(t, []uint64{1}, scope.UserIDs)
	assert.Equal(t, 6*time.Hour, scope.Window)

	require.Len(t, env.dispatcher.batches, 1)
	assert.Len(t, env.dispatcher.batches[0], 1)
}

func TestCreateSummaryForDailyPolicy(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(registeredUser(1, "alice@example.test"))
	user.Shard = "shard_3"
	n := testNotification(100, "DiscussionReply", true, domain.FrequencyNever)
	policy := addPolicy(user.Channels[0], n.ID, domain.FrequencyDaily)

	msgs := runCreate(t, env, n, testAsset("topic_9"), []any{uint64(1)}, nil)

	assert.Empty(t, msgs)
	require.Len(t, env.delayed.saved, 1)
	entry := env.delayed.saved[0]
	assert.Equal(t, "shard_3", entry.shard)
	assert.Equal(t, domain.FrequencyDaily, entry.dm.Frequency)
	assert.Equal(t, policy.ID, entry.dm.PolicyID)
	assert.Equal(t, user.ID, entry.dm.UserID)

	// 摘要形态走 summary 渲染
	require.Len(t, env.renderer.calls, 1)
	assert.Equal(t, domain.RenderSummary, env.renderer.calls[0].kind)

	// 即使没有立即消息，取消事务仍然执行
	require.Len(t, env.messages.batches, 1)
	assert.Empty(t, env.messages.batches[0].msgs)
	assert.Empty(t, env.dispatcher.batches)
}

func TestDefaultPolicyMaterialization(t *testing.T) {
	t.Run("user without any policy gets category default on default email channel", func(t *testing.T) {
		env := newTestEnv()
		env.addUser(registeredUser(1, "alice@example.test"))
		n := testNotification(100, "DiscussionReply", true, domain.FrequencyDaily)

		msgs := runCreate(t, env, n, testAsset("topic_9"), []any{uint64(1)}, nil)

		assert.Empty(t, msgs)
		require.Len(t, env.delayed.saved, 1)
		entry := env.delayed.saved[0]
		assert.Equal(t, domain.FrequencyDaily, entry.dm.Frequency)
		// 物化策略仅存在于内存，不产生已持久化的策略引用
		assert.Zero(t, entry.dm.PolicyID)
		assert.Zero(t, env.policies.fallbackCalls)
	})

	t.Run("any existing policy row blocks materialization", func(t *testing.T) {
		env := newTestEnv()
		user := env.addUser(registeredUser(1, "alice@example.test"))
		n := testNotification(100, "DiscussionReply", true, domain.FrequencyDaily)
		addPolicy(user.Channels[0], n.ID, domain.FrequencyNever)

		msgs := runCreate(t, env, n, testAsset("topic_9"), []any{uint64(1)}, nil)

		assert.Empty(t, msgs)
		assert.Empty(t, env.delayed.saved)
	})
}

func TestThrottleDowngradeAndFallbackDigest(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(registeredUser(1, "alice@example.test"))
	user.SetMaxMessagesPerDay(10)
	env.messages.counts[1] = 10
	n := testNotification(100, "AssignmentCreated", true, domain.FrequencyNever)
	addPolicy(user.Channels[0], n.ID, domain.FrequencyImmediately)
	push := addChannel(user, 12, domain.PathTypePush, "device-token-1")
	addPolicy(push, n.ID, domain.FrequencyImmediately)

	msgs := runCreate(t, env, n, testAsset("assignment_1"), []any{uint64(1)}, nil)

	// 邮箱被限流剔除，推送豁免
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.PathTypePush, msgs[0].Channel.PathType)

	// 限流用户收到兜底每日摘要，策略 find-or-create 恰好一次
	require.Len(t, env.delayed.saved, 1)
	entry := env.delayed.saved[0]
	assert.Equal(t, domain.FrequencyDaily, entry.dm.Frequency)
	assert.NotZero(t, entry.dm.PolicyID)
	assert.Equal(t, 1, env.policies.fallbackCalls)
}

func TestRegistrationDeliversToExplicitUnconfirmedChannel(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(registeredUser(1, "alice@example.test"))
	unconfirmed := &domain.CommunicationChannel{
		ID:          99,
		UserID:      user.ID,
		Path:        "pending@example.test",
		PathType:    domain.PathTypeEmail,
		Unconfirmed: true,
		User:        user,
	}
	n := testNotification(101, "ConfirmRegistration", false, domain.FrequencyImmediately)
	n.IsRegistration = true

	msgs := runCreate(t, env, n, testAsset("registration_1"), []any{unconfirmed}, nil)

	// 注册类通知绕过未确认过滤，且只按传入渠道投递
	require.Len(t, msgs, 2)
	paths := []string{msgs[0].To, msgs[1].To}
	assert.Contains(t, paths, "pending@example.test")
	assert.Empty(t, env.delayed.saved)
	assert.Empty(t, env.messages.dashboards)
}

func TestPreRegisteredUserGetsNoImmediateOrDashboard(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(registeredUser(1, "alice@example.test"))
	user.Registered = false
	user.PreRegistered = true
	n := testNotification(100, "DiscussionReply", true, domain.FrequencyNever)
	n.IsDashboard = true
	n.ShowInFeed = true
	addPolicy(user.Channels[0], n.ID, domain.FrequencyDaily)

	msgs := runCreate(t, env, n, testAsset("topic_9"), []any{uint64(1)}, nil)

	assert.Empty(t, msgs)
	assert.Empty(t, env.messages.dashboards)
	// 摘要路径不受注册前状态影响
	assert.Len(t, env.delayed.saved, 1)
}

func TestDashboardMessageBypassesStaging(t *testing.T) {
	env := newTestEnv()
	env.addUser(registeredUser(1, "alice@example.test"))
	n := testNotification(102, "GradeChanged", false, domain.FrequencyNever)
	n.IsDashboard = true
	n.ShowInFeed = true

	msgs := runCreate(t, env, n, testAsset("submission_4"), []any{uint64(1)}, nil)

	require.Len(t, msgs, 1)
	assert.Equal(t, "dashboard", msgs[0].To)
	assert.Zero(t, msgs[0].ChannelID)

	require.Len(t, env.messages.dashboards, 1)
	require.Len(t, env.streams.items, 1)
	assert.Equal(t, msgs[0], env.streams.items[0])

	// 站内消息不进入 staging 批次，但取消范围照常执行
	require.Len(t, env.messages.batches, 1)
	assert.Empty(t, env.messages.batches[0].msgs)
	assert.Empty(t, env.dispatcher.batches)
}

func TestCourseMutingGate(t *testing.T) {
	data := map[string]any{"course_id": uint64(7), "root_account_id": uint64(3)}

	t.Run("muted course blocks both immediate and summary paths", func(t *testing.T) {
		env := newTestEnv()
		user := env.addUser(registeredUser(1, "alice@example.test"))
		env.features.account[domain.FeatureMuteByCourse] = true
		n := testNotification(100, "AssignmentCreated", true, domain.FrequencyNever)
		addPolicy(user.Channels[0], n.ID, domain.FrequencyImmediately)

		msgs := runCreate(t, env, n, testAsset("assignment_1"), []any{uint64(1)}, data)

		assert.Empty(t, msgs)
		assert.Empty(t, env.delayed.saved)
	})

	t.Run("explicitly enabled override lets messages through", func(t *testing.T) {
		env := newTestEnv()
		user := env.addUser(registeredUser(1, "alice@example.test"))
		env.features.account[domain.FeatureMuteByCourse] = true
		env.policies.enabledOverrides[1] = true
		n := testNotification(100, "AssignmentCreated", true, domain.FrequencyNever)
		addPolicy(user.Channels[0], n.ID, domain.FrequencyImmediately)

		msgs := runCreate(t, env, n, testAsset("assignment_1"), []any{uint64(1)}, data)

		assert.Len(t, msgs, 1)
	})

	t.Run("gate only applies to summarizable notifications", func(t *testing.T) {
		env := newTestEnv()
		user := env.addUser(registeredUser(1, "alice@example.test"))
		env.features.account[domain.FeatureMuteByCourse] = true
		n := testNotification(100, "AccountNotice", false, domain.FrequencyNever)
		addPolicy(user.Channels[0], n.ID, domain.FrequencyImmediately)

		msgs := runCreate(t, env, n, testAsset("notice_1"), []any{uint64(1)}, data)

		assert.Len(t, msgs, 1)
	})
}

func TestBareUserFallbackToEmailChannel(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(registeredUser(1, "alice@example.test"))
	push := addChannel(user, 12, domain.PathTypePush, "device-token-1")
	n := testNotification(103, "EnrollmentInvitation", false, domain.FrequencyImmediately)
	addPolicy(push, n.ID, domain.FrequencyImmediately)

	msgs := runCreate(t, env, n, testAsset("enrollment_5"), []any{uint64(1)}, nil)

	// 非推送渠道上没有任何策略：默认邮件渠道兜底，立即推送保留
	require.Len(t, msgs, 2)
	paths := []string{msgs[0].To, msgs[1].To}
	assert.Contains(t, paths, "alice@example.test")
	assert.Contains(t, paths, "device-token-1")
}

func TestBouncingChannelNeverReceives(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(registeredUser(1, "alice@example.test"))
	user.Channels[0].Bouncing = true
	n := testNotification(103, "EnrollmentInvitation", false, domain.FrequencyImmediately)

	msgs := runCreate(t, env, n, testAsset("enrollment_5"), []any{uint64(1)}, nil)

	assert.Empty(t, msgs)
}

func TestLocaleResolvedOncePerUser(t *testing.T) {
	env := newTestEnv()
	alice := env.addUser(registeredUser(1, "alice@example.test"))
	alice.Locale = "zh"
	bob := env.addUser(registeredUser(2, "bob@example.test"))
	n := testNotification(100, "AssignmentCreated", false, domain.FrequencyNever)
	addPolicy(alice.Channels[0], n.ID, domain.FrequencyImmediately)
	addPolicy(bob.Channels[0], n.ID, domain.FrequencyImmediately)

	asset := testAsset("assignment_1")
	asset.Ctx = &domain.AssetContext{ID: 7, Type: domain.ContextTypeCourse, Locale: "fr"}

	runCreate(t, env, n, asset, []any{uint64(1), uint64(2)}, nil)

	require.Len(t, env.renderer.calls, 2)
	byUser := map[uint64]string{}
	for _, call := range env.renderer.calls {
		byUser[call.userID] = call.locale
	}
	// 用户档案优先，缺失时落到资产上下文
	assert.Equal(t, "zh", byUser[1])
	assert.Equal(t, "fr", byUser[2])
}

func TestRecipientOrderIsDeterministic(t *testing.T) {
	env := newTestEnv()
	n := testNotification(100, "AssignmentCreated", false, domain.FrequencyNever)
	for id := uint64(1); id <= 3; id++ {
		u := env.addUser(registeredUser(id, "user@example.test"))
		addPolicy(u.Channels[0], n.ID, domain.FrequencyImmediately)
	}

	msgs := runCreate(t, env, n, testAsset("assignment_1"), []any{uint64(2), uint64(3), uint64(1)}, nil)

	require.Len(t, msgs, 3)
	assert.Equal(t, []uint64{2, 3, 1}, []uint64{msgs[0].UserID, msgs[1].UserID, msgs[2].UserID})
	assert.Equal(t, []uint64{2, 3, 1}, env.messages.batches[0].scope.UserIDs)
}

func TestDispatcherHandOffFailureDoesNotFailRun(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(registeredUser(1, "alice@example.test"))
	n := testNotification(100, "AssignmentCreated", false, domain.FrequencyNever)
	addPolicy(user.Channels[0], n.ID, domain.FrequencyImmediately)
	env.dispatcher.err = errors.New("broker unavailable")

	msgs := runCreate(t, env, n, testAsset("assignment_1"), []any{uint64(1)}, nil)

	// staged 消息已提交，交接失败交给补偿扫描
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageStateStaged, msgs[0].WorkflowState)
}

func TestThrottleCountLoadFailureIsFatal(t *testing.T) {
	env := newTestEnv()
	env.addUser(registeredUser(1, "alice@example.test"))
	env.messages.countsErr = errors.New("replica down")
	n := testNotification(100, "AssignmentCreated", true, domain.FrequencyNever)

	_, err := NewMessageCreator(context.Background(), n, testAsset("assignment_1"),
		[]any{uint64(1)}, nil, env.deps(), CreatorOptions{})
	require.Error(t, err)
}
