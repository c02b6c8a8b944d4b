package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// 内存版仓储与协作方，引擎测试共用

type fakeUserRepo struct {
	users map[uint64]*domain.User
}

func (f *fakeUserRepo) FindByIDs(ctx context.Context, ids []uint64) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type savedBatch struct {
	scope domain.CancelScope
	msgs  []*domain.Message
}

type fakeMessageRepo struct {
	counts        map[uint64]int64
	countsErr     error
	batches       []savedBatch
	dashboards    []*domain.Message
	dispatchedIDs []uint64
	failedIDs     []uint64
	failReason    string
	nextID        uint64
}

func (f *fakeMessageRepo) CountRecentEmailByUser(ctx context.Context, userIDs []uint64, since time.Time) (map[uint64]int64, error) {
	if f.countsErr != nil {
		return nil, f.countsErr
	}
	out := make(map[uint64]int64, len(userIDs))
	for _, id := range userIDs {
		out[id] = f.counts[id]
	}
	return out, nil
}

func (f *fakeMessageRepo) DispatchStaged(ctx context.Context, scope domain.CancelScope, msgs []*domain.Message) error {
	for _, m := range msgs {
		f.nextID++
		m.ID = f.nextID
	}
	f.batches = append(f.batches, savedBatch{scope: scope, msgs: msgs})
	return nil
}

func (f *fakeMessageRepo) SaveDashboard(ctx context.Context, msg *domain.Message) error {
	f.nextID++
	msg.ID = f.nextID
	f.dashboards = append(f.dashboards, msg)
	return nil
}

func (f *fakeMessageRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*domain.Message, int64, error) {
	return nil, 0, nil
}

func (f *fakeMessageRepo) MarkDispatched(ctx context.Context, ids []uint64) error {
	f.dispatchedIDs = append(f.dispatchedIDs, ids...)
	return nil
}

func (f *fakeMessageRepo) MarkSendFailed(ctx context.Context, ids []uint64, reason string) error {
	f.failedIDs = append(f.failedIDs, ids...)
	f.failReason = reason
	return nil
}

type fakePolicyRepo struct {
	fallbacks        map[uint64]*domain.NotificationPolicy
	fallbackCalls    int
	enabledOverrides map[uint64]bool // userID → 课程覆盖已显式启用
	nextID           uint64
}

func (f *fakePolicyRepo) FindOrCreateDailyFallback(ctx context.Context, channelID uint64) (*domain.NotificationPolicy, error) {
	f.fallbackCalls++
	if f.fallbacks == nil {
		f.fallbacks = make(map[uint64]*domain.NotificationPolicy)
	}
	if p, ok := f.fallbacks[channelID]; ok {
		return p, nil
	}
	f.nextID++
	p := &domain.NotificationPolicy{
		ID:        f.nextID,
		ChannelID: channelID,
		Frequency: domain.FrequencyDaily,
	}
	f.fallbacks[channelID] = p
	return p, nil
}

func (f *fakePolicyRepo) OverrideEnabledFor(ctx context.Context, userID, contextID uint64, contextType string) (bool, error) {
	return f.enabledOverrides[userID], nil
}

type savedDelayed struct {
	shard string
	dm    *domain.DelayedMessage
}

type fakeDelayedRepo struct {
	saved []savedDelayed
}

func (f *fakeDelayedRepo) Save(ctx context.Context, shard string, dm *domain.DelayedMessage) error {
	f.saved = append(f.saved, savedDelayed{shard: shard, dm: dm})
	return nil
}

type fakeStreamRepo struct {
	items []*domain.Message
}

func (f *fakeStreamRepo) CreateFromMessage(ctx context.Context, msg *domain.Message) error {
	f.items = append(f.items, msg)
	return nil
}

type fakeFeatureRepo struct {
	account map[string]bool
	site    map[string]bool
}

func (f *fakeFeatureRepo) AccountEnabled(ctx context.Context, accountID uint64, feature string) (bool, error) {
	return f.account[feature], nil
}

func (f *fakeFeatureRepo) SiteEnabled(ctx context.Context, feature string) (bool, error) {
	return f.site[feature], nil
}

type renderCall struct {
	userID uint64
	kind   domain.RenderKind
	locale string
}

type fakeRenderer struct {
	calls []renderCall
}

func (f *fakeRenderer) Render(ctx context.Context, msg *domain.Message, kind domain.RenderKind, locale string) error {
	f.calls = append(f.calls, renderCall{userID: msg.UserID, kind: kind, locale: locale})
	msg.Body = fmt.Sprintf("%s body (%s)", msg.NotificationName, locale)
	if msg.Subject == "" {
		msg.Subject = msg.NotificationName
	}
	return nil
}

type fakeDispatcher struct {
	batches [][]*domain.Message
	err     error
}

func (f *fakeDispatcher) BatchDispatch(ctx context.Context, msgs []*domain.Message) error {
	f.batches = append(f.batches, msgs)
	return f.err
}

// testEnv 一次引擎测试的全部依赖
type testEnv struct {
	users      *fakeUserRepo
	messages   *fakeMessageRepo
	policies   *fakePolicyRepo
	delayed    *fakeDelayedRepo
	streams    *fakeStreamRepo
	features   *fakeFeatureRepo
	renderer   *fakeRenderer
	dispatcher *fakeDispatcher
}

func newTestEnv() *testEnv {
	return &testEnv{
		users:      &fakeUserRepo{users: make(map[uint64]*domain.User)},
		messages:   &fakeMessageRepo{counts: make(map[uint64]int64)},
		policies:   &fakePolicyRepo{enabledOverrides: make(map[uint64]bool)},
		delayed:    &fakeDelayedRepo{},
		streams:    &fakeStreamRepo{},
		features:   &fakeFeatureRepo{account: make(map[string]bool), site: make(map[string]bool)},
		renderer:   &fakeRenderer{},
		dispatcher: &fakeDispatcher{},
	}
}

func (e *testEnv) deps() CreatorDeps {
	return CreatorDeps{
		Users:      e.users,
		Messages:   e.messages,
		Policies:   e.policies,
		Delayed:    e.delayed,
		Streams:    e.streams,
		Features:   e.features,
		Renderer:   e.renderer,
		Dispatcher: e.dispatcher,
	}
}

func (e *testEnv) addUser(u *domain.User) *domain.User {
	e.users.users[u.ID] = u
	return u
}

// registeredUser 带一个活跃邮件渠道的已注册用户
func registeredUser(id uint64, email string) *domain.User {
	u := domain.NewUser(id, 0)
	u.Registered = true
	ch := &domain.CommunicationChannel{
		ID:       id*10 + 1,
		UserID:   id,
		Path:     email,
		PathType: domain.PathTypeEmail,
		Active:   true,
		User:     u,
	}
	u.Channels = []*domain.CommunicationChannel{ch}
	return u
}

func addChannel(u *domain.User, id uint64, pathType domain.PathType, path string) *domain.CommunicationChannel {
	ch := &domain.CommunicationChannel{
		ID:       id,
		UserID:   u.ID,
		Path:     path,
		PathType: pathType,
		Active:   true,
		User:     u,
	}
	u.Channels = append(u.Channels, ch)
	return ch
}

func addPolicy(ch *domain.CommunicationChannel, notificationID uint64, freq domain.Frequency) *domain.NotificationPolicy {
	nid := notificationID
	p := &domain.NotificationPolicy{
		ID:             uint64(len(ch.Policies) + 1),
		ChannelID:      ch.ID,
		NotificationID: &nid,
		Frequency:      freq,
		Channel:        ch,
	}
	ch.Policies = append(ch.Policies, p)
	return p
}

func addOverride(ch *domain.CommunicationChannel, notificationID, contextID uint64, contextType string, freq domain.Frequency) *domain.NotificationPolicyOverride {
	nid := notificationID
	o := &domain.NotificationPolicyOverride{
		ID:             uint64(len(ch.Overrides) + 1),
		UserID:         ch.UserID,
		ChannelID:      ch.ID,
		NotificationID: &nid,
		ContextID:      contextID,
		ContextType:    contextType,
		Frequency:      freq,
		WorkflowState:  domain.OverrideStateEnabled,
	}
	ch.Overrides = append(ch.Overrides, o)
	return o
}

func testNotification(id uint64, name string, summarizable bool, defaultFreq domain.Frequency) *domain.Notification {
	return &domain.Notification{
		ID:             id,
		Name:           name,
		Category:       "TestCategory",
		Subject:        name,
		IsSummarizable: summarizable,
		DefaultFreq:    defaultFreq,
	}
}

func testAsset(key string) *domain.BasicAsset {
	return &domain.BasicAsset{Key: key, Title: "Assignment One", URL: "https://example.test/a/1"}
}
