package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/internal/application/eventhandler"
	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/community/communitytest"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/messaging"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
	"github.com/seasons-hub/seasons-bot/pkg/retry"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test fixtures
// ─────────────────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 7, 22, 13, 0, 0, 0, timeutil.KST)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type noopStopper struct{}

func (noopStopper) Stop() bool { return true }

func fixedRand(n int) RandInt {
	return func(lo, hi int) int { return n }
}

func newStore(t *testing.T) *docstore.ProgressionStore {
	t.Helper()
	return docstore.NewProgressionStore(docstore.NewMemoryStore(), docstore.ProgressionConfig{
		Retrier: retry.New(
			retry.WithMaxAttempts(200),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithMaxDelay(5*time.Millisecond),
			retry.WithJitter(0.5),
		),
	})
}

func chatMessage(uid, channelID, text string) community.Message {
	return community.Message{
		ID:        "m-" + uid,
		GuildID:   "guild-1",
		ChannelID: channelID,
		Author:    community.Member{ID: uid, DisplayName: "Spring"},
		Text:      text,
	}
}

type recordFixture struct {
	store     *docstore.ProgressionStore
	platform  *communitytest.Platform
	publisher *recordingPublisher
	clock     *testClock
	handler   *RecordActivityHandler
}

func newRecordFixture(t *testing.T, gain int) *recordFixture {
	t.Helper()
	f := &recordFixture{
		store:     newStore(t),
		platform:  communitytest.New(),
		publisher: &recordingPublisher{},
		clock:     newTestClock(),
	}
	cfg := DefaultRecordActivityHandlerConfig()
	cfg.ThreadRoleChannelID = "thread-channel"
	cfg.ThreadRoleID = "thread-role"
	cfg.Now = f.clock.Now
	cfg.Rand = fixedRand(gain)
	f.handler = NewRecordActivityHandler(f.store, f.store, progression.MustDefaultCurve(), f.platform, nil, f.publisher, cfg, nil)
	return f
}

// ─────────────────────────────────────────────────────────────────────────────
// Record activity
// ─────────────────────────────────────────────────────────────────────────────

func TestRecordActivity_IgnoresFilteredMessages(t *testing.T) {
	f := newRecordFixture(t, 10)
	ctx := context.Background()

	bot := chatMessage("bot", "general", "beep")
	bot.Author.Bot = true
	webhook := chatMessage("u1", "general", "hi")
	webhook.WebhookID = "hook"
	direct := chatMessage("u1", "", "hi")
	direct.GuildID = ""
	blank := chatMessage("u1", "general", "   ")

	for _, msg := range []community.Message{bot, webhook, direct, blank} {
		_, err := f.handler.Handle(ctx, RecordActivityCommand{Message: msg})
		assert.True(t, IsIgnored(err))
	}

	users, err := f.store.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRecordActivity_CooldownLimitsGain(t *testing.T) {
	f := newRecordFixture(t, 10)
	ctx := context.Background()
	cmd := RecordActivityCommand{Message: chatMessage("u1", "general", "hello")}

	res, err := f.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Gain)

	f.clock.Advance(2 * time.Second)
	res, err = f.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Gain)
	assert.Equal(t, 2, res.MissionCount)

	f.clock.Advance(5 * time.Second)
	res, err = f.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Gain)

	user, err := f.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, user.Exp)
	assert.Empty(t, f.publisher.ofType(shared.EventLevelChanged))
}

func TestRecordActivity_TextMissionCompletesOnce(t *testing.T) {
	f := newRecordFixture(t, 1)
	ctx := context.Background()
	cmd := RecordActivityCommand{Message: chatMessage("u1", "general", "hello")}

	var completedAt int
	for i := 1; i <= 35; i++ {
		res, err := f.handler.Handle(ctx, cmd)
		require.NoError(t, err)
		if res.MissionCompleted {
			require.Zero(t, completedAt, "mission completed twice")
			completedAt = i
		}
		f.clock.Advance(10 * time.Second)
	}
	assert.Equal(t, progression.TextMissionRequired, completedAt)

	user, err := f.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 35+progression.TextMissionReward, user.Exp)

	events := f.publisher.ofType(shared.EventMissionCompleted)
	require.Len(t, events, 1)
	e := events[0].(progression.MissionCompletedEvent)
	assert.Equal(t, progression.MissionText, e.Kind)
	assert.Equal(t, "general", e.ChannelID)
}

func TestRecordActivity_PublishesLevelChange(t *testing.T) {
	f := newRecordFixture(t, 20)
	ctx := context.Background()
	require.NoError(t, f.store.PutUser(ctx, "u1", &progression.UserProgress{Exp: 190, Level: 1}))

	res, err := f.handler.Handle(ctx, RecordActivityCommand{Message: chatMessage("u1", "general", "hello")})
	require.NoError(t, err)
	assert.Equal(t, progression.LevelChange{Old: 1, New: 2}, res.Change)

	events := f.publisher.ofType(shared.EventLevelChanged)
	require.Len(t, events, 1)
	e := events[0].(progression.LevelChangedEvent)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, 210, e.Exp)
}

func TestRecordActivity_GrantsThreadRole(t *testing.T) {
	f := newRecordFixture(t, 5)
	ctx := context.Background()

	_, err := f.handler.Handle(ctx, RecordActivityCommand{Message: chatMessage("u1", "thread-channel", "hi")})
	require.NoError(t, err)

	holder := chatMessage("u2", "thread-channel", "hi")
	holder.Author.RoleIDs = []string{"thread-role"}
	_, err = f.handler.Handle(ctx, RecordActivityCommand{Message: holder})
	require.NoError(t, err)

	_, err = f.handler.Handle(ctx, RecordActivityCommand{Message: chatMessage("u3", "general", "hi")})
	require.NoError(t, err)

	calls := f.platform.CallsOf("AddRole")
	require.Len(t, calls, 1)
	assert.Equal(t, communitytest.Call{Op: "AddRole", Target: "u1", Value: "thread-role"}, calls[0])
}

func TestRecordActivity_ThreadRoleFailureDoesNotBlockXP(t *testing.T) {
	f := newRecordFixture(t, 5)
	f.platform.Fail("AddRole", errors.New("missing permissions"))

	res, err := f.handler.Handle(context.Background(), RecordActivityCommand{Message: chatMessage("u1", "thread-channel", "hi")})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Gain)
}

// A second level-up inside the sync window reaches the store but not the
// platform.
func TestRecordActivity_SyncDebouncedStoreStillUpdated(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	platform := communitytest.New()
	platform.AllMembers = []community.Member{{ID: "u1", DisplayName: "Spring"}}
	clock := newTestClock()

	tiers, err := progression.NewTierTable([]string{"tier1", "tier2", "tier3", "tier4", "tier5"})
	require.NoError(t, err)
	syncer := eventhandler.NewDebouncedSyncer(platform, eventhandler.SyncerConfig{
		Tiers:     tiers,
		AfterFunc: func(time.Duration, func()) eventhandler.Stopper { return noopStopper{} },
	})
	levels := eventhandler.NewOnLevelChangedHandler(syncer, platform, eventhandler.Channels{LevelUp: "levelup"}, nil)

	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Subscribe(shared.EventLevelChanged, levels.Handle))

	gain := 20
	cfg := DefaultRecordActivityHandlerConfig()
	cfg.Now = clock.Now
	cfg.Rand = func(lo, hi int) int { return gain }
	handler := NewRecordActivityHandler(store, store, progression.MustDefaultCurve(), platform, nil, bus, cfg, nil)

	require.NoError(t, store.PutUser(ctx, "u1", &progression.UserProgress{Exp: 190, Level: 1}))
	_, err = handler.Handle(ctx, RecordActivityCommand{Message: chatMessage("u1", "general", "hello")})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	gain = 200
	res, err := handler.Handle(ctx, RecordActivityCommand{Message: chatMessage("u1", "general", "hello again")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Change.New)

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, user.Level)

	nicks := platform.CallsOf("SetNickname")
	require.Len(t, nicks, 1)
	assert.Equal(t, "Spring [ Lv . 2 ]", nicks[0].Value)
	assert.Len(t, platform.CallsOf("SendMessage"), 2, "announcements are not debounced")
}

// ─────────────────────────────────────────────────────────────────────────────
// Hidden quests
// ─────────────────────────────────────────────────────────────────────────────

func TestHiddenQuest_ConcurrentMessagesProduceOneWinner(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	publisher := &recordingPublisher{}
	clock := newTestClock()
	defs := []quest.Definition{{ID: "sunrise", Keyword: "sunrise", Target: 3}}
	engine := NewHiddenQuestEngine(defs, store, publisher, clock.Now, nil)

	users := []string{"a", "b", "c", "d", "e"}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for _, uid := range users {
		for range 3 {
			wg.Add(1)
			go func(uid string) {
				defer wg.Done()
				out, err := engine.Handle(ctx, AdvanceHiddenQuestCommand{Message: chatMessage(uid, "general", "good sunrise")})
				assert.NoError(t, err)
				if out["sunrise"].Won {
					mu.Lock()
					wins = append(wins, uid)
					mu.Unlock()
				}
			}(uid)
		}
	}
	wg.Wait()

	require.Len(t, wins, 1)
	record, found, err := store.GetQuest(ctx, "sunrise")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, record.Completed)
	assert.Equal(t, wins[0], record.Winner)

	events := publisher.ofType(shared.EventQuestCompleted)
	require.Len(t, events, 1)
	assert.Equal(t, wins[0], events[0].(quest.CompletedEvent).Winner)
}

func TestHiddenQuest_OnlyMatchingMessagesCount(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	clock := newTestClock()
	defs := []quest.Definition{{ID: "q1", Keyword: "moon", Target: 2}}
	engine := NewHiddenQuestEngine(defs, store, nil, clock.Now, nil)

	out, err := engine.Handle(ctx, AdvanceHiddenQuestCommand{Message: chatMessage("u1", "general", "no match")})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = engine.Handle(ctx, AdvanceHiddenQuestCommand{Message: chatMessage("u1", "general", "full moon")})
	require.NoError(t, err)
	assert.Equal(t, QuestOutcome{Outcome: quest.OutcomeCounted, Count: 1}, out["q1"])

	out, err = engine.Handle(ctx, AdvanceHiddenQuestCommand{Message: chatMessage("u1", "general", "moon again")})
	require.NoError(t, err)
	assert.True(t, out["q1"].Won)

	out, err = engine.Handle(ctx, AdvanceHiddenQuestCommand{Message: chatMessage("u2", "general", "moon")})
	require.NoError(t, err)
	assert.Equal(t, quest.OutcomeNoop, out["q1"].Outcome)
	assert.False(t, out["q1"].Won)
}

func TestHiddenQuest_Reset(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	clock := newTestClock()
	defs := []quest.Definition{{ID: "q1", Keyword: "moon", Target: 1}}
	engine := NewHiddenQuestEngine(defs, store, nil, clock.Now, nil)

	assert.ErrorIs(t, engine.Reset(ctx, "missing"), shared.ErrQuestNotFound)

	out, err := engine.Handle(ctx, AdvanceHiddenQuestCommand{Message: chatMessage("u1", "general", "moon")})
	require.NoError(t, err)
	require.True(t, out["q1"].Won)

	require.NoError(t, engine.Reset(ctx, "q1"))
	record, found, err := store.GetQuest(ctx, "q1")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, record.Started())
	assert.False(t, record.Completed)
	assert.Empty(t, record.Winner)

	out, err = engine.Handle(ctx, AdvanceHiddenQuestCommand{Message: chatMessage("u2", "general", "moon")})
	require.NoError(t, err)
	assert.True(t, out["q1"].Won)
}

// ─────────────────────────────────────────────────────────────────────────────
// Check-in
// ─────────────────────────────────────────────────────────────────────────────

func TestCheckIn_StreakAndRemaining(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	publisher := &recordingPublisher{}
	clock := newTestClock()
	handler := NewCheckInHandler(store, store, progression.MustDefaultCurve(), publisher, clock.Now, nil)
	cmd := CheckInCommand{Member: community.Member{ID: "u1", DisplayName: "Spring"}}

	res, err := handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.First)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, 100, res.Gain)

	res, err = handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCheckedIn)
	assert.Equal(t, 11*time.Hour, res.Remaining)

	clock.Advance(24 * time.Hour)
	res, err = handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
	assert.Equal(t, 110, res.Gain)
	assert.Equal(t, progression.LevelChange{Old: 1, New: 2}, res.Change)

	clock.Advance(48 * time.Hour)
	res, err = handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.StreakBroken)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, 3, res.TotalDays)

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 310, user.Exp)
	assert.Len(t, publisher.ofType(shared.EventLevelChanged), 3)
}

// ─────────────────────────────────────────────────────────────────────────────
// Grant / deduct
// ─────────────────────────────────────────────────────────────────────────────

func TestGrantXP(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	publisher := &recordingPublisher{}
	clock := newTestClock()
	handler := NewGrantXPHandler(store, progression.MustDefaultCurve(), publisher, clock.Now, nil)
	member := community.Member{ID: "u1", DisplayName: "Spring"}

	_, err := handler.Handle(ctx, GrantXPCommand{Member: member, Amount: 0})
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	res, err := handler.Handle(ctx, GrantXPCommand{Member: member, Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Exp)
	assert.Empty(t, publisher.ofType(shared.EventLevelChanged), "no level movement, no sync")

	res, err = handler.Handle(ctx, GrantXPCommand{Member: member, Amount: 250})
	require.NoError(t, err)
	assert.Equal(t, 260, res.Exp)
	assert.True(t, res.Change.Increased())
	assert.Len(t, publisher.ofType(shared.EventLevelChanged), 1)

	res, err = handler.Handle(ctx, GrantXPCommand{Member: member, Amount: 1000, Mode: ModeDeduct})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exp)
	assert.Equal(t, progression.LevelChange{Old: 2, New: 1}, res.Change)
	assert.Len(t, publisher.ofType(shared.EventLevelChanged), 2)

	res, err = handler.Handle(ctx, GrantXPCommand{Member: member, Amount: 5, Mode: ModeDeduct})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exp)
	assert.Len(t, publisher.ofType(shared.EventLevelChanged), 3, "deductions always resync")
}

// ─────────────────────────────────────────────────────────────────────────────
// Suggestions
// ─────────────────────────────────────────────────────────────────────────────

func newSuggestFixture(t *testing.T) (*SuggestHandler, *communitytest.Platform, *docstore.ProgressionStore, *testClock) {
	t.Helper()
	store := newStore(t)
	platform := communitytest.New()
	clock := newTestClock()
	handler := NewSuggestHandler(platform, store, SuggestChannels{Anonymous: "anon", Named: "named"}, clock.Now, nil)
	return handler, platform, store, clock
}

var author = community.Member{
	ID:          "u1",
	Username:    "spring_acct",
	DisplayName: "Spring",
	JoinedAt:    time.Date(2024, 3, 1, 9, 0, 0, 0, timeutil.KST),
}

func TestSuggest_RejectsLongContent(t *testing.T) {
	handler, platform, _, _ := newSuggestFixture(t)

	err := handler.Handle(context.Background(), SuggestCommand{Author: author, Content: strings.Repeat("가", MaxSuggestionLength+1)})
	assert.ErrorIs(t, err, ErrSuggestionTooLong)

	require.NoError(t, handler.Handle(context.Background(), SuggestCommand{Author: author, Content: strings.Repeat("가", MaxSuggestionLength)}))
	assert.Len(t, platform.CallsOf("SendMessage"), 1)
}

func TestSuggest_Named(t *testing.T) {
	handler, platform, _, _ := newSuggestFixture(t)

	require.NoError(t, handler.Handle(context.Background(), SuggestCommand{Author: author, Content: "more events"}))

	posts := platform.CallsOf("SendMessage")
	require.Len(t, posts, 1)
	assert.Equal(t, "named", posts[0].Target)
	assert.Contains(t, posts[0].Value, "실명 건의 (2025-07-22 13:00)")
	assert.Contains(t, posts[0].Value, "서버원 Spring 님")
	assert.Empty(t, platform.CallsOf("SendDirect"))
}

func TestSuggest_AnonymousNotifiesOwner(t *testing.T) {
	handler, platform, store, clock := newSuggestFixture(t)
	ctx := context.Background()

	user := progression.NewUserProgress()
	user.Touch(clock.Now().Add(-72 * time.Hour))
	require.NoError(t, store.PutUser(ctx, "u1", user))

	require.NoError(t, handler.Handle(ctx, SuggestCommand{Author: author, Anonymous: true, Content: "quiet hours"}))

	posts := platform.CallsOf("SendMessage")
	require.Len(t, posts, 1)
	assert.Equal(t, "anon", posts[0].Target)
	assert.NotContains(t, posts[0].Value, "Spring")
	assert.Contains(t, posts[0].Value, "알 수 없는 서버원")

	dms := platform.CallsOf("SendDirect")
	require.Len(t, dms, 1)
	assert.Equal(t, "owner", dms[0].Target)
	for _, want := range []string{"spring_acct", "Spring", "2024-03-01 09:00", "3일 전 (2025.07.19 13:00)", "quiet hours"} {
		assert.Contains(t, dms[0].Value, want)
	}
}

func TestSuggest_OwnerDMFailureIgnored(t *testing.T) {
	handler, platform, _, _ := newSuggestFixture(t)
	platform.Fail("SendDirect", fmt.Errorf("dm closed"))

	err := handler.Handle(context.Background(), SuggestCommand{Author: author, Anonymous: true, Content: "x"})
	require.NoError(t, err)

	dms := platform.CallsOf("SendDirect")
	require.Len(t, dms, 1)
	assert.Contains(t, dms[0].Value, "기록 없음")
}
