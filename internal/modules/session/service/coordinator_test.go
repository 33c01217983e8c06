package service_test

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analyticsservice "focusguard/internal/modules/analytics/service"
	sessionoutadapter "focusguard/internal/modules/session/adapter/out"
	"focusguard/internal/modules/session/domain"
	"focusguard/internal/modules/session/service"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/kv"
	"focusguard/internal/platform/retry"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type recordingScheduler struct {
	mu      sync.Mutex
	armed   map[string]int
	cleared []string
	failArm bool
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{armed: map[string]int{}}
}

func (s *recordingScheduler) Arm(name string, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failArm {
		return errors.New("alarm quota exceeded")
	}
	s.armed[name] = minutes
	return nil
}

func (s *recordingScheduler) Clear(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, name)
	_, ok := s.armed[name]
	delete(s.armed, name)
	return ok
}

func (s *recordingScheduler) minutes(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.armed[name]
	return m, ok
}

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []int
	offline   bool
}

func (n *fakeNotifier) NotifyTimeUp(_ context.Context, tabID int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline {
		return apperrors.ErrTabUnreachable
	}
	n.delivered = append(n.delivered, tabID)
	return nil
}

type harness struct {
	mem      *kv.MemoryStore
	store    kv.Store
	clock    *fakeClock
	sched    *recordingScheduler
	notifier *fakeNotifier
	recorder *analyticsservice.Recorder
	coord    *service.Coordinator
}

func newHarness(t *testing.T, opts service.Options) *harness {
	t.Helper()
	h := &harness{
		mem:      kv.NewMemoryStore(),
		clock:    &fakeClock{now: t0},
		sched:    newRecordingScheduler(),
		notifier: &fakeNotifier{},
	}
	h.store = kv.WithRetry(h.mem, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	h.recorder = analyticsservice.NewRecorder(h.store, h.clock, nil)
	h.coord = h.newCoordinator(opts)
	return h
}

// newCoordinator simulates a cold start over the same durable store.
func (h *harness) newCoordinator(opts service.Options) *service.Coordinator {
	return service.NewCoordinator(sessionoutadapter.NewKVStateStore(h.store), h.clock, h.sched, h.notifier, h.recorder, opts)
}

func (h *harness) persistedTable(t *testing.T) map[string]domain.Session {
	t.Helper()
	table := map[string]domain.Session{}
	_, err := kv.GetJSON(context.Background(), h.mem, domain.KeyActiveSessions, &table)
	require.NoError(t, err)
	return table
}

func (h *harness) timeSpent(t *testing.T, site string) int64 {
	t.Helper()
	spent, err := h.recorder.TimeSpent(context.Background())
	require.NoError(t, err)
	return spent[site]
}

func intention(site, text string, minutes float64) domain.IntentionInput {
	return domain.IntentionInput{Site: site, Intention: text, DurationMinutes: minutes}
}

func TestTableMatchesStoreAfterEveryOperation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	check := func() {
		t.Helper()
		persisted := h.persistedTable(t)
		live := h.coord.ActiveSessions(ctx)
		require.Len(t, persisted, len(live))
		for _, s := range live {
			assert.Equal(t, s, persisted[tabKey(s.TabID)])
		}
	}

	require.NoError(t, h.coord.SetIntention(ctx, 1, intention("YouTube", "a", 10)))
	check()
	require.NoError(t, h.coord.SetIntention(ctx, 2, intention("WhatsApp", "b", 5)))
	check()
	require.NoError(t, h.coord.OnTabClosed(ctx, 1))
	check()
	h.clock.Advance(5 * time.Minute)
	require.NoError(t, h.coord.OnWake(ctx, 2))
	check()
	assert.Empty(t, h.coord.ActiveSessions(ctx))
}

func tabKey(tabID int) string {
	return strconv.Itoa(tabID)
}

func TestSetIntentionRejectsBadDurationsWithoutMutation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	for _, minutes := range []float64{0, 481, -5, math.NaN()} {
		err := h.coord.SetIntention(ctx, 1, intention("YouTube", "learn", minutes))
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		assert.Equal(t, "Invalid duration", apperrors.Message(err))
	}
	_, ok := h.coord.GetActiveSession(ctx, 1)
	assert.False(t, ok)
	assert.Empty(t, h.persistedTable(t))
	_, armed := h.sched.minutes(domain.WakeName(1))
	assert.False(t, armed)
}

func TestSetIntentionStoresEscapedText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	require.NoError(t, h.coord.SetIntention(ctx, 4, intention("YouTube", "<script>alert(1)</script>", 5)))
	s, ok := h.coord.GetActiveSession(ctx, 4)
	require.True(t, ok)
	assert.NotContains(t, s.Intention, "<")
	assert.NotContains(t, s.Intention, ">")
	assert.Contains(t, s.Intention, "&lt;script&gt;")
}

func TestSetIntentionRollsBackOnStorageFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	require.NoError(t, h.coord.Initialize(ctx))

	h.mem.FailWrites(3)
	err := h.coord.SetIntention(ctx, 3, intention("YouTube", "learn", 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorage))
	assert.Equal(t, "Storage transaction failed after retries", apperrors.Message(err))

	_, ok := h.coord.GetActiveSession(ctx, 3)
	assert.False(t, ok, "in-memory table must be rolled back")
	assert.Empty(t, h.persistedTable(t))
	assert.True(t, h.coord.IsPromptOwed(ctx, "YouTube", 9), "recent intention must be rolled back")
	_, armed := h.sched.minutes(domain.WakeName(3))
	assert.False(t, armed)
}

func TestSetIntentionSurvivesTransientStorageFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	require.NoError(t, h.coord.Initialize(ctx))

	h.mem.FailWrites(2)
	require.NoError(t, h.coord.SetIntention(ctx, 3, intention("YouTube", "learn", 10)))
	assert.Contains(t, h.persistedTable(t), "3")
}

func TestOnWakeIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	require.NoError(t, h.coord.SetIntention(ctx, 5, intention("YouTube", "learn", 1)))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.coord.OnWake(ctx, 5))
	firstTable := h.persistedTable(t)
	firstSpent := h.timeSpent(t, "YouTube")

	require.NoError(t, h.coord.OnWake(ctx, 5))
	assert.Equal(t, firstTable, h.persistedTable(t))
	assert.Equal(t, firstSpent, h.timeSpent(t, "YouTube"))
	_, ok := h.coord.GetActiveSession(ctx, 5)
	assert.False(t, ok)

	require.NoError(t, h.coord.OnWake(ctx, 9))
	assert.Equal(t, []int{5}, h.notifier.delivered)
}

func TestStaleWakeKeepsExtendedSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	require.NoError(t, h.coord.SetIntention(ctx, 7, intention("YouTube", "short", 1)))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.coord.SetIntention(ctx, 7, intention("YouTube", "longer", 30)))
	spentAfterReplace := h.timeSpent(t, "YouTube")

	// the timer for the first session fired before the replacement took the lock
	h.coord.HandleWake(domain.WakeName(7))

	s, ok := h.coord.GetActiveSession(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, "longer", s.Intention)
	assert.Empty(t, h.notifier.delivered)
	assert.Equal(t, spentAfterReplace, h.timeSpent(t, "YouTube"))
	minutes, armed := h.sched.minutes(domain.WakeName(7))
	require.True(t, armed)
	assert.Equal(t, 30, minutes)
	assert.Contains(t, h.persistedTable(t), tabKey(7))
}

func TestOnWakeRearmsWhenExpiryCannotBePersisted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	require.NoError(t, h.coord.SetIntention(ctx, 4, intention("YouTube", "learn", 1)))
	h.clock.Advance(time.Minute)
	h.sched.Clear(domain.WakeName(4))
	h.mem.FailWrites(3)

	err := h.coord.OnWake(ctx, 4)
	require.ErrorIs(t, err, apperrors.ErrStorage)
	_, ok := h.coord.GetActiveSession(ctx, 4)
	require.True(t, ok)
	minutes, armed := h.sched.minutes(domain.WakeName(4))
	require.True(t, armed)
	assert.Equal(t, 1, minutes)

	require.NoError(t, h.coord.OnWake(ctx, 4))
	_, ok = h.coord.GetActiveSession(ctx, 4)
	assert.False(t, ok)
}

func TestOnWakeIgnoresInvalidTabAndClearsUndeliveredWake(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	require.NoError(t, h.coord.OnWake(ctx, 0))
	require.NoError(t, h.coord.OnWake(ctx, -3))
	assert.Empty(t, h.notifier.delivered)

	require.NoError(t, h.coord.SetIntention(ctx, 6, intention("YouTube", "learn", 2)))
	h.notifier.offline = true
	h.clock.Advance(2 * time.Minute)
	require.NoError(t, h.coord.OnWake(ctx, 6))
	assert.Contains(t, h.sched.cleared, domain.WakeName(6))
	_, ok := h.coord.GetActiveSession(ctx, 6)
	assert.False(t, ok)
}

func TestHandleWakeParsesRegistrationName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	require.NoError(t, h.coord.SetIntention(ctx, 12, intention("YouTube", "learn", 1)))

	h.coord.HandleWake("bogus")
	h.coord.HandleWake("session-0")
	_, ok := h.coord.GetActiveSession(ctx, 12)
	require.True(t, ok)

	h.clock.Advance(time.Minute)
	h.coord.HandleWake(domain.WakeName(12))
	_, ok = h.coord.GetActiveSession(ctx, 12)
	assert.False(t, ok)
	assert.Equal(t, []int{12}, h.notifier.delivered)
}

func seedSession(t *testing.T, h *harness, s domain.Session) {
	t.Helper()
	table := map[string]any{tabKey(s.TabID): s}
	require.NoError(t, kv.SetJSON(context.Background(), h.mem, domain.KeyActiveSessions, table))
}

func TestRecoveryDropsSessionsThatExpiredOffline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	seedSession(t, h, domain.Session{
		TabID: 7, Site: "YouTube", Intention: "x", Version: 1,
		StartTime:  t0.Add(-10 * time.Minute).UnixMilli(),
		DurationMs: (5 * time.Minute).Milliseconds(),
	})

	require.NoError(t, h.coord.Initialize(ctx))
	_, ok := h.coord.GetActiveSession(ctx, 7)
	assert.False(t, ok)
	assert.Empty(t, h.persistedTable(t))
	_, armed := h.sched.minutes(domain.WakeName(7))
	assert.False(t, armed)
}

func TestRecoveryRearmsRemainingTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	seedSession(t, h, domain.Session{
		TabID: 8, Site: "YouTube", Intention: "x", Version: 1,
		StartTime:  t0.Add(-2 * time.Minute).UnixMilli(),
		DurationMs: (10 * time.Minute).Milliseconds(),
	})

	require.NoError(t, h.coord.Initialize(ctx))
	_, ok := h.coord.GetActiveSession(ctx, 8)
	assert.True(t, ok)
	minutes, armed := h.sched.minutes(domain.WakeName(8))
	require.True(t, armed)
	assert.Equal(t, 8, minutes)

	var marker domain.StateMarker
	found, err := kv.GetJSON(ctx, h.mem, domain.KeySessionState, &marker)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, marker.Initialized)
}

func TestRecoveryDropsMalformedRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	raw := `{
		"9": {"tabId":9,"site":"YouTube","intention":"x","startTime":` + strconv.FormatInt(t0.UnixMilli(), 10) + `,"durationMs":600000,"version":1},
		"10": {"tabId":10,"site":"YouTube","startTime":"later","durationMs":600000},
		"nope": {"tabId":11,"site":"YouTube","startTime":1,"durationMs":1}
	}`
	require.NoError(t, h.mem.Set(ctx, map[string][]byte{kv.Key(domain.KeyActiveSessions): []byte(raw)}))

	require.NoError(t, h.coord.Initialize(ctx))
	live := h.coord.ActiveSessions(ctx)
	require.Len(t, live, 1)
	assert.Equal(t, 9, live[0].TabID)
	assert.Len(t, h.persistedTable(t), 1)
}

func TestInitializeFailsOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	h.mem.FailReads(10)

	require.NoError(t, h.coord.Initialize(ctx))
	status := h.coord.Status(ctx)
	assert.True(t, status.Initialized)
	assert.Empty(t, status.Sessions)
	assert.True(t, h.coord.IsPromptOwed(ctx, "YouTube", 1))
}

func TestLazyInitializationOnColdStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	require.NoError(t, h.coord.SetIntention(ctx, 2, intention("YouTube", "learn", 30)))

	h.clock.Advance(time.Minute)
	cold := h.newCoordinator(service.Options{})
	s, ok := cold.GetActiveSession(ctx, 2)
	require.True(t, ok)
	assert.Equal(t, "learn", s.Intention)
	minutes, _ := h.sched.minutes(domain.WakeName(2))
	assert.Equal(t, 29, minutes)
	assert.False(t, cold.IsPromptOwed(ctx, "YouTube", 3))
}

func TestCooldownSuppressesPromptForFiveMinutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	assert.True(t, h.coord.IsPromptOwed(ctx, "YouTube", 1))
	require.NoError(t, h.coord.SetIntention(ctx, 1, intention("YouTube", "learn", 30)))
	assert.False(t, h.coord.IsPromptOwed(ctx, "YouTube", 1))
	assert.False(t, h.coord.IsPromptOwed(ctx, "YouTube", 2))

	h.clock.Advance(4*time.Minute + 59*time.Second)
	assert.False(t, h.coord.IsPromptOwed(ctx, "YouTube", 2))

	h.clock.Advance(time.Second)
	assert.True(t, h.coord.IsPromptOwed(ctx, "YouTube", 2))
	assert.False(t, h.coord.IsPromptOwed(ctx, "YouTube", 1), "tab 1 is still mid-session")
	assert.True(t, h.coord.IsPromptOwed(ctx, "WhatsApp", 1))
}

func TestStrictCooldownPromptsAfterExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	lenient := newHarness(t, service.Options{})
	require.NoError(t, lenient.coord.SetIntention(ctx, 1, intention("YouTube", "learn", 1)))
	lenient.clock.Advance(time.Minute)
	require.NoError(t, lenient.coord.OnWake(ctx, 1))
	assert.False(t, lenient.coord.IsPromptOwed(ctx, "YouTube", 1))

	strict := newHarness(t, service.Options{StrictCooldown: true})
	require.NoError(t, strict.coord.SetIntention(ctx, 1, intention("YouTube", "learn", 1)))
	strict.clock.Advance(time.Minute)
	require.NoError(t, strict.coord.OnWake(ctx, 1))
	assert.True(t, strict.coord.IsPromptOwed(ctx, "YouTube", 1))
}

func TestOnTabClosedCreditsElapsedTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	require.NoError(t, h.coord.OnTabClosed(ctx, 99))

	require.NoError(t, h.coord.SetIntention(ctx, 3, intention("WhatsApp", "reply", 10)))
	h.clock.Advance(3 * time.Minute)
	require.NoError(t, h.coord.OnTabClosed(ctx, 3))
	assert.Equal(t, int64(180_000), h.timeSpent(t, "WhatsApp"))
	assert.Contains(t, h.sched.cleared, domain.WakeName(3))
	_, ok := h.coord.GetActiveSession(ctx, 3)
	assert.False(t, ok)
}

func TestReplacingSessionCreditsPreviousOne(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	require.NoError(t, h.coord.SetIntention(ctx, 3, intention("YouTube", "first", 10)))
	h.clock.Advance(4 * time.Minute)
	require.NoError(t, h.coord.SetIntention(ctx, 3, intention("YouTube", "extend", 5)))
	assert.Equal(t, int64(240_000), h.timeSpent(t, "YouTube"))

	s, ok := h.coord.GetActiveSession(ctx, 3)
	require.True(t, ok)
	assert.Equal(t, "extend", s.Intention)
	assert.Equal(t, int64(300_000), s.DurationMs)
	minutes, _ := h.sched.minutes(domain.WakeName(3))
	assert.Equal(t, 5, minutes)

	entries, err := h.recorder.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestArmFailureDoesNotFailSetIntention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	h.sched.failArm = true

	require.NoError(t, h.coord.SetIntention(ctx, 3, intention("YouTube", "learn", 10)))
	_, ok := h.coord.GetActiveSession(ctx, 3)
	assert.True(t, ok)
}

func TestConcurrentOperationsKeepTableConsistent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})

	var wg sync.WaitGroup
	for tab := 1; tab <= 20; tab++ {
		wg.Add(1)
		go func(tab int) {
			defer wg.Done()
			_ = h.coord.SetIntention(ctx, tab, intention("YouTube", "learn", 10))
			if tab%2 == 0 {
				_ = h.coord.OnTabClosed(ctx, tab)
			}
		}(tab)
	}
	wg.Wait()

	live := h.coord.ActiveSessions(ctx)
	assert.Len(t, live, 10)
	assert.Len(t, h.persistedTable(t), 10)
}

func TestEndToEndScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, service.Options{})
	before := h.timeSpent(t, "YouTube")

	assert.True(t, h.coord.IsPromptOwed(ctx, "YouTube", 7))
	require.NoError(t, h.coord.SetIntention(ctx, 7, intention("YouTube", "Learn X", 15)))

	s, ok := h.coord.GetActiveSession(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, int64(900_000), s.DurationMs)
	minutes, _ := h.sched.minutes(domain.WakeName(7))
	assert.Equal(t, 15, minutes)

	h.clock.Advance(15 * time.Minute)
	require.NoError(t, h.coord.OnWake(ctx, 7))

	_, ok = h.coord.GetActiveSession(ctx, 7)
	assert.False(t, ok)
	assert.Equal(t, before+900_000, h.timeSpent(t, "YouTube"))
	assert.Equal(t, []int{7}, h.notifier.delivered)
}
