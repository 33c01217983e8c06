package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"focusguard/internal/modules/session/domain"
	sessionout "focusguard/internal/modules/session/port/out"
	"focusguard/internal/platform/clock"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/metrics"
)

const DefaultCooldown = 5 * time.Minute

type Options struct {
	Cooldown time.Duration
	// StrictCooldown forgets a site's recent intention when its session
	// expires, so revisiting right after time is up prompts again.
	StrictCooldown bool
	Logger         *slog.Logger
}

// Coordinator owns the active-session table. One mutex guards every
// operation for its whole duration, durable round trip included.
type Coordinator struct {
	mu sync.Mutex

	store     sessionout.StateStore
	clock     clock.Clock
	scheduler sessionout.Scheduler
	notifier  sessionout.Notifier
	recorder  sessionout.Recorder
	logger    *slog.Logger

	cooldown time.Duration
	strict   bool

	initialized bool
	lastUpdate  int64
	table       domain.Table
	recent      domain.RecentMemory
}

func NewCoordinator(store sessionout.StateStore, clk clock.Clock, scheduler sessionout.Scheduler, notifier sessionout.Notifier, recorder sessionout.Recorder, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Coordinator{
		store:     store,
		clock:     clk,
		scheduler: scheduler,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger,
		cooldown:  cooldown,
		strict:    opts.StrictCooldown,
		table:     domain.Table{},
		recent:    domain.RecentMemory{},
	}
}

func (c *Coordinator) now() int64 {
	return clock.Millis(c.clock.Now())
}

// Initialize loads persisted state and runs recovery. A load failure starts
// the coordinator empty rather than failing.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initializeLocked(ctx)
	return nil
}

func (c *Coordinator) ensureLocked(ctx context.Context) {
	if !c.initialized {
		c.initializeLocked(ctx)
	}
}

func (c *Coordinator) initializeLocked(ctx context.Context) {
	now := c.now()
	snap, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("load session state failed, starting empty", slog.String("error", err.Error()))
		c.table = domain.Table{}
		c.recent = domain.RecentMemory{}
		c.initialized = true
		c.lastUpdate = now
		metrics.ActiveSessions.Set(0)
		return
	}

	keys := make([]string, 0, len(snap.Sessions))
	for key := range snap.Sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	table := domain.Table{}
	for _, key := range keys {
		s, err := domain.ParseSession(key, snap.Sessions[key])
		if err != nil {
			metrics.RecoveryAnomaliesTotal.Inc()
			c.logger.Debug("dropping malformed session", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if s.Expired(now) {
			metrics.SessionsEndedTotal.WithLabelValues("expired_offline").Inc()
			c.logger.Info("session expired while offline", slog.Int("tab_id", s.TabID), slog.String("site", s.Site))
			continue
		}
		table[s.TabID] = s
		minutes := domain.WakeMinutes(s.Remaining(now))
		c.arm(s.TabID, minutes)
		metrics.WakesRearmedTotal.Inc()
		c.logger.Info("wake re-armed", slog.Int("tab_id", s.TabID), slog.Int("minutes", minutes))
	}

	recent := snap.Recent
	if recent == nil {
		recent = domain.RecentMemory{}
	}
	c.table = table
	c.recent = recent
	c.initialized = true
	c.lastUpdate = now
	metrics.ActiveSessions.Set(float64(len(table)))

	if err := c.persistLocked(ctx); err != nil {
		c.logger.Warn("persist recovered state failed", slog.String("error", err.Error()))
	}
}

func (c *Coordinator) persistLocked(ctx context.Context) error {
	marker := domain.StateMarker{Initialized: c.initialized, LastUpdate: c.now()}
	if err := c.store.Save(ctx, c.table, c.recent, marker); err != nil {
		return err
	}
	c.lastUpdate = marker.LastUpdate
	return nil
}

func (c *Coordinator) arm(tabID, minutes int) {
	name := domain.WakeName(tabID)
	if err := c.scheduler.Arm(name, minutes); err != nil {
		metrics.SchedulingErrorsTotal.Inc()
		serr := &apperrors.SchedulingError{Name: name, Err: err}
		c.logger.Error("arm wake failed", slog.String("error", serr.Error()))
	}
}

// IsPromptOwed reports whether the tab should be asked for an intention
// before using site. It has no side effects beyond lazy initialization.
func (c *Coordinator) IsPromptOwed(ctx context.Context, site string, tabID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(ctx)

	if s, ok := c.table[tabID]; ok && s.Site == site {
		return false
	}
	if r, ok := c.recent[site]; ok && c.now()-r.Timestamp < c.cooldown.Milliseconds() {
		return false
	}
	return true
}

// SetIntention validates the request, then records a new session for the tab
// as a guarded transaction: if the durable write fails the in-memory table
// and recent memory are restored and the storage error is returned.
func (c *Coordinator) SetIntention(ctx context.Context, tabID int, in domain.IntentionInput) error {
	valid, err := domain.ValidateIntention(in)
	if err != nil {
		c.logger.Warn("set intention rejected", slog.Int("tab_id", tabID), slog.String("error", err.Error()))
		return err
	}
	if tabID <= 0 {
		return apperrors.NewValidationError("tabId", "Invalid tab")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(ctx)

	now := c.now()
	session := domain.Session{
		TabID:      tabID,
		Site:       valid.Site,
		Intention:  valid.Intention,
		StartTime:  now,
		DurationMs: valid.DurationMs,
		Version:    domain.SchemaVersion,
	}
	prev, replaced := c.table[tabID]

	tableSnap := c.table.Clone()
	recentSnap := c.recent.Clone()
	c.table[tabID] = session
	c.recent[valid.Site] = domain.RecentIntention{Text: valid.Intention, Timestamp: now}

	if err := c.persistLocked(ctx); err != nil {
		c.table = tableSnap
		c.recent = recentSnap
		c.logger.Error("set intention rolled back", slog.Int("tab_id", tabID), slog.String("error", err.Error()))
		return fmt.Errorf("set intention: %w", err)
	}
	metrics.ActiveSessions.Set(float64(len(c.table)))

	if replaced {
		metrics.SessionsEndedTotal.WithLabelValues("replaced").Inc()
		c.credit(ctx, prev.Site, prev.Credited(now))
	}
	if err := c.recorder.LogSession(ctx, valid.Site, valid.Intention, valid.DurationMs, tabID); err != nil {
		c.logger.Warn("append session log failed", slog.String("error", err.Error()))
	}
	c.arm(tabID, valid.Minutes)
	c.logger.Info("session started",
		slog.Int("tab_id", tabID),
		slog.String("site", valid.Site),
		slog.Int("minutes", valid.Minutes),
	)
	return nil
}

func (c *Coordinator) credit(ctx context.Context, site string, ms int64) {
	if err := c.recorder.AddTime(ctx, site, ms); err != nil {
		c.logger.Warn("credit time failed", slog.String("site", site), slog.String("error", err.Error()))
	}
}

// GetActiveSession returns the tab's session, if any.
func (c *Coordinator) GetActiveSession(ctx context.Context, tabID int) (domain.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(ctx)
	s, ok := c.table[tabID]
	return s, ok
}

// HandleWake is the scheduler callback for a fired wake registration.
func (c *Coordinator) HandleWake(name string) {
	tabID, ok := domain.ParseWakeName(name)
	if !ok {
		c.logger.Warn("ignoring wake with invalid name", slog.String("name", name))
		return
	}
	if err := c.OnWake(context.Background(), tabID); err != nil {
		c.logger.Error("wake handling failed", slog.Int("tab_id", tabID), slog.String("error", err.Error()))
	}
}

// OnWake expires the tab's session once it is due: the presentation layer is
// told time is up, the session is removed and its allotted time credited. A
// tab without a session is a no-op; a session not yet due is re-armed.
func (c *Coordinator) OnWake(ctx context.Context, tabID int) error {
	if tabID <= 0 {
		c.logger.Warn("ignoring wake for invalid tab", slog.Int("tab_id", tabID))
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(ctx)

	s, ok := c.table[tabID]
	if !ok {
		return nil
	}
	now := c.now()
	// A wake that lost the race with a newer setIntention finds a session
	// that is not due yet.
	if !s.Expired(now) {
		c.logger.Debug("wake before expiry, re-arming", slog.Int("tab_id", tabID))
		c.arm(tabID, domain.WakeMinutes(s.Remaining(now)))
		return nil
	}

	if err := c.notifier.NotifyTimeUp(ctx, tabID); err != nil {
		c.logger.Debug("time up not delivered", slog.Int("tab_id", tabID), slog.String("error", err.Error()))
		c.scheduler.Clear(domain.WakeName(tabID))
	}

	tableSnap := c.table.Clone()
	recentSnap := c.recent.Clone()
	delete(c.table, tabID)
	if c.strict {
		delete(c.recent, s.Site)
	}
	if err := c.persistLocked(ctx); err != nil {
		c.table = tableSnap
		c.recent = recentSnap
		c.arm(tabID, domain.WakeMinutes(s.Remaining(c.now())))
		return fmt.Errorf("expire session: %w", err)
	}
	metrics.ActiveSessions.Set(float64(len(c.table)))
	metrics.SessionsEndedTotal.WithLabelValues("wake").Inc()
	c.credit(ctx, s.Site, s.Credited(c.now()))
	c.logger.Info("session expired", slog.Int("tab_id", tabID), slog.String("site", s.Site))
	return nil
}

// OnTabClosed ends the tab's session, crediting the wall time it ran.
func (c *Coordinator) OnTabClosed(ctx context.Context, tabID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(ctx)

	if err := c.store.DeleteNavigation(ctx, tabID); err != nil {
		c.logger.Debug("clear navigation failed", slog.Int("tab_id", tabID), slog.String("error", err.Error()))
	}
	s, ok := c.table[tabID]
	if !ok {
		return nil
	}
	tableSnap := c.table.Clone()
	delete(c.table, tabID)
	c.scheduler.Clear(domain.WakeName(tabID))
	if err := c.persistLocked(ctx); err != nil {
		c.table = tableSnap
		c.arm(tabID, domain.WakeMinutes(s.Remaining(c.now())))
		return fmt.Errorf("close tab: %w", err)
	}
	metrics.ActiveSessions.Set(float64(len(c.table)))
	metrics.SessionsEndedTotal.WithLabelValues("tab_closed").Inc()
	elapsed := s.Elapsed(c.now())
	if elapsed > 0 {
		c.credit(ctx, s.Site, elapsed)
	}
	c.logger.Info("tab closed", slog.Int("tab_id", tabID), slog.String("site", s.Site))
	return nil
}

// RecordNavigation stores that a monitored page committed in a tab that owes
// a prompt.
func (c *Coordinator) RecordNavigation(ctx context.Context, tabID int, rawURL, site string) error {
	if tabID <= 0 {
		return nil
	}
	nav := domain.Navigation{URL: rawURL, Site: site, Timestamp: c.now(), RequiresIntention: true}
	if err := c.store.SaveNavigation(ctx, tabID, nav); err != nil {
		return fmt.Errorf("record navigation: %w", err)
	}
	return nil
}

// ActiveSessions returns the table ordered by tab id.
func (c *Coordinator) ActiveSessions(ctx context.Context) []domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(ctx)
	return c.sortedLocked()
}

func (c *Coordinator) sortedLocked() []domain.Session {
	out := make([]domain.Session, 0, len(c.table))
	for _, s := range c.table {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

type Status struct {
	Initialized    bool
	LastUpdate     int64
	Cooldown       time.Duration
	StrictCooldown bool
	Sessions       []domain.Session
}

func (c *Coordinator) Status(ctx context.Context) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(ctx)
	return Status{
		Initialized:    c.initialized,
		LastUpdate:     c.lastUpdate,
		Cooldown:       c.cooldown,
		StrictCooldown: c.strict,
		Sessions:       c.sortedLocked(),
	}
}
