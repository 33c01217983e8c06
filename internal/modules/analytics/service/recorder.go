package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"focusguard/internal/modules/analytics/domain"
	analyticsout "focusguard/internal/modules/analytics/port/out"
	"focusguard/internal/platform/clock"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/kv"
	"focusguard/internal/platform/sanitize"
)

// Recorder owns the capped aggregate records. Every read-modify-write runs
// under one mutex so concurrent appends never lose entries.
type Recorder struct {
	mu     sync.Mutex
	store  kv.Store
	clock  clock.Clock
	logger *slog.Logger
}

func NewRecorder(store kv.Store, clk clock.Clock, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, clock: clk, logger: logger}
}

func (r *Recorder) now() int64 {
	return clock.Millis(r.clock.Now())
}

// SeedTemplates writes the default intention templates and schema version when
// the store has none yet.
func (r *Recorder) SeedTemplates(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := domain.Templates{}
	found, err := kv.GetJSON(ctx, r.store, domain.KeyTemplates, &existing)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	if found {
		return nil
	}
	batch := kv.NewBatch()
	if err := batch.Put(domain.KeyTemplates, domain.DefaultTemplates()); err != nil {
		return err
	}
	if err := batch.Put(domain.KeySchema, domain.SchemaVersion); err != nil {
		return err
	}
	if err := r.store.Set(ctx, batch); err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}
	r.logger.Info("seeded intention templates")
	return nil
}

// LogSession appends an entry to the session log.
func (r *Recorder) LogSession(ctx context.Context, site, intention string, durationMs int64, tabID int) error {
	entry := domain.SessionEntry{
		Timestamp: r.now(),
		Site:      site,
		Intention: intention,
		Duration:  durationMs,
		TabID:     tabID,
	}
	return appendRecord(ctx, r, domain.KeySessions, entry, domain.MaxSessionLog)
}

// AddReflection records the outcome the user reported for a session. Values
// outside the known outcomes are sanitized and kept.
func (r *Recorder) AddReflection(ctx context.Context, tabID int, outcome any) error {
	text := sanitize.Sanitize(outcome, domain.MaxOutcome)
	return appendRecord(ctx, r, domain.KeyReflections, domain.Reflection{
		Timestamp: r.now(),
		Outcome:   text,
		TabID:     tabID,
	}, domain.MaxReflections)
}

// TrackActivity records an activity event. An empty site or type after
// sanitization is rejected without touching the log.
func (r *Recorder) TrackActivity(ctx context.Context, tabID int, site, activityType, activityData any) error {
	a := domain.Activity{
		Site:         sanitize.Sanitize(site, domain.MaxActivitySite),
		ActivityType: sanitize.Sanitize(activityType, domain.MaxActivityType),
		ActivityData: sanitize.Sanitize(activityData, domain.MaxActivityData),
		TabID:        tabID,
	}
	if a.Site == "" || a.ActivityType == "" {
		return apperrors.NewValidationError("activity", "Invalid activity")
	}
	a.Timestamp = r.now()
	return appendRecord(ctx, r, domain.KeyActivityLog, a, domain.MaxActivities)
}

func appendRecord[T any](ctx context.Context, r *Recorder, key string, v T, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []T
	if _, err := kv.GetJSON(ctx, r.store, key, &list); err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	list = domain.AppendCapped(list, v, limit)
	if err := kv.SetJSON(ctx, r.store, key, list); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// AddTime credits ms to the site's cumulative total. Non-positive values are
// ignored.
func (r *Recorder) AddTime(ctx context.Context, site string, ms int64) error {
	if ms <= 0 || site == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	spent := domain.TimeSpent{}
	if _, err := kv.GetJSON(ctx, r.store, domain.KeyTimeSpent, &spent); err != nil {
		return fmt.Errorf("load time spent: %w", err)
	}
	spent[site] += ms
	if err := kv.SetJSON(ctx, r.store, domain.KeyTimeSpent, spent); err != nil {
		return fmt.Errorf("save time spent: %w", err)
	}
	return nil
}

// Templates returns the suggested intentions for site, never nil.
func (r *Recorder) Templates(ctx context.Context, site string) ([]string, error) {
	all := domain.Templates{}
	if _, err := kv.GetJSON(ctx, r.store, domain.KeyTemplates, &all); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if list, ok := all[site]; ok && list != nil {
		return list, nil
	}
	return []string{}, nil
}

func (r *Recorder) Sessions(ctx context.Context) ([]domain.SessionEntry, error) {
	return loadList[domain.SessionEntry](ctx, r.store, domain.KeySessions)
}

func (r *Recorder) Reflections(ctx context.Context) ([]domain.Reflection, error) {
	return loadList[domain.Reflection](ctx, r.store, domain.KeyReflections)
}

func (r *Recorder) Activities(ctx context.Context) ([]domain.Activity, error) {
	return loadList[domain.Activity](ctx, r.store, domain.KeyActivityLog)
}

func (r *Recorder) TimeSpent(ctx context.Context) (domain.TimeSpent, error) {
	spent := domain.TimeSpent{}
	if _, err := kv.GetJSON(ctx, r.store, domain.KeyTimeSpent, &spent); err != nil {
		return nil, fmt.Errorf("load time spent: %w", err)
	}
	return spent, nil
}

func loadList[T any](ctx context.Context, store kv.Store, key string) ([]T, error) {
	list := []T{}
	if _, err := kv.GetJSON(ctx, store, key, &list); err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

func (r *Recorder) Summary(ctx context.Context) (domain.Summary, error) {
	entries, err := r.Sessions(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	reflections, err := r.Reflections(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	activities, err := r.Activities(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	spent, err := r.TimeSpent(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summarize(entries, reflections, activities, spent), nil
}

// ExportJSON writes every stored key as one indented JSON object keyed by
// logical name.
func (r *Recorder) ExportJSON(ctx context.Context, w io.Writer) error {
	keys, err := r.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	dump := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		raw, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if !ok || !json.Valid(raw) {
			continue
		}
		dump[kv.Logical(key)] = raw
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// ExportCSV writes one row per logged session followed by a summary block.
func (r *Recorder) ExportCSV(ctx context.Context, w io.Writer) error {
	entries, err := r.Sessions(ctx)
	if err != nil {
		return err
	}
	reflections, err := r.Reflections(ctx)
	if err != nil {
		return err
	}
	spent, err := r.TimeSpent(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	rows := [][]string{{"Date", "Time", "Site", "Intention", "Duration (minutes)", "Outcome", "Timestamp"}}
	for _, e := range entries {
		at := time.UnixMilli(e.Timestamp).UTC()
		outcome := ""
		if ref, ok := domain.MatchReflection(e, reflections); ok {
			outcome = ref.Outcome
		}
		duration := ""
		if e.Duration > 0 {
			duration = strconv.FormatInt(roundMinutes(e.Duration), 10)
		}
		rows = append(rows, []string{
			at.Format("2006-01-02"),
			at.Format("15:04:05"),
			e.Site,
			e.Intention,
			duration,
			outcome,
			strconv.FormatInt(e.Timestamp, 10),
		})
	}
	rows = append(rows, []string{}, []string{"=== SUMMARY STATISTICS ==="})
	for _, site := range spent.SortedSites() {
		rows = append(rows, []string{
			fmt.Sprintf("Total %s Time", site),
			fmt.Sprintf("%d minutes", roundMinutes(spent[site])),
		})
	}
	rows = append(rows,
		[]string{"Total Sessions", strconv.Itoa(len(entries))},
		[]string{"Export Date", r.clock.Now().UTC().Format(time.RFC3339)},
	)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func roundMinutes(ms int64) int64 {
	return (ms + 30_000) / 60_000
}

// ExportNotes hands the session log and reflections to writer.
func (r *Recorder) ExportNotes(ctx context.Context, writer analyticsout.NoteWriter) (int, error) {
	entries, err := r.Sessions(ctx)
	if err != nil {
		return 0, err
	}
	reflections, err := r.Reflections(ctx)
	if err != nil {
		return 0, err
	}
	return writer.WriteNotes(ctx, entries, reflections)
}

// Reset clears the aggregate records and reseeds the templates.
func (r *Recorder) Reset(ctx context.Context) error {
	r.mu.Lock()
	keys := []string{
		kv.Key(domain.KeySessions),
		kv.Key(domain.KeyReflections),
		kv.Key(domain.KeyActivityLog),
		kv.Key(domain.KeyTimeSpent),
		kv.Key(domain.KeyTemplates),
	}
	err := r.store.Delete(ctx, keys...)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("reset analytics: %w", err)
	}
	r.logger.Info("analytics reset")
	return r.SeedTemplates(ctx)
}
