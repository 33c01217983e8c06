package out

import (
	"context"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	"focusguard/internal/modules/session/domain"
)

// StateStore mirrors the coordinator state to the durable store.
type StateStore interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	// Save writes the table, recent memory and marker in one atomic write.
	Save(ctx context.Context, table domain.Table, recent domain.RecentMemory, marker domain.StateMarker) error
	SaveNavigation(ctx context.Context, tabID int, nav domain.Navigation) error
	DeleteNavigation(ctx context.Context, tabID int) error
}

// Scheduler arms named one-shot wake timers. Arming a name that is already
// armed replaces it.
type Scheduler interface {
	Arm(name string, minutes int) error
	Clear(name string) bool
}

// Notifier delivers pushes to the presentation layer of a tab.
type Notifier interface {
	NotifyTimeUp(ctx context.Context, tabID int) error
}

// Recorder receives the session log and time credits.
type Recorder interface {
	LogSession(ctx context.Context, site, intention string, durationMs int64, tabID int) error
	AddTime(ctx context.Context, site string, ms int64) error
}

// Analytics is the recorder surface the message handler needs.
type Analytics interface {
	Recorder
	Templates(ctx context.Context, site string) ([]string, error)
	TrackActivity(ctx context.Context, tabID int, site, activityType, activityData any) error
	AddReflection(ctx context.Context, tabID int, outcome any) error
	Summary(ctx context.Context) (analyticsdomain.Summary, error)
}
