package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	SchemaVersion = 1

	MaxSiteLength      = 100
	MaxIntentionLength = 500
	MinDurationMinutes = 1
	MaxDurationMinutes = 480

	MinuteMs = int64(60_000)

	wakePrefix = "session-"
)

// Logical store keys owned by the coordinator.
const (
	KeyActiveSessions = "activeSessions"
	KeySessionState   = "sessionState"
	KeyIntention      = "intention"
	navigationPrefix  = "navigation/"
)

var ErrMalformedSession = errors.New("malformed session record")

// Session is a time-boxed commitment scoped to one tab and one site.
type Session struct {
	TabID      int    `json:"tabId"`
	Site       string `json:"site"`
	Intention  string `json:"intention"`
	StartTime  int64  `json:"startTime"`
	DurationMs int64  `json:"durationMs"`
	Version    int    `json:"version"`
}

func (s Session) Elapsed(nowMs int64) int64 {
	return nowMs - s.StartTime
}

func (s Session) Expired(nowMs int64) bool {
	return s.Elapsed(nowMs) >= s.DurationMs
}

func (s Session) Remaining(nowMs int64) int64 {
	return s.DurationMs - s.Elapsed(nowMs)
}

// Credited is the elapsed time clamped to [0, durationMs].
func (s Session) Credited(nowMs int64) int64 {
	elapsed := s.Elapsed(nowMs)
	if elapsed < 0 {
		return 0
	}
	if elapsed > s.DurationMs {
		return s.DurationMs
	}
	return elapsed
}

// Table is the active-session table keyed by tab id.
type Table map[int]Session

func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// RecentIntention is the last intention stated for a site.
type RecentIntention struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type RecentMemory map[string]RecentIntention

func (m RecentMemory) Clone() RecentMemory {
	out := make(RecentMemory, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StateMarker records that the coordinator ran recovery at least once.
type StateMarker struct {
	Initialized bool  `json:"initialized"`
	LastUpdate  int64 `json:"lastUpdate"`
}

// Snapshot is everything the coordinator loads at startup. Sessions stay raw
// so one malformed record does not poison the rest of the table.
type Snapshot struct {
	Sessions map[string]json.RawMessage
	Recent   RecentMemory
	Marker   StateMarker
}

// Navigation is recorded when a monitored page commits in a tab that owes a
// prompt.
type Navigation struct {
	URL               string `json:"url"`
	Site              string `json:"site"`
	Timestamp         int64  `json:"timestamp"`
	RequiresIntention bool   `json:"requiresIntention"`
}

func NavigationKey(tabID int) string {
	return navigationPrefix + strconv.Itoa(tabID)
}

// ParseSession decodes one persisted table entry and checks its shape.
func ParseSession(key string, raw json.RawMessage) (Session, error) {
	tabID, err := strconv.Atoi(key)
	if err != nil || tabID <= 0 {
		return Session{}, fmt.Errorf("%w: bad tab key %q", ErrMalformedSession, key)
	}
	s := Session{}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	if s.TabID == 0 {
		s.TabID = tabID
	}
	switch {
	case s.TabID != tabID:
		return Session{}, fmt.Errorf("%w: tab %d stored under %q", ErrMalformedSession, s.TabID, key)
	case strings.TrimSpace(s.Site) == "":
		return Session{}, fmt.Errorf("%w: empty site", ErrMalformedSession)
	case s.StartTime <= 0:
		return Session{}, fmt.Errorf("%w: bad start time %d", ErrMalformedSession, s.StartTime)
	case s.DurationMs <= 0:
		return Session{}, fmt.Errorf("%w: bad duration %d", ErrMalformedSession, s.DurationMs)
	}
	return s, nil
}

// WakeName is the deterministic wake registration name for a tab.
func WakeName(tabID int) string {
	return wakePrefix + strconv.Itoa(tabID)
}

// ParseWakeName extracts the tab id from a wake name. Names that do not carry
// a positive tab id are rejected.
func ParseWakeName(name string) (int, bool) {
	if !strings.HasPrefix(name, wakePrefix) {
		return 0, false
	}
	tabID, err := strconv.Atoi(strings.TrimPrefix(name, wakePrefix))
	if err != nil || tabID <= 0 {
		return 0, false
	}
	return tabID, true
}

// WakeMinutes converts a remaining duration to whole wake minutes, rounding up
// with a floor of one.
func WakeMinutes(remainingMs int64) int {
	if remainingMs <= 0 {
		return 1
	}
	minutes := (remainingMs + MinuteMs - 1) / MinuteMs
	if minutes < 1 {
		minutes = 1
	}
	return int(minutes)
}
