package domain

import (
	"math"
	"sort"
)

const (
	SchemaVersion = 1

	MaxSessionLog  = 1000
	MaxReflections = 1000
	MaxActivities  = 500

	MaxActivitySite = 100
	MaxActivityType = 50
	MaxActivityData = 300
	MaxOutcome      = 50

	// ReflectionWindowMs is how close a reflection must be to a session entry
	// to count as that session's reflection.
	ReflectionWindowMs = 60_000
)

// Logical store keys owned by analytics.
const (
	KeySessions    = "sessions"
	KeyReflections = "sessionReflections"
	KeyActivityLog = "activityLog"
	KeyTimeSpent   = "totalTimeSpent"
	KeyTemplates   = "intentionTemplates"
	KeySchema      = "schemaVersion"
)

const (
	OutcomeAccomplished = "accomplished"
	OutcomePartial      = "partial"
	OutcomeDistracted   = "distracted"
)

// SessionEntry is one row of the session log, written when an intention is set.
type SessionEntry struct {
	Timestamp int64  `json:"timestamp"`
	Site      string `json:"site"`
	Intention string `json:"intention"`
	Duration  int64  `json:"duration"`
	TabID     int    `json:"tabId,omitempty"`
}

type Reflection struct {
	Timestamp int64  `json:"timestamp"`
	Outcome   string `json:"outcome"`
	TabID     int    `json:"tabId,omitempty"`
}

type Activity struct {
	Timestamp    int64  `json:"timestamp"`
	Site         string `json:"site"`
	ActivityType string `json:"activityType"`
	ActivityData string `json:"activityData"`
	TabID        int    `json:"tabId,omitempty"`
}

// TimeSpent maps a site to its cumulative milliseconds.
type TimeSpent map[string]int64

// Templates maps a site to its suggested intentions.
type Templates map[string][]string

// AppendCapped appends v and drops the oldest entries beyond limit.
func AppendCapped[T any](list []T, v T, limit int) []T {
	list = append(list, v)
	if limit > 0 && len(list) > limit {
		list = append([]T(nil), list[len(list)-limit:]...)
	}
	return list
}

func DefaultTemplates() Templates {
	return Templates{
		"YouTube": {
			"Learn React hooks for my project",
			"Watch Python tutorial series",
			"Research new design trends",
			"Follow coding best practices guide",
			"Watch conference talk on AI",
			"Learn new JavaScript framework",
		},
		"WhatsApp": {
			"Check important family messages",
			"Coordinate team meeting for Friday",
			"Share project document with Sarah",
			"Reply to client about deliverables",
			"Plan weekend social activity",
			"Follow up on pending conversation",
		},
	}
}

// MatchReflection returns the first reflection recorded within the window of
// the entry's timestamp.
func MatchReflection(entry SessionEntry, reflections []Reflection) (Reflection, bool) {
	for _, r := range reflections {
		d := r.Timestamp - entry.Timestamp
		if d < 0 {
			d = -d
		}
		if d < ReflectionWindowMs {
			return r, true
		}
	}
	return Reflection{}, false
}

// IntentionScore rates how well logged sessions matched their stated
// intention on a 0-100 scale. An empty log scores 85.
func IntentionScore(entries []SessionEntry, reflections []Reflection) int {
	total, scored := 0, 0
	for _, e := range entries {
		if e.Intention == "" {
			continue
		}
		scored++
		score := 70
		if r, ok := MatchReflection(e, reflections); ok {
			switch r.Outcome {
			case OutcomeAccomplished:
				score = 95
			case OutcomePartial:
				score = 75
			case OutcomeDistracted:
				score = 45
			default:
				score = 50
			}
		}
		total += score
	}
	if scored == 0 {
		return 85
	}
	return int(math.Round(float64(total) / float64(scored)))
}

// Summary aggregates the persisted records for status output and exports.
type Summary struct {
	TotalSessions    int              `json:"totalSessions"`
	TotalReflections int              `json:"totalReflections"`
	TotalActivities  int              `json:"totalActivities"`
	SessionsBySite   map[string]int   `json:"sessionsBySite"`
	TimeSpentMs      map[string]int64 `json:"timeSpentMs"`
	Outcomes         map[string]int   `json:"outcomes"`
	IntentionScore   int              `json:"intentionScore"`
}

func Summarize(entries []SessionEntry, reflections []Reflection, activities []Activity, spent TimeSpent) Summary {
	s := Summary{
		TotalSessions:    len(entries),
		TotalReflections: len(reflections),
		TotalActivities:  len(activities),
		SessionsBySite:   map[string]int{},
		TimeSpentMs:      map[string]int64{},
		Outcomes:         map[string]int{},
		IntentionScore:   IntentionScore(entries, reflections),
	}
	for _, e := range entries {
		s.SessionsBySite[e.Site]++
	}
	for _, r := range reflections {
		s.Outcomes[r.Outcome]++
	}
	for site, ms := range spent {
		s.TimeSpentMs[site] = ms
	}
	return s
}

// SortedSites returns the keys of spent in lexical order.
func (t TimeSpent) SortedSites() []string {
	sites := make([]string, 0, len(t))
	for site := range t {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites
}
