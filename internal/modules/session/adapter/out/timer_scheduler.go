package out

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	sessionout "focusguard/internal/modules/session/port/out"
)

// TimerScheduler arms in-process timers. Registrations die with the process;
// the coordinator re-arms them from persisted state on startup.
type TimerScheduler struct {
	mu     sync.Mutex
	unit   time.Duration
	timers map[string]*time.Timer
	fire   func(name string)
	logger *slog.Logger
}

// NewTimerScheduler counts minutes in unit, which is time.Minute outside
// tests.
func NewTimerScheduler(unit time.Duration, logger *slog.Logger) *TimerScheduler {
	if unit <= 0 {
		unit = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{unit: unit, timers: map[string]*time.Timer{}, logger: logger}
}

var _ sessionout.Scheduler = (*TimerScheduler)(nil)

// OnFire sets the callback run on its own goroutine when a timer fires.
func (s *TimerScheduler) OnFire(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fn
}

func (s *TimerScheduler) Arm(name string, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("wake %s: %d minutes is below the one minute granularity", name, minutes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fire == nil {
		return fmt.Errorf("wake %s: no fire handler", name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(time.Duration(minutes)*s.unit, func() {
		s.mu.Lock()
		current, ok := s.timers[name]
		if !ok || current != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, name)
		fire := s.fire
		s.mu.Unlock()
		s.logger.Debug("wake fired", slog.String("name", name))
		fire(name)
	})
	s.timers[name] = timer
	return nil
}

func (s *TimerScheduler) Clear(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, name)
	return true
}

// Pending lists the armed registration names.
func (s *TimerScheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop cancels every pending timer.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
}
