package clock

import "time"

// Clock abstracts time to keep the coordinator deterministic in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}

// Millis returns t as milliseconds since the Unix epoch, the unit every
// persisted timestamp uses.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
