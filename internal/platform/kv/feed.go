package kv

import (
	"context"
	"sync"
)

// Feed fans committed changes out to watchers. Stores without a native change
// stream embed it and publish after each successful write.
type Feed struct {
	mu       sync.Mutex
	next     int
	watchers map[int]func(Change)
}

func (f *Feed) Publish(changes ...Change) {
	f.mu.Lock()
	fns := make([]func(Change), 0, len(f.watchers))
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// Watch registers fn and blocks until ctx is done.
func (f *Feed) Watch(ctx context.Context, fn func(Change)) error {
	f.mu.Lock()
	if f.watchers == nil {
		f.watchers = make(map[int]func(Change))
	}
	id := f.next
	f.next++
	f.watchers[id] = fn
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	delete(f.watchers, id)
	f.mu.Unlock()
	return nil
}
