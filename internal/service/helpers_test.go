package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/circles-api/internal/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock safe for concurrent use.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingPublisher captures published events synchronously.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.CircleEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.CircleEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []events.CircleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.CircleEvent(nil), p.events...)
}

func (p *recordingPublisher) Actions() []events.Action {
	var out []events.Action
	for _, e := range p.Events() {
		out = append(out, e.Action)
	}
	return out
}

// recordingObserver collects delivered events.
type recordingObserver struct {
	mu     sync.Mutex
	events []events.CircleEvent
}

func (o *recordingObserver) Notify(_ context.Context, e events.CircleEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
	return nil
}

func (o *recordingObserver) Events() []events.CircleEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]events.CircleEvent(nil), o.events...)
}

type countingCircleMetrics struct {
	mu       sync.Mutex
	outcomes map[string][2]int
}

func (m *countingCircleMetrics) CircleOperation(action string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string][2]int)
	}
	o := m.outcomes[action]
	if err == nil {
		o[0]++
	} else {
		o[1]++
	}
	m.outcomes[action] = o
}

func (m *countingCircleMetrics) get(action string) (ok, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.outcomes[action]
	return o[0], o[1]
}
