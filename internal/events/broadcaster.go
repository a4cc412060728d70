package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/circles-api/internal/platform/logger"
)

// ErrBroadcasterClosed is returned by Subscribe after Close.
var ErrBroadcasterClosed = errors.New("broadcaster is closed")

// SubscriptionID identifies one subscriber.
type SubscriptionID uint64

// Metrics receives broadcaster counters. A nil Metrics disables reporting.
type Metrics interface {
	EventPublished(eventType string)
	EventDelivered()
	EventDropped()
	DeliveryFailed()
	SubscribersChanged(count int)
}

// Config tunes the broadcaster.
type Config struct {
	// Buffer is the queue length per subscriber. Events beyond it are dropped
	// for that subscriber only.
	Buffer int
	// DeliveryTimeout bounds each Notify call.
	DeliveryTimeout time.Duration
}

const (
	defaultBuffer          = 64
	defaultDeliveryTimeout = 5 * time.Second
)

type subscriber struct {
	id       SubscriptionID
	observer Observer
	queue    chan queuedEvent
	done     chan struct{}
}

type queuedEvent struct {
	ctx   context.Context
	event CircleEvent
}

// Broadcaster implements Publisher with one delivery goroutine per subscriber.
// Each subscriber sees events in publication order; there is no ordering
// across subscribers and no replay for late subscribers.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[SubscriptionID]*subscriber
	nextID  SubscriptionID
	closed  bool
	wg      sync.WaitGroup
	cfg     Config
	logger  *slog.Logger
	metrics Metrics
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster. Zero Config fields take defaults.
func NewBroadcaster(cfg Config, logger *slog.Logger, metrics Metrics) *Broadcaster {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Broadcaster{
		subs:    make(map[SubscriptionID]*subscriber),
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "broadcaster")),
		metrics: metrics,
	}
}

// Subscribe registers observer and starts its delivery goroutine.
func (b *Broadcaster) Subscribe(observer Observer) (SubscriptionID, error) {
	if observer == nil {
		return 0, fmt.Errorf("observer cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBroadcasterClosed
	}

	b.nextID++
	sub := &subscriber{
		id:       b.nextID,
		observer: observer,
		queue:    make(chan queuedEvent, b.cfg.Buffer),
		done:     make(chan struct{}),
	}
	b.subs[sub.id] = sub
	b.metrics.SubscribersChanged(len(b.subs))

	b.wg.Add(1)
	go b.deliver(sub)

	b.logger.Debug("observer subscribed",
		slog.Uint64("subscription_id", uint64(sub.id)),
		slog.Int("subscribers", len(b.subs)))
	return sub.id, nil
}

// Unsubscribe removes a subscriber. Events still queued for it are discarded.
// It reports whether the subscription existed.
func (b *Broadcaster) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return false
	}
	delete(b.subs, id)
	close(sub.done)
	b.metrics.SubscribersChanged(len(b.subs))

	b.logger.Debug("observer unsubscribed",
		slog.Uint64("subscription_id", uint64(id)),
		slog.Int("subscribers", len(b.subs)))
	return true
}

// SubscriberCount returns the number of current subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish enqueues event for every current subscriber without blocking.
// A subscriber whose queue is full misses the event.
func (b *Broadcaster) Publish(ctx context.Context, event CircleEvent) {
	// Delivery outlives the request that triggered it but keeps its values.
	deliveryCtx := context.WithoutCancel(ctx)
	log := logger.FromContextOrDefault(ctx, b.logger)

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.metrics.EventPublished(string(event.Type))
	for _, sub := range b.subs {
		select {
		case sub.queue <- queuedEvent{ctx: deliveryCtx, event: event}:
		default:
			b.metrics.EventDropped()
			log.Warn("observer queue full, dropping event",
				slog.Uint64("subscription_id", uint64(sub.id)),
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", string(event.Type)))
		}
	}
}

// Close unsubscribes everyone and waits for in-flight deliveries to finish.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.done)
	}
	b.metrics.SubscribersChanged(0)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Broadcaster) deliver(sub *subscriber) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case item := <-sub.queue:
			select {
			case <-sub.done:
				return
			default:
			}
			b.notify(sub, item)
		}
	}
}

func (b *Broadcaster) notify(sub *subscriber, item queuedEvent) {
	log := logger.FromContextOrDefault(item.ctx, b.logger)

	ctx, cancel := context.WithTimeout(item.ctx, b.cfg.DeliveryTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			b.metrics.DeliveryFailed()
			log.Error("observer panicked",
				slog.Uint64("subscription_id", uint64(sub.id)),
				slog.Any("panic", p))
		}
	}()

	if err := sub.observer.Notify(ctx, item.event); err != nil {
		b.metrics.DeliveryFailed()
		log.Warn("observer failed to handle event",
			slog.String("error", err.Error()),
			slog.Uint64("subscription_id", uint64(sub.id)),
			slog.String("event_id", item.event.ID.String()))
		return
	}
	b.metrics.EventDelivered()
}

type noopMetrics struct{}

func (noopMetrics) EventPublished(string)  {}
func (noopMetrics) EventDelivered()        {}
func (noopMetrics) EventDropped()          {}
func (noopMetrics) DeliveryFailed()        {}
func (noopMetrics) SubscribersChanged(int) {}
