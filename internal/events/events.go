package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
)

// EventType names a circle event.
type EventType string

// Circle event types.
const (
	CircleCreated EventType = "circle.created"
	CircleUpdated EventType = "circle.updated"
)

// Action describes which mutation produced a CircleUpdated event.
type Action string

// Circle actions.
const (
	ActionCreated     Action = "created"
	ActionJoined      Action = "joined"
	ActionActivated   Action = "activated"
	ActionContributed Action = "contributed"
	ActionCompleted   Action = "completed"
	ActionCancelled   Action = "cancelled"
)

// CircleEvent is a snapshot of a circle taken right after a successful mutation.
type CircleEvent struct {
	ID         uuid.UUID             `json:"id"`
	Type       EventType             `json:"type"`
	Action     Action                `json:"action"`
	ActorID    uuid.UUID             `json:"actor_id"`
	Circle     *domain.LendingCircle `json:"circle"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// NewCircleEvent builds an event around a private copy of circle.
func NewCircleEvent(action Action, actorID uuid.UUID, circle *domain.LendingCircle, now time.Time) CircleEvent {
	eventType := CircleUpdated
	if action == ActionCreated {
		eventType = CircleCreated
	}
	return CircleEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Action:     action,
		ActorID:    actorID,
		Circle:     circle.Clone(),
		OccurredAt: now.UTC(),
	}
}

// Publisher accepts events for asynchronous fan-out.
type Publisher interface {
	// Publish hands event to the fan-out layer and returns immediately.
	Publish(ctx context.Context, event CircleEvent)
}

// Observer receives delivered events. Implementations should honour ctx's
// deadline; errors are logged by the broadcaster and otherwise ignored.
type Observer interface {
	Notify(ctx context.Context, event CircleEvent) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event CircleEvent) error

// Notify calls f(ctx, event).
func (f ObserverFunc) Notify(ctx context.Context, event CircleEvent) error {
	return f(ctx, event)
}
