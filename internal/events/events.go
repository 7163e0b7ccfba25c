// Package events carries change events from the write path to the
// notification consumer. Delivery is at-most-once: a subscriber that is not
// listening when an event is published never sees it.
package events

import (
	"context"

	"github.com/sells-group/countrysync/internal/model"
)

// DefaultChannel is the pub/sub channel name for country change events.
const DefaultChannel = "country_events"

// Publisher sends a change event to every current subscriber.
type Publisher interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
}

// Subscription yields events in arrival order until closed.
type Subscription interface {
	// Events is closed when the subscription ends.
	Events() <-chan model.ChangeEvent
	Close() error
}

// Subscriber opens subscriptions on the event channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Bus is both ends of the channel.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
