package consumer

import (
	"context"
	"errors"
	"time"
)

// ErrSubscriptionClosed reported on Lost when the transport ends the feed.
var ErrSubscriptionClosed = errors.New("live subscription closed")

// Delivery one message as received from a live transport, not yet parsed.
type Delivery struct {
	ID         string
	Payload    []byte
	ReceivedAt time.Time
}

// Subscription a live feed. Events stops delivering after Close and may be
// closed by the transport; Lost yields at most one error when the transport
// drops, and that error is queued before Events is closed.
type Subscription interface {
	Events() <-chan Delivery
	Lost() <-chan error
	Close() error
}

// EventSource opens live feeds of sensor_data changes.
type EventSource interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// feed shared channel plumbing of the transports.
type feed struct {
	events chan Delivery
	lost   chan error
	done   chan struct{}
}

func newFeed(buffer int) *feed {
	return &feed{
		events: make(chan Delivery, buffer),
		lost:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (f *feed) Events() <-chan Delivery { return f.events }
func (f *feed) Lost() <-chan error      { return f.lost }

// deliver blocks until the message is taken or the feed is closed.
func (f *feed) deliver(d Delivery) bool {
	if f.closed() {
		return false
	}
	select {
	case f.events <- d:
		return true
	case <-f.done:
		return false
	}
}

func (f *feed) fail(err error) {
	select {
	case f.lost <- err:
	default:
	}
}

func (f *feed) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
