package chat

import (
	"context"

	"groupchat/internal/model"
)

// Sink receives every event produced by a Transport. Deliver is called from
// the receive goroutine and from Send, so implementations must be safe for
// concurrent use. ctx is cancelled when the transport stops; a Deliver that
// blocks must give up then.
type Sink interface {
	Deliver(ctx context.Context, e model.Event)
}

type SinkFunc func(ctx context.Context, e model.Event)

func (f SinkFunc) Deliver(ctx context.Context, e model.Event) { f(ctx, e) }

// ChanSink forwards events to a channel, blocking until the consumer takes
// the event or the transport stops.
type ChanSink chan<- model.Event

func (c ChanSink) Deliver(ctx context.Context, e model.Event) {
	select {
	case c <- e:
	case <-ctx.Done():
	}
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, e model.Event) {
	for _, s := range m {
		s.Deliver(ctx, e)
	}
}
