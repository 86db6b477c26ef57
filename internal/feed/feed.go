// Package feed supplies the time-ordered market event stream the simulator consumes.
//
// A stream carries quotes and optional trading-day boundary markers. Sources are
// read through Pump, which forwards events to the dispatcher's channel and closes
// it at the end of the stream.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rickgao/tradesim/internal/model"
)

// Kind is the type of a feed event.
type Kind int

const (
	KindQuote Kind = iota
	KindMarker
)

func (k Kind) String() string {
	if k == KindMarker {
		return "marker"
	}
	return "quote"
}

// ErrOutOfOrder is returned by Pump when an event is older than its predecessor.
var ErrOutOfOrder = errors.New("feed event out of order")

// Event is one entry of the stream.
type Event struct {
	Kind  Kind
	At    time.Time
	Quote model.Quote // set for KindQuote
}

// QuoteEvent wraps a quote, timestamped by the quote's datetime.
func QuoteEvent(q model.Quote) Event {
	return Event{Kind: KindQuote, At: q.Datetime, Quote: q}
}

// MarkerEvent is a boundary marker at t; it settles every day whose cutoff is at or before t.
func MarkerEvent(t time.Time) Event {
	return Event{Kind: KindMarker, At: t}
}

// Source yields events in time order and io.EOF at the end.
type Source interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Pump copies src into out until the source is exhausted, then closes out.
func Pump(ctx context.Context, src Source, out chan<- Event) error {
	defer close(out)

	var last time.Time
	for {
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}
		if ev.At.Before(last) {
			return fmt.Errorf("%w: %s before %s", ErrOutOfOrder, ev.At, last)
		}
		last = ev.At

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []Event
	pos    int
}

// NewSliceSource creates a source over events.
func NewSliceSource(events ...Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// Close implements Source.
func (s *SliceSource) Close() error { return nil }

// Channel returns a closed, fully buffered channel holding events.
func Channel(events ...Event) <-chan Event {
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}
