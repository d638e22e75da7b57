package sink

import (
	"context"
	"errors"
	"io"

	"github.com/SteelMorgan/cwtail/internal/domain"
)

// Sink consumes accepted events
type Sink interface {
	// Emit is called synchronously once per novel event, in discovery order.
	// event.SourceGroup carries the group name, empty if unknown.
	// A slow Emit delays polling.
	Emit(ctx context.Context, event domain.LogEvent) error
}

// Multi fans events out to several sinks
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink. Nil sinks are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Emit forwards the event to every sink, even if some of them fail
func (m *Multi) Emit(ctx context.Context, event domain.LogEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
