// Package delivery hands a confirmed frame grid to the places that keep it:
// a directory on disk, an MQTT broker, the emergency request backend.
//
// Sinks are optional and independent. A failing sink never blocks or
// cancels the others.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/relief-capture/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrNoSinks is returned by NewMulti when every sink is nil.
var ErrNoSinks = errors.New("delivery: no sinks configured")

// Capture is a confirmed grid together with what is known about how it was made.
type Capture struct {
	ID              string    `json:"id" msgpack:"id"` // attempt ID
	InstanceID      string    `json:"instance_id" msgpack:"instance_id"`
	CapturedAt      time.Time `json:"captured_at" msgpack:"captured_at"`
	MimeType        string    `json:"mime_type" msgpack:"mime_type"` // recording format
	FramesOK        int       `json:"frames_ok" msgpack:"frames_ok"`
	FramesTotal     int       `json:"frames_total" msgpack:"frames_total"`
	DurationSeconds float64   `json:"duration_s" msgpack:"duration_s"`
	DurationAssumed bool      `json:"duration_assumed" msgpack:"duration_assumed"`
	JPEG            []byte    `json:"-" msgpack:"jpeg"`
}

// Sink stores or forwards a confirmed capture.
type Sink interface {
	// Name identifies the sink in logs and metric labels
	Name() string

	// Deliver blocks until the capture is stored, ctx is done or delivery fails
	Deliver(ctx context.Context, c *Capture) error

	// Close releases connections. Idempotent.
	Close() error
}

// Multi fans a capture out to several sinks concurrently.
type Multi struct {
	sinks []Sink
}

// NewMulti drops nil sinks and fails when none remain.
func NewMulti(sinks ...Sink) (*Multi, error) {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	if len(m.sinks) == 0 {
		return nil, ErrNoSinks
	}
	return m, nil
}

// Name implements Sink
func (m *Multi) Name() string { return "multi" }

// Sinks returns the wrapped sinks
func (m *Multi) Sinks() []Sink { return m.sinks }

// Deliver runs every sink to completion and joins their errors.
func (m *Multi) Deliver(ctx context.Context, c *Capture) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	for _, s := range m.sinks {
		g.Go(func() error {
			start := time.Now()
			err := s.Deliver(ctx, c)
			metrics.RecordDelivery(s.Name(), err)

			if err != nil {
				slog.Error("delivery: sink failed",
					"sink", s.Name(),
					"capture_id", c.ID,
					"error", err,
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
				return nil
			}

			slog.Info("delivery: capture delivered",
				"sink", s.Name(),
				"capture_id", c.ID,
				"bytes", len(c.JPEG),
				"elapsed", time.Since(start),
			)
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
