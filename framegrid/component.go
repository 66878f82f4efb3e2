package framegrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/relief-capture/capture"
	"github.com/e7canasta/relief-capture/delivery"
	"github.com/e7canasta/relief-capture/extract"
	"github.com/e7canasta/relief-capture/internal/metrics"
	"github.com/e7canasta/relief-capture/internal/statebus"
	"github.com/google/uuid"
)

// stopTimeout bounds how long Retry and Close wait for an attempt to unwind.
const stopTimeout = 3 * time.Second

// DefaultDeliveryTimeout bounds sink delivery after Accept.
const DefaultDeliveryTimeout = 30 * time.Second

// Options configures a Component.
type Options struct {
	InstanceID string
	Camera     capture.Camera
	Decoder    extract.Decoder
	Recording  capture.RecordingConfig
	Extraction extract.Config

	// Sink receives the accepted capture (optional)
	Sink delivery.Sink
	// DeliveryTimeout bounds Sink.Deliver (default DefaultDeliveryTimeout)
	DeliveryTimeout time.Duration

	// OnImageReady is called exactly once, on Accept, with the data URL
	OnImageReady func(dataURL string)

	// OnClose is called exactly once when the component is dismissed
	OnClose func()
}

// Component drives record → extract → review for one capture dialog.
//
// Lifecycle:
//
//	Start ─▶ acquiring ─▶ recording (9..0) ─▶ processing ─▶ ready ─┬─ Accept ─▶ closed
//	                                                    └─▶ failed ┼─ Retry ──▶ acquiring
//	                                                               └─ Close ──▶ closed
//
// Every attempt runs on its own goroutine with its own context. Retry and
// Close cancel it and wait (bounded) so the camera is released before they
// return. Updates from a superseded attempt are discarded.
type Component struct {
	opts      Options
	extractor *extract.Extractor
	bus       *statebus.Bus[Snapshot]

	ops sync.Mutex // serializes Start/Retry/Accept/Close

	mu      sync.Mutex
	state   Snapshot
	current *attempt
	result  *attemptResult
	closed  bool

	readyOnce sync.Once
	closeOnce sync.Once
}

type attempt struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type attemptResult struct {
	id       string
	mimeType string
	res      *extract.Result
	at       time.Time
}

// New creates a component with fail-fast validation. Nothing starts until Start.
func New(opts Options) (*Component, error) {
	if opts.Camera == nil {
		return nil, fmt.Errorf("framegrid: camera is required")
	}
	if err := opts.Recording.Validate(); err != nil {
		return nil, fmt.Errorf("framegrid: %w", err)
	}
	extractor, err := extract.New(opts.Decoder, opts.Extraction)
	if err != nil {
		return nil, fmt.Errorf("framegrid: %w", err)
	}
	if opts.OnImageReady == nil {
		opts.OnImageReady = func(string) {}
	}
	if opts.OnClose == nil {
		opts.OnClose = func() {}
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}

	c := &Component{
		opts:      opts,
		extractor: extractor,
		bus:       statebus.New[Snapshot](),
	}
	c.state = Snapshot{Phase: PhaseIdle, Actions: actionsFor(PhaseIdle), UpdatedAt: time.Now()}
	c.bus.Publish(c.state)
	return c, nil
}

// Start launches the first attempt.
func (c *Component) Start() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	c.launch()
	return nil
}

// Retry discards the current attempt, releasing the camera, and starts a
// fresh one with cleared result, error and countdown.
func (c *Component) Retry() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.stopAttempt()
	c.launch()
	return nil
}

// Accept hands the ready image to OnImageReady (exactly once), closes the
// component and then delivers the capture to the sink. Delivery runs
// outside the lifecycle lock, detached from ctx cancellation and bounded by
// DeliveryTimeout. Sink failures are logged and counted; they do not undo
// the acceptance.
func (c *Component) Accept(ctx context.Context) error {
	c.ops.Lock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.ops.Unlock()
		return ErrClosed
	}
	if c.state.Phase != PhaseReady || c.result == nil {
		c.mu.Unlock()
		c.ops.Unlock()
		return ErrNotReady
	}
	r := c.result
	c.mu.Unlock()

	c.readyOnce.Do(func() {
		slog.Info("framegrid: image accepted",
			"attempt_id", r.id,
			"jpeg_bytes", len(r.res.JPEG),
		)
		c.opts.OnImageReady(r.res.DataURL)
	})

	accepted := c.captureFor(r)
	c.closeLocked()
	c.ops.Unlock()

	c.deliver(ctx, accepted)
	return nil
}

func (c *Component) deliver(ctx context.Context, accepted *delivery.Capture) {
	if c.opts.Sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.DeliveryTimeout)
	defer cancel()

	if err := c.opts.Sink.Deliver(ctx, accepted); err != nil {
		slog.Warn("framegrid: delivery incomplete", "attempt_id", accepted.ID, "error", err)
	}
}

// Close aborts any attempt and dismisses the component without a result.
// Idempotent.
func (c *Component) Close() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.closeLocked()
	return nil
}

// Snapshot returns the current state.
func (c *Component) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneSnapshot(c.state)
}

// Subscribe returns a latest-value mailbox of state changes, seeded with
// the current state.
func (c *Component) Subscribe(id string) (*statebus.Latest[Snapshot], error) {
	return c.bus.SubscribeLatest(id)
}

// Unsubscribe removes a mailbox created by Subscribe.
func (c *Component) Unsubscribe(id string) error {
	return c.bus.Unsubscribe(id)
}

// Done reports whether the component has been dismissed.
func (c *Component) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// closeLocked requires c.ops.
func (c *Component) closeLocked() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.stopAttempt()

	c.mu.Lock()
	c.result = nil
	c.state = Snapshot{
		AttemptID: c.state.AttemptID,
		Phase:     PhaseClosed,
		Actions:   actionsFor(PhaseClosed),
		UpdatedAt: time.Now(),
	}
	snap := cloneSnapshot(c.state)
	c.mu.Unlock()

	c.bus.Publish(snap)
	c.bus.Close()

	c.closeOnce.Do(func() {
		slog.Info("framegrid: closed", "attempt_id", snap.AttemptID)
		c.opts.OnClose()
	})
}

// launch requires c.ops and no running attempt.
func (c *Component) launch() {
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{
		id:     uuid.New().String(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.current = a
	c.result = nil
	c.state = Snapshot{
		AttemptID: a.id,
		Phase:     PhaseAcquiring,
		Actions:   actionsFor(PhaseAcquiring),
		UpdatedAt: time.Now(),
	}
	snap := cloneSnapshot(c.state)
	c.mu.Unlock()
	c.bus.Publish(snap)

	go c.run(a)
}

// stopAttempt cancels the running attempt and waits for it. Requires c.ops.
func (c *Component) stopAttempt() {
	c.mu.Lock()
	a := c.current
	c.current = nil
	c.mu.Unlock()

	if a == nil {
		return
	}

	a.cancel()

	select {
	case <-a.done:
		slog.Debug("framegrid: attempt stopped", "attempt_id", a.id)
	case <-time.After(stopTimeout):
		slog.Warn("framegrid: stop timeout exceeded, attempt may still hold resources",
			"attempt_id", a.id)
	}
}

// update applies fn to the state if a is still the current attempt.
func (c *Component) update(a *attempt, fn func(*Snapshot)) bool {
	c.mu.Lock()
	if c.current != a || c.closed {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	c.state.Actions = actionsFor(c.state.Phase)
	c.state.UpdatedAt = time.Now()
	snap := cloneSnapshot(c.state)
	c.mu.Unlock()

	c.bus.Publish(snap)
	return true
}

// run is the attempt goroutine.
func (c *Component) run(a *attempt) {
	defer close(a.done)

	metrics.SetActive(true)
	defer metrics.SetActive(false)

	log := slog.With("attempt_id", a.id)
	log.Info("framegrid: attempt started")

	session, err := capture.NewSession(c.opts.Camera, c.opts.Recording)
	if err != nil {
		c.fail(a, err)
		return
	}

	clip, err := session.Record(a.ctx, func(remaining int) {
		c.update(a, func(s *Snapshot) {
			s.Phase = PhaseRecording
			s.Countdown = remaining
		})
	})
	if err != nil {
		c.fail(a, err)
		return
	}
	metrics.ObserveRecording(clip.Size())

	stats := session.Stats()
	log.Info("framegrid: recording finished",
		"session_id", stats.SessionID,
		"mime_type", stats.MimeType,
		"chunks", stats.Chunks,
		"bytes", stats.Bytes,
	)

	c.update(a, func(s *Snapshot) {
		s.Phase = PhaseProcessing
		s.Countdown = 0
		s.FramesTotal = c.extractor.Config().Frames
	})

	start := time.Now()
	res, err := c.extractor.Process(a.ctx, clip, func(fr extract.FrameResult) {
		metrics.RecordFrame(fr.Outcome.String())
		c.update(a, func(s *Snapshot) {
			s.FramesDone++
			if fr.Outcome.Success() {
				s.FramesOK++
			}
		})
	})
	metrics.ObserveExtraction(time.Since(start))
	if err != nil {
		c.fail(a, err)
		return
	}

	ready := c.update(a, func(s *Snapshot) {
		s.Phase = PhaseReady
		s.ImageURL = res.DataURL
		c.result = &attemptResult{id: a.id, mimeType: clip.MimeType, res: res, at: time.Now()}
	})
	if !ready {
		metrics.RecordAttempt("cancelled")
		return
	}

	metrics.RecordAttempt("ready")
	log.Info("framegrid: image ready",
		"frames_ok", res.Succeeded,
		"frames_total", len(res.Frames),
		"duration_s", res.Duration.Seconds,
		"duration_assumed", res.Duration.Assumed,
	)
}

// fail publishes err as a user-facing message. Cancellation is silent.
func (c *Component) fail(a *attempt, err error) {
	category := capture.CategoryOf(err)
	if category == capture.CategoryCancelled || errors.Is(err, context.Canceled) {
		metrics.RecordAttempt("cancelled")
		slog.Debug("framegrid: attempt cancelled", "attempt_id", a.id)
		return
	}

	metrics.RecordAttempt("failed")
	metrics.RecordFailure(category.String())
	slog.Error("framegrid: attempt failed",
		"attempt_id", a.id,
		"category", category.String(),
		"error", err,
	)

	c.update(a, func(s *Snapshot) {
		s.Phase = PhaseFailed
		s.Countdown = 0
		s.ImageURL = ""
		s.Error = capture.UserMessage(err)
		s.Category = category.String()
	})
}

func (c *Component) captureFor(r *attemptResult) *delivery.Capture {
	return &delivery.Capture{
		ID:              r.id,
		InstanceID:      c.opts.InstanceID,
		CapturedAt:      r.at,
		MimeType:        r.mimeType,
		FramesOK:        r.res.Succeeded,
		FramesTotal:     len(r.res.Frames),
		DurationSeconds: r.res.Duration.Seconds,
		DurationAssumed: r.res.Duration.Assumed,
		JPEG:            r.res.JPEG,
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Actions = append([]Action(nil), s.Actions...)
	return s
}
