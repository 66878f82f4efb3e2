package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session records one fixed-length clip from a Camera.
//
// A Session is single-use: one Record call per Session. A retry creates a
// new Session so no chunk from a previous attempt can leak into the next.
type Session struct {
	id     string
	camera Camera
	cfg    RecordingConfig

	mu         sync.Mutex
	chunks     []Chunk
	chunkTimes []time.Time
	bytes      int
	mimeType   string
	startedAt  time.Time
	stoppedAt  time.Time
	cadence    *CadenceStats

	stream   Stream
	released atomic.Bool
	used     atomic.Bool
}

// NewSession creates a recording session with fail-fast validation.
func NewSession(camera Camera, cfg RecordingConfig) (*Session, error) {
	if camera == nil {
		return nil, fmt.Errorf("capture: camera is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Session{
		id:     uuid.New().String(),
		camera: camera,
		cfg:    cfg,
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Record acquires the camera, records for the configured window and returns
// the concatenated clip.
//
// This method:
//  1. Opens the camera (bounded by AcquireTimeout)
//  2. Selects the first supported recording format
//  3. Starts the recorder and reports the countdown through onTick
//  4. Requests data every Timeslice
//  5. Stops at the Window mark (or earlier if the device is lost)
//  6. Releases the camera before returning, on every path
//
// Errors are *Error values; cancelling ctx yields CategoryCancelled.
func (s *Session) Record(ctx context.Context, onTick TickFunc) (*Clip, error) {
	if !s.used.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("capture: session %s already used", s.id)
	}
	if onTick == nil {
		onTick = func(int) {}
	}

	stream, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release()

	mime, err := SelectMimeType(s.cfg.MimePreferences, stream.SupportsMimeType)
	if err != nil {
		return nil, err
	}

	rec, err := stream.NewRecorder(mime, s.appendChunk)
	if err != nil {
		return nil, NewError(CategoryFormat, fmt.Errorf("create recorder for %s: %w", mime, err))
	}

	s.mu.Lock()
	s.mimeType = mime
	s.startedAt = time.Now()
	s.mu.Unlock()

	if err := rec.Start(); err != nil {
		return nil, NewError(CategoryPermission, fmt.Errorf("start recorder: %w", err))
	}

	slog.Info("capture: recording started",
		"session_id", s.id,
		"stream_id", stream.ID(),
		"mime_type", mime,
		"window", s.cfg.Window,
	)

	reason := s.runWindow(ctx, stream, rec, onTick)

	stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	stopErr := rec.Stop(stopCtx)
	cancel()
	if stopErr != nil {
		slog.Warn("capture: recorder stop did not complete",
			"session_id", s.id,
			"error", stopErr,
		)
	}

	// Camera is released before any processing begins.
	s.release()

	s.mu.Lock()
	s.stoppedAt = time.Now()
	s.cadence = CalculateCadence(s.chunkTimes, s.cfg.Timeslice)
	s.mu.Unlock()

	if reason == stopCancelled {
		return nil, NewError(CategoryCancelled, ctx.Err())
	}

	return s.buildClip()
}

type stopReason int

const (
	stopWindow stopReason = iota
	stopLost
	stopCancelled
)

func (r stopReason) String() string {
	switch r {
	case stopLost:
		return "device_lost"
	case stopCancelled:
		return "cancelled"
	default:
		return "window_elapsed"
	}
}

// runWindow drives the countdown and the data requests until the stop
// timer fires. The countdown and the stop timer are independent; when the
// stop timer wins the race the countdown is finished at 0.
func (s *Session) runWindow(ctx context.Context, stream Stream, rec Recorder, onTick TickFunc) stopReason {
	remaining := s.cfg.CountdownStart()
	onTick(remaining)

	countdown := time.NewTicker(s.cfg.Tick)
	defer countdown.Stop()
	slices := time.NewTicker(s.cfg.Timeslice)
	defer slices.Stop()
	stop := time.NewTimer(s.cfg.Window)
	defer stop.Stop()

	countdownC := countdown.C
	finish := func(reason stopReason) stopReason {
		if remaining > 0 {
			remaining = 0
			onTick(0)
		}
		slog.Debug("capture: recording window ended",
			"session_id", s.id,
			"reason", reason.String(),
		)
		return reason
	}

	for {
		select {
		case <-ctx.Done():
			return stopCancelled

		case <-stream.Lost():
			slog.Warn("capture: camera lost during recording", "session_id", s.id)
			return finish(stopLost)

		case <-countdownC:
			if remaining > 0 {
				remaining--
				onTick(remaining)
			}
			if remaining == 0 {
				countdown.Stop()
				countdownC = nil
			}

		case <-slices.C:
			rec.RequestData()

		case <-stop.C:
			return finish(stopWindow)
		}
	}
}

func (s *Session) acquire(ctx context.Context) (Stream, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()

	start := time.Now()
	stream, err := s.camera.Open(acquireCtx, s.cfg.Constraints)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(CategoryCancelled, ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v: %w", ErrCameraTimeout, s.cfg.AcquireTimeout, err)
		}
		slog.Error("capture: camera acquisition failed",
			"session_id", s.id,
			"error", err,
			"elapsed", time.Since(start),
		)
		return nil, NewError(CategoryPermission, err)
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	settings := stream.Settings()
	slog.Info("capture: camera acquired",
		"session_id", s.id,
		"stream_id", stream.ID(),
		"device", settings.Device,
		"resolution", fmt.Sprintf("%dx%d", settings.Width, settings.Height),
		"elapsed", time.Since(start),
	)

	return stream, nil
}

// release stops every track of the stream. Idempotent.
func (s *Session) release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return
	}

	if err := stream.Stop(); err != nil {
		slog.Warn("capture: camera release failed",
			"session_id", s.id,
			"stream_id", stream.ID(),
			"error", err,
		)
		return
	}
	slog.Debug("capture: camera released", "session_id", s.id, "stream_id", stream.ID())
}

// appendChunk is the recorder's data callback.
// Zero-length chunks are kept so an all-empty recording is reported as
// empty rather than as missing data.
func (s *Session) appendChunk(c Chunk) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.Seq = uint64(len(s.chunks) + 1)
	s.chunks = append(s.chunks, c)
	s.chunkTimes = append(s.chunkTimes, c.Timestamp)
	s.bytes += len(c.Data)
}

func (s *Session) buildClip() (*Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.chunks) == 0 {
		slog.Warn("capture: recording produced no chunks", "session_id", s.id)
		return nil, NewErrorMessage(CategoryEmpty, MsgNoVideoData, ErrNoVideoData)
	}
	if s.bytes == 0 {
		return nil, NewErrorMessage(CategoryEmpty, MsgEmptyRecording, ErrEmptyRecording)
	}

	var buf bytes.Buffer
	buf.Grow(s.bytes)
	for _, c := range s.chunks {
		buf.Write(c.Data)
	}

	clip := &Clip{
		Data:     buf.Bytes(),
		MimeType: s.mimeType,
		Chunks:   len(s.chunks),
		Recorded: s.stoppedAt.Sub(s.startedAt),
	}

	slog.Info("capture: recording finished",
		"session_id", s.id,
		"mime_type", clip.MimeType,
		"chunks", clip.Chunks,
		"bytes", clip.Size(),
		"recorded", clip.Recorded,
		"steady_cadence", s.cadence != nil && s.cadence.IsSteady,
	)

	return clip, nil
}

// Stats returns a snapshot of the recording.
func (s *Session) Stats() RecordingStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return RecordingStats{
		SessionID:      s.id,
		MimeType:       s.mimeType,
		Chunks:         len(s.chunks),
		Bytes:          s.bytes,
		StartedAt:      s.startedAt,
		StoppedAt:      s.stoppedAt,
		StreamReleased: s.released.Load(),
		Cadence:        s.cadence,
	}
}
