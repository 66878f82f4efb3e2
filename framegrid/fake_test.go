package framegrid

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/relief-capture/capture"
	"github.com/e7canasta/relief-capture/delivery"
	"github.com/e7canasta/relief-capture/extract"
)

// fakeCamera hands out a fresh stream per Open.
type fakeCamera struct {
	openErr atomic.Pointer[error]

	mu      sync.Mutex
	streams []*fakeStream
}

func (c *fakeCamera) Open(ctx context.Context, _ capture.Constraints) (capture.Stream, error) {
	if p := c.openErr.Load(); p != nil && *p != nil {
		return nil, *p
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeStream{id: fmt.Sprintf("stream-%d", len(c.streams)+1), lost: make(chan struct{})}
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeCamera) setOpenErr(err error) { c.openErr.Store(&err) }

func (c *fakeCamera) opened() []*fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeStream(nil), c.streams...)
}

type fakeStream struct {
	id    string
	lost  chan struct{}
	stops atomic.Int32
}

func (s *fakeStream) ID() string                       { return s.id }
func (s *fakeStream) Settings() capture.StreamSettings { return capture.StreamSettings{Device: "fake", Width: 1280, Height: 720} }
func (s *fakeStream) SupportsMimeType(string) bool     { return true }
func (s *fakeStream) Lost() <-chan struct{}            { return s.lost }
func (s *fakeStream) Stop() error                      { s.stops.Add(1); return nil }
func (s *fakeStream) released() bool                   { return s.stops.Load() > 0 }

func (s *fakeStream) NewRecorder(mime string, onData func(capture.Chunk)) (capture.Recorder, error) {
	return &fakeRecorder{mime: mime, onData: onData}, nil
}

type fakeRecorder struct {
	mime   string
	onData func(capture.Chunk)

	mu    sync.Mutex
	state capture.RecorderState
}

func (r *fakeRecorder) MimeType() string { return r.mime }

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	r.state = capture.RecorderRecording
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) RequestData() {
	r.onData(capture.Chunk{Data: []byte("cluster")})
}

func (r *fakeRecorder) Stop(context.Context) error {
	r.mu.Lock()
	r.state = capture.RecorderInactive
	r.mu.Unlock()
	r.onData(capture.Chunk{Data: []byte("tail")})
	return nil
}

func (r *fakeRecorder) State() capture.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// fakeDecoder serves a 9s clip of solid frames unless seeks are set to fail.
type fakeDecoder struct {
	failSeeks atomic.Bool
	opens     atomic.Int32
}

func (d *fakeDecoder) Open(context.Context, *capture.Clip) (extract.Video, error) {
	d.opens.Add(1)
	return &fakeVideo{fail: d.failSeeks.Load()}, nil
}

type fakeVideo struct {
	fail bool
}

func (v *fakeVideo) Duration(context.Context) (float64, error) { return 9.0, nil }

func (v *fakeVideo) Seek(_ context.Context, t float64) (image.Image, error) {
	if v.fail {
		return nil, errors.New("seek rejected")
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	c := color.RGBA{R: uint8(t * 20), G: 0x80, B: 0x40, A: 0xff}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

func (v *fakeVideo) Close() error { return nil }

// recordingSink captures what Accept delivers.
type recordingSink struct {
	mu       sync.Mutex
	captures []*delivery.Capture
	err      error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, c *delivery.Capture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures = append(s.captures, c)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) delivered() []*delivery.Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*delivery.Capture(nil), s.captures...)
}

// blockingSink holds Deliver until release is closed and reports the
// delivery context's error at that point.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(ctx context.Context, _ *delivery.Capture) error {
	close(s.entered)
	<-s.release
	s.ctxErr <- ctx.Err()
	return nil
}

func (s *blockingSink) Close() error { return nil }

// callbacks counts OnImageReady / OnClose.
type callbacks struct {
	mu     sync.Mutex
	images []string
	closes int
}

func (c *callbacks) onImageReady(url string) {
	c.mu.Lock()
	c.images = append(c.images, url)
	c.mu.Unlock()
}

func (c *callbacks) onClose() {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
}

func (c *callbacks) counts() (images []string, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.images...), c.closes
}

func fastRecording(window time.Duration) capture.RecordingConfig {
	cfg := capture.DefaultRecordingConfig()
	cfg.Window = window
	cfg.Tick = window / 9
	cfg.Timeslice = window / 9
	cfg.AcquireTimeout = 200 * time.Millisecond
	cfg.StopTimeout = 100 * time.Millisecond
	return cfg
}

func fastExtraction() extract.Config {
	cfg := extract.DefaultConfig()
	cfg.CellSize = 32
	cfg.SeekTimeout = 200 * time.Millisecond
	cfg.DurationTimeout = 100 * time.Millisecond
	cfg.DurationRetryDelay = time.Millisecond
	cfg.SettleDelay = time.Millisecond
	return cfg
}
