package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/relief-capture/capture/internal/gstcam"
	"github.com/e7canasta/relief-capture/preview"
	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstConfig configures the GStreamer camera.
type GstConfig struct {
	// Source is "auto", "v4l2" or "test"
	Source string
	// Device is the V4L2 device path (only with Source "v4l2")
	Device string
	// FacingDevices maps a facing mode to a V4L2 device path. Open uses the
	// entry for Constraints.Facing and falls back to Device.
	FacingDevices map[FacingMode]string
	// PreviewFPS is the live preview rate (0 disables preview)
	PreviewFPS float64
	// Preview receives preview frames (optional)
	Preview *preview.Supplier
}

// GstCamera implements Camera using a GStreamer capture pipeline.
type GstCamera struct {
	source        gstcam.SourceKind
	device        string
	facingDevices map[FacingMode]string
	previewFPS    float64
	preview       *preview.Supplier
}

// NewGstCamera creates a GStreamer camera with fail-fast validation
//
// Returns an error if the source is unknown, the preview rate is out of
// range, or GStreamer is not available.
func NewGstCamera(cfg GstConfig) (*GstCamera, error) {
	var source gstcam.SourceKind
	switch cfg.Source {
	case "", "auto":
		source = gstcam.SourceAuto
	case "v4l2":
		source = gstcam.SourceV4L2
		if cfg.Device == "" && len(cfg.FacingDevices) == 0 {
			return nil, fmt.Errorf("capture: device is required for v4l2 source")
		}
	case "test":
		source = gstcam.SourceTest
	default:
		return nil, fmt.Errorf("capture: invalid camera source %q (must be auto, v4l2 or test)", cfg.Source)
	}

	if cfg.PreviewFPS < 0 || cfg.PreviewFPS > 30 {
		return nil, fmt.Errorf("capture: invalid preview FPS %.2f (must be 0-30)", cfg.PreviewFPS)
	}

	if err := gstcam.CheckAvailable(); err != nil {
		return nil, fmt.Errorf("capture: GStreamer not available: %w", err)
	}

	return &GstCamera{
		source:        source,
		device:        cfg.Device,
		facingDevices: cfg.FacingDevices,
		previewFPS:    cfg.PreviewFPS,
		preview:       cfg.Preview,
	}, nil
}

// Open builds the capture pipeline and blocks until it is PLAYING.
func (c *GstCamera) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	previewFPS := c.previewFPS
	if c.preview == nil {
		previewFPS = 0
	}

	device, err := c.deviceFor(constraints.Facing)
	if err != nil {
		return nil, err
	}

	elements, err := gstcam.CreatePipeline(gstcam.PipelineConfig{
		Source:     c.source,
		Device:     device,
		Width:      constraints.Width,
		Height:     constraints.Height,
		PreviewFPS: previewFPS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	s := &gstStream{
		id:       uuid.New().String(),
		elements: elements,
		settings: StreamSettings{
			Device: c.deviceName(device),
			Width:  constraints.Width,
			Height: constraints.Height,
		},
		preview: c.preview,
		lost:    make(chan struct{}),
	}

	if elements.PreviewSink != nil {
		pctx := &gstcam.PreviewContext{
			Publish: s.publishPreview,
			Counter: &s.previewFrames,
			Width:   constraints.Width,
			Height:  constraints.Height,
		}
		elements.PreviewSink.SetCallbacks(&app.SinkCallbacks{
			NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
				return gstcam.OnPreviewSample(sink, pctx)
			},
		})
	}

	if err := gstcam.WaitPlaying(ctx, elements); err != nil {
		_ = gstcam.DestroyPipeline(elements)
		return nil, classifyOpenError(err)
	}

	var watchCtx context.Context
	watchCtx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		gstcam.WatchBus(watchCtx, elements, s.markLost)
	}()

	return s, nil
}

// deviceFor resolves the V4L2 device for facing. autovideosrc and
// videotestsrc expose no facing, so other sources ignore it.
func (c *GstCamera) deviceFor(facing FacingMode) (string, error) {
	if c.source != gstcam.SourceV4L2 {
		if facing != "" {
			slog.Debug("capture: facing mode not selectable for source",
				"source", c.source.String(),
				"facing", string(facing),
			)
		}
		return "", nil
	}

	if dev, ok := c.facingDevices[facing]; ok && dev != "" {
		return dev, nil
	}
	if c.device == "" {
		return "", fmt.Errorf("%w: no device for facing %q", ErrCameraUnavailable, facing)
	}
	return c.device, nil
}

func (c *GstCamera) deviceName(device string) string {
	if c.source == gstcam.SourceV4L2 {
		return device
	}
	return c.source.String()
}

func classifyOpenError(err error) error {
	var derr *gstcam.DeviceError
	if errors.As(err, &derr) {
		switch derr.Category {
		case gstcam.ErrCategoryPermission:
			return fmt.Errorf("%w: %w", ErrCameraDenied, err)
		default:
			return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCameraTimeout, err)
	}
	return err
}

// gstStream is a live camera pipeline.
type gstStream struct {
	id       string
	elements *gstcam.PipelineElements
	settings StreamSettings
	preview  *preview.Supplier

	previewFrames uint64

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	lost     chan struct{}
	lostOnce sync.Once
}

func (s *gstStream) ID() string               { return s.id }
func (s *gstStream) Settings() StreamSettings { return s.settings }
func (s *gstStream) Lost() <-chan struct{}    { return s.lost }

func (s *gstStream) SupportsMimeType(mime string) bool {
	return gstcam.FormatAvailable(mime)
}

func (s *gstStream) NewRecorder(mime string, onData func(Chunk)) (Recorder, error) {
	format, ok := gstcam.LookupFormat(mime)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("capture: stream %s already stopped", s.id)
	}

	return &gstRecorder{
		stream: s,
		format: format,
		onData: onData,
	}, nil
}

func (s *gstStream) publishPreview(f gstcam.PreviewFrame) {
	if s.preview == nil {
		return
	}
	s.preview.Publish(&preview.Frame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Data:      f.Data,
		TraceID:   f.TraceID,
	})
}

func (s *gstStream) markLost(err error) {
	s.lostOnce.Do(func() {
		slog.Warn("capture: camera stream lost", "stream_id", s.id, "error", err)
		close(s.lost)
	})
}

// Stop destroys the pipeline, closing the device.
//
// Idempotent - safe to call multiple times.
func (s *gstStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("capture: stop timeout exceeded, bus watcher may still be running", "stream_id", s.id)
	}

	err := gstcam.DestroyPipeline(s.elements)
	if s.preview != nil {
		s.preview.Reset()
	}

	slog.Debug("capture: camera stream stopped",
		"stream_id", s.id,
		"preview_frames", atomic.LoadUint64(&s.previewFrames),
	)

	if err != nil {
		return fmt.Errorf("capture: failed to release camera: %w", err)
	}
	return nil
}

// gstRecorder encodes the tee output into container chunks.
type gstRecorder struct {
	stream *gstStream
	format gstcam.Format
	onData func(Chunk)

	mu     sync.Mutex
	state  RecorderState
	branch *gstcam.RecordBranch
	buf    gstcam.ChunkBuffer
	seq    uint64
}

func (r *gstRecorder) MimeType() string { return r.format.MimeType }

func (r *gstRecorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *gstRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RecorderRecording {
		return fmt.Errorf("capture: recorder already started")
	}

	branch, err := gstcam.AttachRecordBranch(r.stream.elements, r.format, func(sink *app.Sink) gst.FlowReturn {
		return gstcam.OnEncodedSample(sink, &r.buf)
	})
	if err != nil {
		return err
	}
	r.branch = branch
	r.state = RecorderRecording
	return nil
}

func (r *gstRecorder) RequestData() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *gstRecorder) flushLocked() {
	data := r.buf.Flush()
	if data == nil {
		return
	}
	r.seq++
	r.onData(Chunk{Seq: r.seq, Data: data, Timestamp: time.Now()})
}

func (r *gstRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecorderRecording {
		return nil
	}
	r.state = RecorderInactive

	timeout := 3 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	finishErr := r.branch.Finish(timeout)
	r.flushLocked()
	gstcam.DetachRecordBranch(r.stream.elements, r.branch)
	r.branch = nil

	slog.Debug("capture: recorder stopped",
		"stream_id", r.stream.id,
		"mime_type", r.format.MimeType,
		"bytes", r.buf.Total(),
		"chunks", r.seq,
	)

	return finishErr
}
