package httpapi

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/e7canasta/relief-capture/capture"
	"github.com/e7canasta/relief-capture/extract"
	"github.com/e7canasta/relief-capture/framegrid"
)

type fakeCamera struct{}

func (fakeCamera) Open(context.Context, capture.Constraints) (capture.Stream, error) {
	return &fakeStream{lost: make(chan struct{})}, nil
}

type fakeStream struct {
	lost chan struct{}
}

func (s *fakeStream) ID() string                       { return "fake" }
func (s *fakeStream) Settings() capture.StreamSettings { return capture.StreamSettings{Width: 1280, Height: 720} }
func (s *fakeStream) SupportsMimeType(string) bool     { return true }
func (s *fakeStream) Lost() <-chan struct{}            { return s.lost }
func (s *fakeStream) Stop() error                      { return nil }

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
func (r *fakeRecorder) RequestData() { r.onData(capture.Chunk{Data: []byte("cluster")}) }
func (r *fakeRecorder) Stop(context.Context) error {
	r.mu.Lock()
	r.state = capture.RecorderInactive
	r.mu.Unlock()
	return nil
}
func (r *fakeRecorder) State() capture.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

type fakeDecoder struct{}

func (fakeDecoder) Open(context.Context, *capture.Clip) (extract.Video, error) {
	return fakeVideo{}, nil
}

type fakeVideo struct{}

func (fakeVideo) Duration(context.Context) (float64, error) { return 9.0, nil }
func (fakeVideo) Close() error                              { return nil }
func (fakeVideo) Seek(context.Context, float64) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 18))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0x30, 0x60, 0x90, 0xff
	}
	return img, nil
}

// testFactory builds components recording for window.
func testFactory(window time.Duration) Factory {
	return func(onImageReady func(string), onClose func()) (*framegrid.Component, error) {
		rec := capture.DefaultRecordingConfig()
		rec.Window = window
		rec.Tick = window / 9
		rec.Timeslice = window / 9
		rec.AcquireTimeout = 200 * time.Millisecond
		rec.StopTimeout = 100 * time.Millisecond

		ex := extract.DefaultConfig()
		ex.CellSize = 16
		ex.SettleDelay = time.Millisecond
		ex.DurationRetryDelay = time.Millisecond

		return framegrid.New(framegrid.Options{
			InstanceID:   "test",
			Camera:       fakeCamera{},
			Decoder:      fakeDecoder{},
			Recording:    rec,
			Extraction:   ex,
			OnImageReady: onImageReady,
			OnClose:      onClose,
		})
	}
}
