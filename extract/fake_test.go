package extract

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/relief-capture/capture"
)

type fakeDecoder struct {
	video   *fakeVideo
	openErr error

	mu    sync.Mutex
	opens int
}

func (d *fakeDecoder) Open(context.Context, *capture.Clip) (Video, error) {
	d.mu.Lock()
	d.opens++
	d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.video, nil
}

func (d *fakeDecoder) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// fakeVideo reports durations[call] (last value repeats) and answers seeks
// through seekFn.
type fakeVideo struct {
	durations     []float64
	blockDuration bool
	hangDuration  chan struct{}
	seekFn        func(index int, t float64) (image.Image, error)

	inflight    atomic.Int32
	maxInflight atomic.Int32

	mu            sync.Mutex
	durationCalls int
	seeks         []float64
	seekTimes     []time.Time
	closed        bool
}

func (v *fakeVideo) Duration(ctx context.Context) (float64, error) {
	v.mu.Lock()
	call := v.durationCalls
	v.durationCalls++
	v.mu.Unlock()

	if v.blockDuration {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if v.hangDuration != nil {
		<-v.hangDuration
		return 0, nil
	}
	if len(v.durations) == 0 {
		return 0, nil
	}
	if call >= len(v.durations) {
		call = len(v.durations) - 1
	}
	return v.durations[call], nil
}

func (v *fakeVideo) Seek(ctx context.Context, t float64) (image.Image, error) {
	n := v.inflight.Add(1)
	defer v.inflight.Add(-1)
	for {
		peak := v.maxInflight.Load()
		if n <= peak || v.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	v.mu.Lock()
	index := len(v.seeks)
	v.seeks = append(v.seeks, t)
	v.seekTimes = append(v.seekTimes, time.Now())
	v.mu.Unlock()

	if v.seekFn == nil {
		return solid(320, 240, color.RGBA{R: 200, A: 255}), nil
	}
	return v.seekFn(index, t)
}

func (v *fakeVideo) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

func (v *fakeVideo) snapshot() (durationCalls int, seeks []float64, closed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.durationCalls, append([]float64(nil), v.seeks...), v.closed
}

func (v *fakeVideo) seekStarts() []time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]time.Time(nil), v.seekTimes...)
}

func (v *fakeVideo) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func testClip() *capture.Clip {
	return &capture.Clip{Data: []byte("webm"), MimeType: capture.MimeWebM, Chunks: 1}
}

// fastConfig keeps the real layout but shrinks every wait.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.DurationTimeout = 50 * time.Millisecond
	cfg.DurationRetryDelay = time.Millisecond
	cfg.SeekTimeout = 100 * time.Millisecond
	cfg.SettleDelay = 0
	return cfg
}
