package preview

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// idleThreshold defines when a viewer is considered idle (no consume activity).
const idleThreshold = 30 * time.Second

// Frame is one raw preview frame (packed RGB, 3 bytes per pixel).
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
	TraceID   string
}

// Image converts the RGB payload to RGBA.
func (f *Frame) Image() (*image.RGBA, error) {
	expected := f.Width * f.Height * 3
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) != expected {
		return nil, fmt.Errorf("preview: invalid frame %dx%d with %d bytes (expected %d)",
			f.Width, f.Height, len(f.Data), expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
		img.Pix[j] = f.Data[i]
		img.Pix[j+1] = f.Data[i+1]
		img.Pix[j+2] = f.Data[i+2]
		img.Pix[j+3] = 255
	}
	return img, nil
}

// EncodeJPEG writes the frame as JPEG.
func (f *Frame) EncodeJPEG(w io.Writer, quality int) error {
	img, err := f.Image()
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// Supplier holds the latest preview frame and hands it to viewers with
// mailbox semantics: each viewer has a single slot, a new frame overwrites
// an unconsumed one.
type Supplier struct {
	mu     sync.RWMutex
	latest *Frame

	slots     sync.Map // viewerID -> *viewerSlot
	published uint64
	stopping  atomic.Bool
}

type viewerSlot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame

	lastConsumedAt   time.Time
	lastConsumedSeq  uint64
	consecutiveDrops uint64
	totalDrops       uint64

	closed bool
}

// New creates an empty supplier.
func New() *Supplier {
	return &Supplier{}
}

// Publish stores frame as the latest and offers it to every viewer.
// Non-blocking.
func (s *Supplier) Publish(frame *Frame) {
	if frame == nil || s.stopping.Load() {
		return
	}

	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
	atomic.AddUint64(&s.published, 1)

	s.slots.Range(func(_, value any) bool {
		publishToSlot(value.(*viewerSlot), frame)
		return true
	})
}

func publishToSlot(slot *viewerSlot, frame *Frame) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.closed {
		return
	}
	if slot.frame != nil {
		slot.consecutiveDrops++
		slot.totalDrops++
	}
	slot.frame = frame
	slot.cond.Signal()
}

// Latest returns the most recent frame, if any.
func (s *Supplier) Latest() (*Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// Reset drops the latest frame (the camera was released).
func (s *Supplier) Reset() {
	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
}

// Subscribe registers a viewer and returns a blocking read function.
//
// The read function returns nil once the viewer is unsubscribed or the
// supplier stops. It must be called from a single goroutine.
func (s *Supplier) Subscribe(viewerID string) func() *Frame {
	if s.stopping.Load() {
		return func() *Frame { return nil }
	}

	slot := &viewerSlot{lastConsumedAt: time.Now()}
	slot.cond = sync.NewCond(&slot.mu)
	if old, loaded := s.slots.Swap(viewerID, slot); loaded {
		closeSlot(old.(*viewerSlot))
	}

	return func() *Frame {
		slot.mu.Lock()
		defer slot.mu.Unlock()

		for slot.frame == nil && !slot.closed {
			slot.cond.Wait()
		}
		if slot.closed {
			return nil
		}

		frame := slot.frame
		slot.frame = nil
		slot.lastConsumedAt = time.Now()
		slot.lastConsumedSeq = frame.Seq
		slot.consecutiveDrops = 0
		return frame
	}
}

// Unsubscribe removes a viewer and wakes its read function.
//
// Idempotent.
func (s *Supplier) Unsubscribe(viewerID string) {
	val, ok := s.slots.LoadAndDelete(viewerID)
	if !ok {
		return
	}
	closeSlot(val.(*viewerSlot))
}

func closeSlot(slot *viewerSlot) {
	slot.mu.Lock()
	slot.closed = true
	slot.cond.Broadcast()
	slot.mu.Unlock()
}

// Stop closes every viewer. Further Publish and Subscribe calls are no-ops.
func (s *Supplier) Stop() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	s.slots.Range(func(key, value any) bool {
		closeSlot(value.(*viewerSlot))
		s.slots.Delete(key)
		return true
	})
}

// Stats is a snapshot of supplier state.
type Stats struct {
	Published uint64
	Viewers   map[string]ViewerStats
}

// ViewerStats tracks per-viewer delivery.
type ViewerStats struct {
	ViewerID         string
	LastConsumedAt   time.Time
	LastConsumedSeq  uint64
	ConsecutiveDrops uint64
	TotalDrops       uint64
	IsIdle           bool
}

// Stats returns a snapshot. Non-blocking with respect to Publish.
func (s *Supplier) Stats() Stats {
	viewers := make(map[string]ViewerStats)

	s.slots.Range(func(key, value any) bool {
		id := key.(string)
		slot := value.(*viewerSlot)

		slot.mu.Lock()
		viewers[id] = ViewerStats{
			ViewerID:         id,
			LastConsumedAt:   slot.lastConsumedAt,
			LastConsumedSeq:  slot.lastConsumedSeq,
			ConsecutiveDrops: slot.consecutiveDrops,
			TotalDrops:       slot.totalDrops,
			IsIdle:           time.Since(slot.lastConsumedAt) > idleThreshold,
		}
		slot.mu.Unlock()
		return true
	})

	return Stats{
		Published: atomic.LoadUint64(&s.published),
		Viewers:   viewers,
	}
}
