package gstcam

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// ChunkBuffer accumulates encoded bytes between flushes.
type ChunkBuffer struct {
	mu      sync.Mutex
	pending []byte
	total   uint64
}

// Append copies p into the pending buffer.
func (b *ChunkBuffer) Append(p []byte) {
	b.mu.Lock()
	b.pending = append(b.pending, p...)
	b.mu.Unlock()
	atomic.AddUint64(&b.total, uint64(len(p)))
}

// Flush returns the pending bytes and resets the buffer.
// Returns nil when nothing is pending.
func (b *ChunkBuffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}

// Total returns the number of bytes ever appended.
func (b *ChunkBuffer) Total() uint64 {
	return atomic.LoadUint64(&b.total)
}

// OnEncodedSample is the record appsink callback.
//
// Pulls the muxer output and appends a copy to buf (GStreamer reuses
// the buffer). Single bad samples are skipped rather than failing the
// recording.
func OnEncodedSample(sink *app.Sink, buf *ChunkBuffer) gst.FlowReturn {
	data, ok := pullBytes(sink)
	if !ok {
		return gst.FlowOK
	}
	buf.Append(data)
	return gst.FlowOK
}

// PreviewFrame is a raw RGB preview frame (avoids import cycle)
type PreviewFrame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
	TraceID   string
}

// PreviewContext holds state needed by the preview callback
type PreviewContext struct {
	Publish func(PreviewFrame)
	Counter *uint64
	Width   int
	Height  int
}

// OnPreviewSample is the preview appsink callback.
func OnPreviewSample(sink *app.Sink, ctx *PreviewContext) gst.FlowReturn {
	data, ok := pullBytes(sink)
	if !ok {
		return gst.FlowOK
	}

	ctx.Publish(PreviewFrame{
		Seq:       atomic.AddUint64(ctx.Counter, 1),
		Timestamp: time.Now(),
		Width:     ctx.Width,
		Height:    ctx.Height,
		Data:      data,
		TraceID:   uuid.New().String(),
	})

	return gst.FlowOK
}

func pullBytes(sink *app.Sink) ([]byte, bool) {
	sample := sink.PullSample()
	if sample == nil {
		return nil, false
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, false
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return nil, false
	}

	out := make([]byte, len(data))
	copy(out, data)
	buffer.Unmap()

	return out, true
}
