package gstcam

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Format maps a recording MIME type to encoder and muxer factories.
type Format struct {
	MimeType string
	Encoder  string
	Muxer    string
}

var formats = map[string]Format{
	"video/webm;codecs=vp8": {MimeType: "video/webm;codecs=vp8", Encoder: "vp8enc", Muxer: "webmmux"},
	"video/webm":            {MimeType: "video/webm", Encoder: "vp8enc", Muxer: "webmmux"},
	"video/mp4":             {MimeType: "video/mp4", Encoder: "x264enc", Muxer: "mp4mux"},
}

// LookupFormat returns the factories for mime.
func LookupFormat(mime string) (Format, bool) {
	f, ok := formats[mime]
	return f, ok
}

// FormatAvailable reports whether the encoder and muxer for mime are installed.
func FormatAvailable(mime string) bool {
	f, ok := LookupFormat(mime)
	if !ok {
		return false
	}

	gst.Init(nil)
	if _, err := gst.NewElement(f.Encoder); err != nil {
		return false
	}
	if _, err := gst.NewElement(f.Muxer); err != nil {
		return false
	}
	return true
}

// RecordBranch is an encoder branch linked to the camera tee while the
// pipeline is PLAYING.
//
//	tee → queue → videoconvert → encoder → muxer → appsink
type RecordBranch struct {
	Format   Format
	Queue    *gst.Element
	Encoder  *gst.Element
	Muxer    *gst.Element
	Sink     *app.Sink
	elements []*gst.Element
	teePad   *gst.Pad

	eos     chan struct{}
	eosOnce sync.Once
}

// AttachRecordBranch builds a recorder branch and links it to the tee.
//
// onSample is called for every encoded buffer the muxer produces.
func AttachRecordBranch(el *PipelineElements, format Format, onSample func(*app.Sink) gst.FlowReturn) (*RecordBranch, error) {
	if el == nil || el.Tee == nil {
		return nil, fmt.Errorf("pipeline not initialized")
	}

	queue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("failed to create record queue: %w", err)
	}
	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create record videoconvert: %w", err)
	}
	encoder, err := gst.NewElement(format.Encoder)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", format.Encoder, err)
	}
	muxer, err := gst.NewElement(format.Muxer)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", format.Muxer, err)
	}
	configureEncoder(format, encoder, muxer)

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create record appsink: %w", err)
	}
	sink.SetProperty("sync", false)

	b := &RecordBranch{
		Format:   format,
		Queue:    queue,
		Encoder:  encoder,
		Muxer:    muxer,
		Sink:     sink,
		elements: []*gst.Element{queue, converter, encoder, muxer, sink.Element},
		eos:      make(chan struct{}),
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: onSample,
		EOSFunc: func(*app.Sink) {
			b.eosOnce.Do(func() { close(b.eos) })
		},
	})

	if err := el.Pipeline.AddMany(b.elements...); err != nil {
		return nil, fmt.Errorf("failed to add record branch: %w", err)
	}
	if err := gst.ElementLinkMany(b.elements...); err != nil {
		return nil, fmt.Errorf("failed to link record branch: %w", err)
	}

	for _, e := range b.elements {
		e.SyncStateWithParent()
	}

	b.teePad = el.Tee.GetRequestPad("src_%u")
	if b.teePad == nil {
		return nil, fmt.Errorf("failed to request tee pad")
	}
	sinkPad := queue.GetStaticPad("sink")
	if ret := b.teePad.Link(sinkPad); ret != gst.PadLinkOK {
		return nil, fmt.Errorf("failed to link tee to record branch: %v", ret)
	}

	slog.Debug("gstcam: record branch attached",
		"mime_type", format.MimeType,
		"encoder", format.Encoder,
		"muxer", format.Muxer,
	)

	return b, nil
}

func configureEncoder(format Format, encoder, muxer *gst.Element) {
	switch format.Encoder {
	case "vp8enc":
		encoder.SetProperty("deadline", int64(1)) // realtime
		encoder.SetProperty("cpu-used", 4)
		encoder.SetProperty("keyframe-max-dist", 30)
	case "x264enc":
		encoder.SetProperty("key-int-max", 30)
		encoder.SetProperty("bframes", 0)
	}

	switch format.Muxer {
	case "webmmux":
		muxer.SetProperty("streamable", true)
	case "mp4mux":
		// Fragmented so every flushed chunk carries decodable data.
		muxer.SetProperty("fragment-duration", 1000)
		muxer.SetProperty("streamable", true)
	}
}

// Finish sends EOS into the branch and waits until the muxer has written
// its trailer to the appsink.
func (b *RecordBranch) Finish(timeout time.Duration) error {
	pad := b.Queue.GetStaticPad("sink")
	if pad == nil || !pad.SendEvent(gst.NewEOSEvent()) {
		return fmt.Errorf("failed to send EOS to record branch")
	}

	select {
	case <-b.eos:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("record branch EOS timeout after %v", timeout)
	}
}

// DetachRecordBranch unlinks the branch from the tee and removes it.
func DetachRecordBranch(el *PipelineElements, b *RecordBranch) {
	if el == nil || b == nil {
		return
	}

	if b.teePad != nil {
		if sinkPad := b.Queue.GetStaticPad("sink"); sinkPad != nil {
			b.teePad.Unlink(sinkPad)
		}
		el.Tee.ReleaseRequestPad(b.teePad)
		b.teePad = nil
	}

	for _, e := range b.elements {
		if err := e.SetState(gst.StateNull); err != nil {
			slog.Debug("gstcam: failed to stop record element", "element", e.GetName(), "error", err)
		}
	}
	if err := el.Pipeline.RemoveMany(b.elements...); err != nil {
		slog.Debug("gstcam: failed to remove record branch", "error", err)
	}
}
