package gstclip

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// busPoll keeps waits responsive to ctx
const busPoll = 50 * time.Millisecond

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("player closed")

// Player is a PAUSED decoding pipeline over a clip file.
//
// Pipeline structure:
//
//	filesrc → decodebin → videoconvert → capsfilter(RGBA) → appsink
//
// decodebin exposes its video pad dynamically; it is linked in the
// pad-added callback.
//
// A Player is not safe for concurrent use; callers serialize access.
type Player struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
}

// Open builds the pipeline for path and sets it to PAUSED. Call
// WaitPrerolled before querying or seeking.
func Open(path string) (*Player, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	filesrc, err := gst.NewElement("filesrc")
	if err != nil {
		return nil, fmt.Errorf("failed to create filesrc: %w", err)
	}
	filesrc.SetProperty("location", path)

	decodebin, err := gst.NewElement("decodebin")
	if err != nil {
		return nil, fmt.Errorf("failed to create decodebin: %w", err)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=RGBA"))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)

	pipeline.AddMany(filesrc, decodebin, converter, capsfilter, sink.Element)

	if err := filesrc.Link(decodebin); err != nil {
		return nil, fmt.Errorf("failed to link filesrc: %w", err)
	}
	if err := gst.ElementLinkMany(converter, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link converter chain: %w", err)
	}

	decodebin.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		onPadAdded(srcPad, converter)
	})

	if err := pipeline.SetState(gst.StatePaused); err != nil {
		return nil, fmt.Errorf("failed to pause pipeline: %w", err)
	}

	return &Player{pipeline: pipeline, sink: sink}, nil
}

// onPadAdded links the first video pad of decodebin to the converter.
func onPadAdded(srcPad *gst.Pad, converter *gst.Element) {
	if caps := srcPad.GetCurrentCaps(); caps != nil && caps.GetSize() > 0 {
		if name := caps.GetStructureAt(0).Name(); !strings.HasPrefix(name, "video/") {
			slog.Debug("gstclip: ignoring non-video pad", "pad", srcPad.GetName(), "caps", name)
			return
		}
	}

	sinkPad := converter.GetStaticPad("sink")
	if sinkPad == nil || sinkPad.IsLinked() {
		return
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstclip: failed to link decoded pad", "pad", srcPad.GetName(), "ret", ret)
	}
}

// WaitPrerolled blocks until the pipeline has prerolled (ASYNC_DONE),
// an error is posted, or ctx is done.
func (p *Player) WaitPrerolled(ctx context.Context) error {
	return p.waitAsyncDone(ctx)
}

// Duration returns the clip length in seconds, or false when the demuxer
// cannot report one.
func (p *Player) Duration() (float64, bool) {
	if p.pipeline == nil {
		return 0, false
	}
	ok, ns := p.pipeline.QueryDuration(gst.FormatTime)
	if !ok || ns <= 0 {
		return 0, false
	}
	return float64(ns) / float64(time.Second), true
}

// Seek performs a flushing accurate seek to t seconds and returns the
// prerolled frame. Returns a nil image when the frame has no usable size.
func (p *Player) Seek(ctx context.Context, t float64) (*image.RGBA, error) {
	if p.pipeline == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pos := int64(t * float64(time.Second))
	if !p.pipeline.SeekSimple(pos, gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagAccurate) {
		return nil, fmt.Errorf("seek to %dns rejected", pos)
	}

	if err := p.waitAsyncDone(ctx); err != nil {
		return nil, err
	}

	sample := p.sink.PullPreroll()
	if sample == nil {
		return nil, nil
	}
	return sampleToRGBA(sample), nil
}

func (p *Player) waitAsyncDone(ctx context.Context) error {
	if p.pipeline == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bus := p.pipeline.GetPipelineBus()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := bus.TimedPop(busPoll)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageAsyncDone:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("decode error: %s (%s)", gerr.Error(), gerr.DebugString())
		case gst.MessageEOS:
			// Seeking past the last frame prerolls nothing.
			return nil
		}
	}
}

// sampleToRGBA copies an RGBA sample into an image. Returns nil when the
// caps carry no size or the buffer does not match it.
func sampleToRGBA(sample *gst.Sample) *image.RGBA {
	width, height := sampleSize(sample)
	if width <= 0 || height <= 0 {
		return nil
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil
	}
	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	data := mapInfo.Bytes()
	if len(data) < width*height*4 {
		return nil
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data[:width*height*4])
	return img
}

func sampleSize(sample *gst.Sample) (int, int) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	s := caps.GetStructureAt(0)

	w, err := s.GetValue("width")
	if err != nil {
		return 0, 0
	}
	h, err := s.GetValue("height")
	if err != nil {
		return 0, 0
	}

	wi, ok1 := w.(int)
	hi, ok2 := h.(int)
	if !ok1 || !ok2 {
		return 0, 0
	}
	return wi, hi
}

// Close sets the pipeline to NULL.
func (p *Player) Close() error {
	if p.pipeline == nil {
		return nil
	}
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	p.pipeline = nil
	return nil
}
