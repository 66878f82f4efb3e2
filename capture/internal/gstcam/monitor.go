package gstcam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// busPoll keeps shutdown responsive while polling the bus
const busPoll = 50 * time.Millisecond

// WaitPlaying starts the pipeline and blocks until it reaches PLAYING.
//
// Returns a *DeviceError when the source posts an error (permission,
// busy device), or ctx.Err() when ctx is done first.
func WaitPlaying(ctx context.Context, el *PipelineElements) error {
	if err := el.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	bus := el.Pipeline.GetPipelineBus()
	name := el.Pipeline.GetName()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := bus.TimedPop(busPoll)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			return NewDeviceError(msg.ParseError())

		case gst.MessageEOS:
			return &DeviceError{Category: ErrCategoryNotFound, Message: "source ended before playing"}

		case gst.MessageStateChanged:
			if msg.Source() != name {
				continue
			}
			_, newState := msg.ParseStateChanged()
			if newState == gst.StatePlaying {
				slog.Debug("gstcam: pipeline reached PLAYING state")
				return nil
			}
		}
	}
}

// WatchBus polls the bus while the camera is live and calls onLost once
// when the device fails or ends. Returns when ctx is done or after onLost.
func WatchBus(ctx context.Context, el *PipelineElements, onLost func(error)) {
	bus := el.Pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(busPoll)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			derr := NewDeviceError(msg.ParseError())
			slog.Error("gstcam: pipeline error",
				"error", derr.Message,
				"debug", derr.Debug,
				"category", derr.Category.String(),
			)
			onLost(derr)
			return

		case gst.MessageEOS:
			slog.Info("gstcam: camera source ended")
			onLost(fmt.Errorf("end of stream"))
			return
		}
	}
}
