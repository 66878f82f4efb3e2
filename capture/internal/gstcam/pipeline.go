package gstcam

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// SourceKind selects the GStreamer source element.
type SourceKind int

const (
	// SourceAuto uses autovideosrc
	SourceAuto SourceKind = iota
	// SourceV4L2 uses v4l2src with an explicit device
	SourceV4L2
	// SourceTest uses videotestsrc (no hardware)
	SourceTest
)

// String returns the config name of the source
func (k SourceKind) String() string {
	switch k {
	case SourceV4L2:
		return "v4l2"
	case SourceTest:
		return "test"
	default:
		return "auto"
	}
}

// PipelineConfig contains configuration for camera pipeline creation
type PipelineConfig struct {
	Source     SourceKind
	Device     string // only used by SourceV4L2
	Width      int
	Height     int
	PreviewFPS float64 // 0 disables the preview branch
}

// PipelineElements holds references to the live camera pipeline.
// Recorder branches are attached to Tee at runtime.
type PipelineElements struct {
	Pipeline    *gst.Pipeline
	Source      *gst.Element
	Tee         *gst.Element
	PreviewSink *app.Sink // nil when the preview branch is disabled
}

// CreatePipeline creates the camera pipeline
//
// Pipeline structure:
//
//	source → videoconvert → videoscale → capsfilter → tee
//	tee → queue → videorate → videoconvert → capsfilter(RGB) → appsink   (preview)
//
// The pipeline is configured but NOT started (state remains NULL).
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	source, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	// Width/height are ideal values: the scaler absorbs whatever the device delivers.
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,width=%d,height=%d", cfg.Width, cfg.Height),
	))

	tee, err := gst.NewElement("tee")
	if err != nil {
		return nil, fmt.Errorf("failed to create tee: %w", err)
	}
	tee.SetProperty("allow-not-linked", true)

	pipeline.AddMany(source, converter, scaler, capsfilter, tee)
	if err := gst.ElementLinkMany(source, converter, scaler, capsfilter, tee); err != nil {
		return nil, fmt.Errorf("failed to link camera elements: %w", err)
	}

	elements := &PipelineElements{
		Pipeline: pipeline,
		Source:   source,
		Tee:      tee,
	}

	if cfg.PreviewFPS > 0 {
		sink, err := addPreviewBranch(pipeline, tee, cfg)
		if err != nil {
			return nil, err
		}
		elements.PreviewSink = sink
	}

	slog.Debug("gstcam: camera pipeline created",
		"source", cfg.Source.String(),
		"device", cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"preview_fps", cfg.PreviewFPS,
	)

	return elements, nil
}

func newSource(cfg PipelineConfig) (*gst.Element, error) {
	switch cfg.Source {
	case SourceV4L2:
		src, err := gst.NewElement("v4l2src")
		if err != nil {
			return nil, fmt.Errorf("failed to create v4l2src: %w", err)
		}
		if cfg.Device != "" {
			src.SetProperty("device", cfg.Device)
		}
		return src, nil

	case SourceTest:
		src, err := gst.NewElement("videotestsrc")
		if err != nil {
			return nil, fmt.Errorf("failed to create videotestsrc: %w", err)
		}
		src.SetProperty("is-live", true)
		src.SetProperty("pattern", 18) // ball
		return src, nil

	default:
		src, err := gst.NewElement("autovideosrc")
		if err != nil {
			return nil, fmt.Errorf("failed to create autovideosrc: %w", err)
		}
		return src, nil
	}
}

// addPreviewBranch links a leaky, rate-limited RGB branch to the tee.
func addPreviewBranch(pipeline *gst.Pipeline, tee *gst.Element, cfg PipelineConfig) (*app.Sink, error) {
	queue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("failed to create preview queue: %w", err)
	}
	queue.SetProperty("leaky", 2) // downstream
	queue.SetProperty("max-size-buffers", 1)

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create preview videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create preview capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		buildPreviewCaps(cfg.Width, cfg.Height, cfg.PreviewFPS),
	))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create preview appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	pipeline.AddMany(queue, videorate, converter, capsfilter, sink.Element)
	if err := gst.ElementLinkMany(tee, queue, videorate, converter, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link preview branch: %w", err)
	}

	return sink, nil
}

// buildPreviewCaps builds an RGB caps string with a framerate constraint.
// Fractional rates below 1 Hz are expressed as 1/N.
func buildPreviewCaps(width, height int, fps float64) string {
	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}

	return fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		width, height, numerator, denominator,
	)
}

// DestroyPipeline sets the pipeline to NULL, which closes the device.
//
// Safe to call even if pipeline is already destroyed.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}

	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}

	return nil
}

// CheckAvailable verifies GStreamer can create elements.
func CheckAvailable() error {
	gst.Init(nil)

	if _, err := gst.NewElement("fakesrc"); err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	return nil
}
