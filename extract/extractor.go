package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/e7canasta/relief-capture/capture"
)

// Outcome tags what happened to one grid cell.
type Outcome int

const (
	// OutcomeDrawn is a decoded frame scaled into the cell
	OutcomeDrawn Outcome = iota
	// OutcomePlaceholder is a completed seek without a picture
	OutcomePlaceholder
	// OutcomeTimedOut is a seek that did not complete in time
	OutcomeTimedOut
	// OutcomeSeekFailed is a seek the decoder rejected
	OutcomeSeekFailed
)

// String returns the outcome name used in logs and metric labels
func (o Outcome) String() string {
	switch o {
	case OutcomeDrawn:
		return "drawn"
	case OutcomePlaceholder:
		return "placeholder"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "seek_failed"
	}
}

// Success reports whether the cell counts towards a usable grid.
// Placeholders count: the grid stays visually complete.
func (o Outcome) Success() bool {
	return o == OutcomeDrawn || o == OutcomePlaceholder
}

// FrameResult describes one seek attempt.
type FrameResult struct {
	Index     int
	Timestamp float64
	Outcome   Outcome
	Err       error
	Elapsed   time.Duration
}

// FrameFunc receives every FrameResult as soon as the cell is done.
type FrameFunc func(FrameResult)

// Result is a successfully composited grid.
type Result struct {
	DataURL   string
	JPEG      []byte
	Duration  DurationResult
	Frames    []FrameResult
	Succeeded int
}

// Extractor turns a recorded clip into a frame grid.
type Extractor struct {
	decoder Decoder
	cfg     Config
	encode  func(image.Image, int) ([]byte, error)
}

// New creates an extractor with fail-fast validation.
func New(decoder Decoder, cfg Config) (*Extractor, error) {
	if decoder == nil {
		return nil, fmt.Errorf("extract: decoder is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		decoder: decoder,
		cfg:     cfg,
		encode:  EncodeJPEG,
	}, nil
}

// Config returns the extractor configuration
func (e *Extractor) Config() Config {
	return e.cfg
}

// Process resolves the clip duration, samples Frames timestamps strictly in
// order, composites them into the grid and encodes it as a JPEG data URL.
//
// Errors are *capture.Error values:
//   - empty clip:          CategoryEmpty (before any decoder work)
//   - no successful cell:  CategoryExtraction (nothing is encoded)
//   - empty JPEG output:   CategoryEncoding
//   - ctx done:            CategoryCancelled
func (e *Extractor) Process(ctx context.Context, clip *capture.Clip, onFrame FrameFunc) (*Result, error) {
	if clip.Empty() {
		return nil, capture.NewErrorMessage(capture.CategoryEmpty, capture.MsgNoVideoData, capture.ErrNoVideoData)
	}
	if onFrame == nil {
		onFrame = func(FrameResult) {}
	}

	start := time.Now()

	video, err := e.decoder.Open(ctx, clip)
	if err != nil {
		if ctx.Err() != nil {
			return nil, capture.NewError(capture.CategoryCancelled, ctx.Err())
		}
		return nil, capture.NewError(capture.CategoryExtraction,
			fmt.Errorf("%w: open decoder: %w", capture.ErrNoFrames, err))
	}
	// stuck is set once a decoder call outlives its cancellation. The video
	// is not touched again and is closed once that call lets go.
	var stuck bool
	defer func() {
		if stuck {
			go closeVideo(video)
			return
		}
		closeVideo(video)
	}()

	duration, err := ResolveDuration(ctx, video, e.cfg)
	if err != nil {
		stuck = errors.Is(err, errCallAbandoned)
		if ctx.Err() != nil {
			return nil, capture.NewError(capture.CategoryCancelled, ctx.Err())
		}
		return nil, capture.NewError(capture.CategoryExtraction,
			fmt.Errorf("%w: duration probe: %w", capture.ErrNoFrames, err))
	}

	timestamps := TargetTimestamps(duration.Seconds, e.cfg.Frames)
	grid := NewGrid(e.cfg)

	res := &Result{
		Duration: duration,
		Frames:   make([]FrameResult, 0, len(timestamps)),
	}

	for i, t := range timestamps {
		if stuck {
			fr := FrameResult{
				Index:     i,
				Timestamp: t,
				Outcome:   OutcomeSeekFailed,
				Err:       fmt.Errorf("seek to %.2fs skipped: %w", t, errCallAbandoned),
			}
			res.Frames = append(res.Frames, fr)
			onFrame(fr)
			continue
		}

		fr := e.extractFrame(ctx, video, grid, i, t)
		stuck = errors.Is(fr.Err, errCallAbandoned)
		if ctx.Err() != nil {
			return nil, capture.NewError(capture.CategoryCancelled, ctx.Err())
		}

		res.Frames = append(res.Frames, fr)
		if fr.Outcome.Success() {
			res.Succeeded++
		}
		onFrame(fr)

		// Decoder settle time, after every attempt regardless of outcome.
		if err := pause(ctx, e.cfg.SettleDelay); err != nil {
			return nil, capture.NewError(capture.CategoryCancelled, err)
		}
	}

	if res.Succeeded == 0 {
		slog.Error("extract: no frames extracted",
			"attempted", len(timestamps),
			"duration_s", duration.Seconds,
			"duration_assumed", duration.Assumed,
		)
		return nil, capture.NewError(capture.CategoryExtraction,
			fmt.Errorf("%w: all %d seeks failed", capture.ErrNoFrames, len(timestamps)))
	}

	data, err := e.encode(grid.Image(), e.cfg.JPEGQuality)
	if err == nil && len(data) == 0 {
		err = errors.New("empty output")
	}
	if err != nil {
		return nil, capture.NewError(capture.CategoryEncoding,
			fmt.Errorf("%w: %w", capture.ErrEncodingFailed, err))
	}

	res.JPEG = data
	res.DataURL = DataURL(data)

	slog.Info("extract: frame grid composited",
		"frames_ok", res.Succeeded,
		"frames_total", len(timestamps),
		"duration_s", duration.Seconds,
		"duration_assumed", duration.Assumed,
		"jpeg_bytes", len(data),
		"elapsed", time.Since(start),
	)

	return res, nil
}

// extractFrame seeks to t and fills cell index. The seek races a timer and
// ctx; the first to finish decides the outcome.
func (e *Extractor) extractFrame(ctx context.Context, video Video, grid *Grid, index int, t float64) FrameResult {
	start := time.Now()
	fr := FrameResult{Index: index, Timestamp: t}

	img, err := await(ctx, e.cfg.SeekTimeout, func(c context.Context) (image.Image, error) {
		return video.Seek(c, t)
	})
	fr.Elapsed = time.Since(start)

	switch {
	case ctx.Err() != nil:
		fr.Outcome, fr.Err = OutcomeSeekFailed, ctx.Err()
		if err != nil {
			fr.Err = err
		}

	case errors.Is(err, errWaitTimeout) || errors.Is(err, context.DeadlineExceeded):
		fr.Outcome, fr.Err = OutcomeTimedOut, fmt.Errorf("seek to %.2fs: %w", t, err)

	case err != nil:
		fr.Outcome, fr.Err = OutcomeSeekFailed, fmt.Errorf("seek to %.2fs: %w", t, err)

	case img == nil || img.Bounds().Empty():
		fr.Outcome = OutcomePlaceholder
		fr.Err = grid.DrawPlaceholder(index, fmt.Sprintf("Frame %d", index+1))

	default:
		fr.Outcome = OutcomeDrawn
		fr.Err = grid.DrawFrame(index, img)
	}

	if !fr.Outcome.Success() {
		slog.Warn("extract: frame unavailable",
			"index", index,
			"timestamp_s", t,
			"outcome", fr.Outcome.String(),
			"error", fr.Err,
		)
	} else {
		slog.Debug("extract: frame extracted",
			"index", index,
			"timestamp_s", t,
			"outcome", fr.Outcome.String(),
			"elapsed", fr.Elapsed,
		)
	}

	return fr
}

func closeVideo(video Video) {
	if err := video.Close(); err != nil {
		slog.Warn("extract: failed to close decoder", "error", err)
	}
}
