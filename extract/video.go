package extract

import (
	"context"
	"image"

	"github.com/e7canasta/relief-capture/capture"
)

// Decoder opens recorded clips for seeking.
type Decoder interface {
	// Open prepares clip for random access. Must not block past ctx.
	Open(ctx context.Context, clip *capture.Clip) (Video, error)
}

// Video is one opened clip. Calls are made from a single goroutine, strictly
// in sequence.
type Video interface {
	// Duration returns the clip length in seconds. A value that is not
	// finite and positive means "not known yet".
	Duration(ctx context.Context) (float64, error)

	// Seek positions the decoder at t seconds and returns the frame there.
	// A nil image (or one with empty bounds) means the decoder completed the
	// seek but has no picture for that position.
	Seek(ctx context.Context, t float64) (image.Image, error)

	// Close releases the decoder
	Close() error
}
