package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/e7canasta/relief-capture/capture"
	"github.com/e7canasta/relief-capture/extract/internal/gstclip"
)

// GstDecoder implements Decoder with a GStreamer decodebin pipeline.
// Clips are spooled to a temporary file for filesrc.
type GstDecoder struct {
	tempDir string
}

// NewGstDecoder creates a decoder spooling clips under tempDir ("" = OS default).
func NewGstDecoder(tempDir string) *GstDecoder {
	return &GstDecoder{tempDir: tempDir}
}

// Open writes the clip to disk and prerolls the decoding pipeline.
func (d *GstDecoder) Open(ctx context.Context, clip *capture.Clip) (Video, error) {
	f, err := os.CreateTemp(d.tempDir, "relief-clip-*"+clipExtension(clip.MimeType))
	if err != nil {
		return nil, fmt.Errorf("extract: spool clip: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(clip.Data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("extract: spool clip: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("extract: spool clip: %w", err)
	}

	player, err := gstclip.Open(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("extract: open decoder: %w", err)
	}

	return &gstVideo{player: player, path: path}, nil
}

func clipExtension(mime string) string {
	if strings.HasPrefix(mime, "video/mp4") {
		return ".mp4"
	}
	return ".webm"
}

var errVideoClosed = errors.New("extract: decoder closed")

// gstVideo serializes every pipeline call. Close waits for an in-flight
// call, and calls after Close fail with errVideoClosed.
type gstVideo struct {
	player *gstclip.Player
	path   string

	mu        sync.Mutex
	closed    bool
	prerolled bool
}

// Duration waits for preroll on first use, then queries the demuxer.
func (v *gstVideo) Duration(ctx context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, errVideoClosed
	}

	if !v.prerolled {
		if err := v.player.WaitPrerolled(ctx); err != nil {
			return 0, err
		}
		v.prerolled = true
	}

	d, ok := v.player.Duration()
	if !ok {
		return 0, nil
	}
	return d, nil
}

func (v *gstVideo) Seek(ctx context.Context, t float64) (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, errVideoClosed
	}

	img, err := v.player.Seek(ctx, t)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, nil
	}
	return img, nil
}

func (v *gstVideo) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true

	err := v.player.Close()
	if rmErr := os.Remove(v.path); rmErr != nil && err == nil {
		err = fmt.Errorf("extract: remove spooled clip: %w", rmErr)
	}
	return err
}
