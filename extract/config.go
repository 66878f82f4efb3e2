package extract

import (
	"fmt"
	"image/color"
	"time"
)

// Config contains the extraction timing and grid layout.
type Config struct {
	// Frames is the number of frames sampled (default 9)
	Frames int
	// Columns is the grid width in cells (default 3)
	Columns int
	// CellSize is the side of one square cell in pixels (default 200)
	CellSize int
	// Background is the colour the grid is cleared to
	Background color.RGBA

	// DurationAttempts bounds duration resolution (default 5)
	DurationAttempts int
	// DurationTimeout bounds one duration probe (default 3s)
	DurationTimeout time.Duration
	// DurationRetryDelay is the pause between probes (default 500ms)
	DurationRetryDelay time.Duration
	// FallbackDuration is assumed when no probe succeeds, in seconds (default 9.0)
	FallbackDuration float64

	// SeekTimeout bounds one seek (default 5s)
	SeekTimeout time.Duration
	// SettleDelay follows every seek attempt (default 200ms)
	SettleDelay time.Duration

	// JPEGQuality is the grid encoding quality, 1-100 (default 92)
	JPEGQuality int
}

// DefaultConfig returns the 3×3 grid of 200px cells with the standard timeouts.
func DefaultConfig() Config {
	return Config{
		Frames:             9,
		Columns:            3,
		CellSize:           200,
		Background:         color.RGBA{R: 0x11, G: 0x18, B: 0x27, A: 0xff},
		DurationAttempts:   5,
		DurationTimeout:    3 * time.Second,
		DurationRetryDelay: 500 * time.Millisecond,
		FallbackDuration:   9.0,
		SeekTimeout:        5 * time.Second,
		SettleDelay:        200 * time.Millisecond,
		JPEGQuality:        92,
	}
}

// Rows returns the number of grid rows.
func (c Config) Rows() int {
	return (c.Frames + c.Columns - 1) / c.Columns
}

// Validate checks layout and timing values.
func (c Config) Validate() error {
	if c.Frames < 2 {
		return fmt.Errorf("extract: frames must be >= 2, got %d", c.Frames)
	}
	if c.Columns < 1 || c.Columns > c.Frames {
		return fmt.Errorf("extract: columns must be in [1, %d], got %d", c.Frames, c.Columns)
	}
	if c.CellSize < 8 {
		return fmt.Errorf("extract: cell size must be >= 8, got %d", c.CellSize)
	}
	if c.DurationAttempts < 1 {
		return fmt.Errorf("extract: duration attempts must be >= 1")
	}
	if c.DurationTimeout <= 0 || c.SeekTimeout <= 0 {
		return fmt.Errorf("extract: timeouts must be > 0")
	}
	if c.DurationRetryDelay < 0 || c.SettleDelay < 0 {
		return fmt.Errorf("extract: delays must be >= 0")
	}
	if c.FallbackDuration <= 0 {
		return fmt.Errorf("extract: fallback duration must be > 0")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("extract: JPEG quality must be in [1, 100], got %d", c.JPEGQuality)
	}
	return nil
}
