package capture

import (
	"fmt"
	"time"
)

// Resolution represents supported camera resolutions
type Resolution int

const (
	// Res480p represents 640x480 resolution (VGA)
	Res480p Resolution = iota
	// Res720p represents 1280x720 resolution (HD)
	Res720p
	// Res1080p represents 1920x1080 resolution (Full HD)
	Res1080p
)

// Dimensions returns the width and height for the resolution
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case Res480p:
		return 640, 480
	case Res720p:
		return 1280, 720
	case Res1080p:
		return 1920, 1080
	default:
		// Safe default: 720p
		return 1280, 720
	}
}

// String returns a human-readable string representation of the resolution
func (r Resolution) String() string {
	switch r {
	case Res480p:
		return "480p"
	case Res720p:
		return "720p"
	case Res1080p:
		return "1080p"
	default:
		return "720p"
	}
}

// ParseResolution parses "480p", "720p" or "1080p".
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "480p":
		return Res480p, nil
	case "720p", "":
		return Res720p, nil
	case "1080p":
		return Res1080p, nil
	default:
		return Res720p, fmt.Errorf("capture: invalid resolution %q (must be 480p, 720p or 1080p)", s)
	}
}

// FacingMode selects which camera to open on devices with more than one.
type FacingMode string

const (
	// FacingUser is the front camera
	FacingUser FacingMode = "user"
	// FacingEnvironment is the rear camera
	FacingEnvironment FacingMode = "environment"
)

// Constraints describe the stream requested from a Camera.
// Width and Height are ideal values, not hard requirements.
type Constraints struct {
	Width  int
	Height int
	Facing FacingMode
}

// DefaultConstraints returns the camera-only 1280x720 front-facing request.
func DefaultConstraints() Constraints {
	w, h := Res720p.Dimensions()
	return Constraints{
		Width:  w,
		Height: h,
		Facing: FacingUser,
	}
}

// StreamSettings are the values the camera actually delivered.
type StreamSettings struct {
	Device string
	Width  int
	Height int
}

// Chunk is one piece of encoded recorder output.
type Chunk struct {
	// Seq is the 1-based position of the chunk within its recording
	Seq uint64
	// Data is the encoded container bytes (may be a partial cluster)
	Data []byte
	// Timestamp is when the chunk was handed over by the recorder
	Timestamp time.Time
}

// Clip is the concatenation of all chunks of one recording.
type Clip struct {
	// Data is the complete encoded clip
	Data []byte
	// MimeType is the container/codec the clip was recorded with
	MimeType string
	// Chunks is how many chunks were concatenated
	Chunks int
	// Recorded is the wall-clock recording time
	Recorded time.Duration
}

// Size returns the clip size in bytes.
func (c *Clip) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

// Empty reports whether there is nothing to decode.
func (c *Clip) Empty() bool {
	return c == nil || c.Chunks == 0 || len(c.Data) == 0
}

// RecordingConfig contains the timing of one recording attempt.
type RecordingConfig struct {
	// Window is the fixed recording length (default 9s)
	Window time.Duration
	// Tick is the countdown granularity (default 1s)
	Tick time.Duration
	// Timeslice is how often data is requested from the recorder (default 1s)
	Timeslice time.Duration
	// AcquireTimeout bounds the camera open (default 10s)
	AcquireTimeout time.Duration
	// StopTimeout bounds the recorder flush after stop (default 3s)
	StopTimeout time.Duration
	// MimePreferences is the ordered list of recording formats to try
	MimePreferences []string
	// Constraints is the camera request
	Constraints Constraints
}

// DefaultRecordingConfig returns the 9 second / 1 Hz configuration.
func DefaultRecordingConfig() RecordingConfig {
	return RecordingConfig{
		Window:          9 * time.Second,
		Tick:            1 * time.Second,
		Timeslice:       1 * time.Second,
		AcquireTimeout:  10 * time.Second,
		StopTimeout:     3 * time.Second,
		MimePreferences: DefaultMimePreferences(),
		Constraints:     DefaultConstraints(),
	}
}

// CountdownStart returns the first countdown value (Window / Tick).
func (c RecordingConfig) CountdownStart() int {
	if c.Tick <= 0 {
		return 0
	}
	return int(c.Window / c.Tick)
}

// Validate checks the timing values.
func (c RecordingConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("capture: recording window must be > 0")
	}
	if c.Tick <= 0 || c.Tick > c.Window {
		return fmt.Errorf("capture: countdown tick must be in (0, window]")
	}
	if c.Timeslice <= 0 {
		return fmt.Errorf("capture: timeslice must be > 0")
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("capture: acquire timeout must be > 0")
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("capture: stop timeout must be > 0")
	}
	if len(c.MimePreferences) == 0 {
		return fmt.Errorf("capture: at least one recording format is required")
	}
	return nil
}

// RecordingStats describes a finished (or running) recording.
type RecordingStats struct {
	// SessionID identifies the recording session
	SessionID string
	// MimeType is the selected recording format
	MimeType string
	// Chunks is the number of chunks received so far
	Chunks int
	// Bytes is the total recorded size so far
	Bytes int
	// StartedAt is when the recorder started
	StartedAt time.Time
	// StoppedAt is when the recorder stopped (zero while recording)
	StoppedAt time.Time
	// StreamReleased is true once the camera has been released
	StreamReleased bool
	// Cadence describes chunk arrival regularity (nil before stop)
	Cadence *CadenceStats
}
