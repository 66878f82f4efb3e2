package capture

import (
	"context"
)

// Camera acquires camera streams.
//
// Implementations must guarantee:
//   - Open() blocks until the stream is live, ctx is done, or acquisition fails
//   - Open() errors are classified (ErrCameraDenied, ErrCameraUnavailable,
//     ErrCameraTimeout) so the session can map them to CategoryPermission
//   - every returned Stream is exclusively owned by the caller
type Camera interface {
	// Open requests a camera-only stream matching the constraints as closely
	// as the device allows.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired camera. It holds the device until Stop().
type Stream interface {
	// ID identifies the stream in logs
	ID() string

	// Settings returns what the device actually delivers
	Settings() StreamSettings

	// SupportsMimeType reports whether a recorder can be created for mime
	SupportsMimeType(mime string) bool

	// NewRecorder attaches a recorder producing mime. onData is called with
	// every chunk, in order, from whatever goroutine flushes the recorder.
	NewRecorder(mime string, onData func(Chunk)) (Recorder, error)

	// Lost is closed when the device fails while the stream is live
	Lost() <-chan struct{}

	// Stop releases the device (every track stopped).
	//
	// Idempotent - safe to call multiple times.
	Stop() error
}

// RecorderState mirrors the recorder lifecycle.
type RecorderState int

const (
	// RecorderInactive is before Start or after Stop
	RecorderInactive RecorderState = iota
	// RecorderRecording is between Start and Stop
	RecorderRecording
)

// String returns a human-readable recorder state
func (s RecorderState) String() string {
	if s == RecorderRecording {
		return "recording"
	}
	return "inactive"
}

// Recorder encodes a stream into chunks.
type Recorder interface {
	// MimeType returns the format being produced
	MimeType() string

	// Start begins encoding
	Start() error

	// RequestData flushes everything encoded since the last flush as one
	// chunk (no chunk if nothing is pending)
	RequestData()

	// Stop finalizes the container and flushes the last chunk. After Stop
	// returns, onData is not called again.
	//
	// Returns an error if the flush does not finish before ctx is done;
	// whatever was already delivered stays valid.
	Stop(ctx context.Context) error

	// State returns the current recorder state
	State() RecorderState
}

// TickFunc receives countdown updates: remaining whole ticks of the
// recording window (Window/Tick at start, 0 at the end).
type TickFunc func(remaining int)
