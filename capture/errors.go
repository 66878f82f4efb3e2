package capture

import (
	"errors"
	"fmt"
)

// Category classifies capture failures. Callers only ever show the
// category's fixed message; the category itself feeds metrics and logs.
type Category int

const (
	// CategoryUnknown is an unclassified failure
	CategoryUnknown Category = iota
	// CategoryPermission is camera denied, unavailable or timed out
	CategoryPermission
	// CategoryFormat is no supported recording format
	CategoryFormat
	// CategoryEmpty is a recording with no data
	CategoryEmpty
	// CategoryExtraction is every frame attempt failed
	CategoryExtraction
	// CategoryEncoding is the grid could not be serialized
	CategoryEncoding
	// CategoryCancelled is the attempt was closed by the user
	CategoryCancelled
)

// String returns the category name used in logs and metric labels
func (c Category) String() string {
	switch c {
	case CategoryPermission:
		return "permission"
	case CategoryFormat:
		return "format"
	case CategoryEmpty:
		return "empty"
	case CategoryExtraction:
		return "extraction"
	case CategoryEncoding:
		return "encoding"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Fixed user-facing messages.
const (
	MsgCameraAccess      = "Could not access camera. Please ensure you have granted camera permissions."
	MsgUnsupportedFormat = "Your device does not support video recording in a compatible format."
	MsgNoVideoData       = "No video data was recorded. Please try again."
	MsgEmptyRecording    = "Recorded video is empty. Please try again."
	MsgNoFrames          = "Could not extract any frames from the video. Please try again."
	MsgEncodingFailed    = "Failed to generate image. Please try again."
	MsgCancelled         = "Capture cancelled."
	MsgUnknown           = "Something went wrong while capturing. Please try again."
)

// UserMessage returns the default message for the category.
func (c Category) UserMessage() string {
	switch c {
	case CategoryPermission:
		return MsgCameraAccess
	case CategoryFormat:
		return MsgUnsupportedFormat
	case CategoryEmpty:
		return MsgNoVideoData
	case CategoryExtraction:
		return MsgNoFrames
	case CategoryEncoding:
		return MsgEncodingFailed
	case CategoryCancelled:
		return MsgCancelled
	default:
		return MsgUnknown
	}
}

// Causes wrapped by *Error.
var (
	ErrCameraDenied      = errors.New("camera access denied")
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrCameraTimeout     = errors.New("camera acquisition timed out")
	ErrUnsupportedFormat = errors.New("no supported recording format")
	ErrNoVideoData       = errors.New("no video data recorded")
	ErrEmptyRecording    = errors.New("recorded clip is empty")
	ErrNoFrames          = errors.New("no frames extracted")
	ErrEncodingFailed    = errors.New("failed to generate image")
)

// Error is a classified capture failure carrying a fixed user message.
type Error struct {
	Category Category
	Message  string
	Err      error
}

// NewError wraps err with the category's default user message.
func NewError(category Category, err error) *Error {
	return &Error{
		Category: category,
		Message:  category.UserMessage(),
		Err:      err,
	}
}

// NewErrorMessage wraps err with an explicit user message.
func NewErrorMessage(category Category, message string, err error) *Error {
	return &Error{
		Category: category,
		Message:  message,
		Err:      err,
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture: %s", e.Category)
	}
	return fmt.Sprintf("capture: %s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CategoryOf returns the category of err, or CategoryUnknown.
func CategoryOf(err error) Category {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}

// UserMessage returns the fixed message to display for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return MsgUnknown
}
