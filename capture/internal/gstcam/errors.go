package gstcam

import (
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies device errors posted on the pipeline bus
type ErrorCategory int

const (
	// ErrCategoryPermission indicates the process may not open the device
	ErrCategoryPermission ErrorCategory = iota
	// ErrCategoryBusy indicates another process holds the device
	ErrCategoryBusy
	// ErrCategoryNotFound indicates there is no such device
	ErrCategoryNotFound
	// ErrCategoryFormat indicates caps negotiation or encoder failures
	ErrCategoryFormat
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryPermission:
		return "permission"
	case ErrCategoryBusy:
		return "busy"
	case ErrCategoryNotFound:
		return "not_found"
	case ErrCategoryFormat:
		return "format"
	default:
		return "unknown"
	}
}

// DeviceError is a classified bus error.
type DeviceError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error [%s]: %s", e.Category, e.Message)
}

// NewDeviceError classifies a GStreamer error.
func NewDeviceError(gerr *gst.GError) *DeviceError {
	if gerr == nil {
		return &DeviceError{Category: ErrCategoryUnknown, Message: "unknown error"}
	}
	return &DeviceError{
		Category: ClassifyDeviceError(gerr.Error(), gerr.DebugString()),
		Message:  gerr.Error(),
		Debug:    gerr.DebugString(),
	}
}

// ClassifyDeviceError categorizes a bus error by message heuristics.
// go-gst's GError does not expose the error domain, so matching is on text.
func ClassifyDeviceError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	// Most specific first
	if containsAny(combined, permissionKeywords) {
		return ErrCategoryPermission
	}
	if containsAny(combined, busyKeywords) {
		return ErrCategoryBusy
	}
	if containsAny(combined, notFoundKeywords) {
		return ErrCategoryNotFound
	}
	if containsAny(combined, formatKeywords) {
		return ErrCategoryFormat
	}
	return ErrCategoryUnknown
}

var (
	permissionKeywords = []string{
		"permission denied",
		"not permitted",
		"eacces",
		"access denied",
	}
	busyKeywords = []string{
		"device or resource busy",
		"ebusy",
		"busy",
	}
	notFoundKeywords = []string{
		"no such file",
		"no such device",
		"cannot identify device",
		"not a capture device",
		"enoent",
		"failed to open",
		"could not open",
	}
	formatKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"encode",
		"missing plugin",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
