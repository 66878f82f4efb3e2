package capture

import (
	"fmt"
	"log/slog"
)

// Recording formats, in the order they are preferred.
const (
	MimeWebMVP8 = "video/webm;codecs=vp8"
	MimeWebM    = "video/webm"
	MimeMP4     = "video/mp4"
)

// DefaultMimePreferences returns VP8-in-WebM, then plain WebM, then MP4.
func DefaultMimePreferences() []string {
	return []string{MimeWebMVP8, MimeWebM, MimeMP4}
}

// SelectMimeType returns the first preference the stream supports.
//
// Returns ErrUnsupportedFormat wrapped in a *Error (CategoryFormat) when
// nothing in the list is supported.
func SelectMimeType(preferences []string, supported func(mime string) bool) (string, error) {
	for _, mime := range preferences {
		if supported(mime) {
			slog.Debug("capture: recording format selected", "mime_type", mime)
			return mime, nil
		}
		slog.Debug("capture: recording format not supported", "mime_type", mime)
	}

	return "", NewError(CategoryFormat,
		fmt.Errorf("%w (tried %v)", ErrUnsupportedFormat, preferences))
}
