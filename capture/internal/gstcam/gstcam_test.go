package gstcam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDeviceError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		debug   string
		want    ErrorCategory
	}{
		{
			name:    "v4l2 permission",
			message: "Could not open device '/dev/video0' for reading and writing.",
			debug:   "v4l2_calls.c(637): gst_v4l2_open (): system error: Permission denied",
			want:    ErrCategoryPermission,
		},
		{
			name:    "device busy",
			message: "Failed to allocate required memory.",
			debug:   "Buffer pool activation failed: Device or resource busy",
			want:    ErrCategoryBusy,
		},
		{
			name:    "missing device",
			message: "Cannot identify device '/dev/video9'.",
			debug:   "system error: No such file or directory",
			want:    ErrCategoryNotFound,
		},
		{
			name:    "caps negotiation",
			message: "Internal data stream error.",
			debug:   "streaming stopped, reason not-negotiated (-4): not negotiated",
			want:    ErrCategoryFormat,
		},
		{
			name:    "unclassified",
			message: "Something odd happened",
			want:    ErrCategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyDeviceError(tt.message, tt.debug)
			assert.Equal(t, tt.want, got, "category %s", got)
		})
	}
}

func TestDeviceErrorString(t *testing.T) {
	err := &DeviceError{Category: ErrCategoryBusy, Message: "in use"}
	assert.Equal(t, "device error [busy]: in use", err.Error())
	assert.Equal(t, "unknown", NewDeviceError(nil).Category.String())
}

func TestBuildPreviewCaps(t *testing.T) {
	tests := []struct {
		fps  float64
		want string
	}{
		{5, "video/x-raw,format=RGB,width=640,height=480,framerate=5/1"},
		{1, "video/x-raw,format=RGB,width=640,height=480,framerate=1/1"},
		{0.5, "video/x-raw,format=RGB,width=640,height=480,framerate=1/2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, buildPreviewCaps(640, 480, tt.fps))
	}
}

func TestChunkBuffer(t *testing.T) {
	var b ChunkBuffer

	assert.Nil(t, b.Flush(), "nothing pending")

	b.Append([]byte("ab"))
	b.Append([]byte("cd"))
	assert.Equal(t, []byte("abcd"), b.Flush())
	assert.Nil(t, b.Flush(), "flush resets")

	b.Append([]byte("e"))
	assert.Equal(t, []byte("e"), b.Flush())
	assert.Equal(t, uint64(5), b.Total())
}

func TestLookupFormat(t *testing.T) {
	f, ok := LookupFormat("video/webm;codecs=vp8")
	assert.True(t, ok)
	assert.Equal(t, "vp8enc", f.Encoder)
	assert.Equal(t, "webmmux", f.Muxer)

	f, ok = LookupFormat("video/mp4")
	assert.True(t, ok)
	assert.Equal(t, "mp4mux", f.Muxer)

	_, ok = LookupFormat("video/x-matroska")
	assert.False(t, ok)
	assert.False(t, FormatAvailable("video/x-matroska"))
}

func TestSourceKindString(t *testing.T) {
	assert.Equal(t, "auto", SourceAuto.String())
	assert.Equal(t, "v4l2", SourceV4L2.String())
	assert.Equal(t, "test", SourceTest.String())
}
