package capture

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolutionDimensions(t *testing.T) {
	tests := []struct {
		res        Resolution
		wantWidth  int
		wantHeight int
		wantString string
	}{
		{Res480p, 640, 480, "480p"},
		{Res720p, 1280, 720, "720p"},
		{Res1080p, 1920, 1080, "1080p"},
		{Resolution(99), 1280, 720, "720p"},
	}

	for _, tt := range tests {
		w, h := tt.res.Dimensions()
		assert.Equal(t, tt.wantWidth, w)
		assert.Equal(t, tt.wantHeight, h)
		assert.Equal(t, tt.wantString, tt.res.String())
	}

	r, err := ParseResolution("1080p")
	assert.NoError(t, err)
	assert.Equal(t, Res1080p, r)

	_, err = ParseResolution("4k")
	assert.Error(t, err)
}

func TestDefaultConstraints(t *testing.T) {
	c := DefaultConstraints()
	assert.Equal(t, 1280, c.Width)
	assert.Equal(t, 720, c.Height)
	assert.Equal(t, FacingUser, c.Facing)
}

func TestRecordingConfig(t *testing.T) {
	cfg := DefaultRecordingConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 9, cfg.CountdownStart())

	bad := cfg
	bad.Tick = 10 * time.Second
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Window = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.StopTimeout = 0
	assert.Error(t, bad.Validate())
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		category Category
		name     string
		message  string
	}{
		{CategoryPermission, "permission", MsgCameraAccess},
		{CategoryFormat, "format", MsgUnsupportedFormat},
		{CategoryEmpty, "empty", MsgNoVideoData},
		{CategoryExtraction, "extraction", MsgNoFrames},
		{CategoryEncoding, "encoding", MsgEncodingFailed},
		{CategoryCancelled, "cancelled", MsgCancelled},
		{CategoryUnknown, "unknown", MsgUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError(tt.category, errors.New("cause")))
			assert.Equal(t, tt.name, tt.category.String())
			assert.Equal(t, tt.category, CategoryOf(err))
			assert.Equal(t, tt.message, UserMessage(err))
		})
	}
}

func TestUserMessage_Unclassified(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, MsgUnknown, UserMessage(errors.New("boom")))
	assert.Equal(t, CategoryUnknown, CategoryOf(errors.New("boom")))
}

func TestErrorUnwrap(t *testing.T) {
	err := NewError(CategoryPermission, ErrCameraDenied)
	assert.ErrorIs(t, err, ErrCameraDenied)
	assert.Contains(t, err.Error(), "permission")
	assert.Contains(t, err.Error(), "camera access denied")
}

func TestCalculateCadence(t *testing.T) {
	base := time.Now()
	at := func(ms ...int) []time.Time {
		out := make([]time.Time, len(ms))
		for i, m := range ms {
			out[i] = base.Add(time.Duration(m) * time.Millisecond)
		}
		return out
	}

	steady := CalculateCadence(at(0, 1000, 2010, 2990, 4000), time.Second)
	assert.Equal(t, 5, steady.Chunks)
	assert.True(t, steady.IsSteady)
	assert.InDelta(t, float64(time.Second), float64(steady.IntervalMean), float64(5*time.Millisecond))
	assert.InDelta(t, float64(980*time.Millisecond), float64(steady.IntervalMin), float64(time.Microsecond))
	assert.InDelta(t, float64(1010*time.Millisecond), float64(steady.IntervalMax), float64(time.Microsecond))

	bursty := CalculateCadence(at(0, 200, 2500, 2600, 5000), time.Second)
	assert.False(t, bursty.IsSteady)
	assert.Greater(t, bursty.JitterMax, 500*time.Millisecond)

	single := CalculateCadence(at(0), time.Second)
	assert.Equal(t, 1, single.Chunks)
	assert.False(t, single.IsSteady)

	empty := CalculateCadence(nil, time.Second)
	assert.Equal(t, 0, empty.Chunks)
}

func TestClip(t *testing.T) {
	var nilClip *Clip
	assert.True(t, nilClip.Empty())
	assert.Equal(t, 0, nilClip.Size())

	assert.True(t, (&Clip{Chunks: 1}).Empty())
	assert.False(t, (&Clip{Chunks: 1, Data: []byte{1}}).Empty())
}
