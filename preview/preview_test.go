package preview

import (
	"bytes"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func rgbFrame(seq uint64, w, h int) *Frame {
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = byte(i)
	}
	return &Frame{Seq: seq, Width: w, Height: h, Data: data, Timestamp: time.Now()}
}

func TestLatest(t *testing.T) {
	s := New()

	_, ok := s.Latest()
	assert.False(t, ok)

	s.Publish(rgbFrame(1, 2, 2))
	s.Publish(rgbFrame(2, 2, 2))

	f, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)

	s.Reset()
	_, ok = s.Latest()
	assert.False(t, ok)
}

func TestMailboxOverwrite(t *testing.T) {
	s := New()
	read := s.Subscribe("v1")
	defer s.Unsubscribe("v1")

	s.Publish(rgbFrame(1, 1, 1))
	s.Publish(rgbFrame(2, 1, 1))
	s.Publish(rgbFrame(3, 1, 1))

	f := read()
	require.NotNil(t, f)
	assert.Equal(t, uint64(3), f.Seq)

	st := s.Stats().Viewers["v1"]
	assert.Equal(t, uint64(2), st.TotalDrops)
	assert.Equal(t, uint64(0), st.ConsecutiveDrops)
	assert.Equal(t, uint64(3), st.LastConsumedSeq)
	assert.Equal(t, uint64(3), s.Stats().Published)
}

func TestUnsubscribeWakesReader(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New()
	read := s.Subscribe("v1")

	done := make(chan *Frame)
	go func() { done <- read() }()

	time.Sleep(20 * time.Millisecond)
	s.Unsubscribe("v1")
	s.Unsubscribe("v1")

	select {
	case f := <-done:
		assert.Nil(t, f)
	case <-time.After(time.Second):
		t.Fatal("reader not woken by Unsubscribe")
	}
	assert.Empty(t, s.Stats().Viewers)
}

func TestStopClosesViewers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New()
	readA := s.Subscribe("a")
	readB := s.Subscribe("b")

	s.Stop()

	assert.Nil(t, readA())
	assert.Nil(t, readB())
	assert.Nil(t, s.Subscribe("c")())

	s.Publish(rgbFrame(1, 1, 1))
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestFrameImage(t *testing.T) {
	f := &Frame{Width: 2, Height: 1, Data: []byte{10, 20, 30, 40, 50, 60}}

	img, err := f.Image()
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 255, 40, 50, 60, 255}, img.Pix)

	_, err = (&Frame{Width: 2, Height: 2, Data: []byte{1, 2, 3}}).Image()
	assert.Error(t, err)
}

func TestFrameEncodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, rgbFrame(1, 16, 8).EncodeJPEG(&buf, 80))

	cfg, err := jpeg.DecodeConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}
