package capture

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
)

// fakeCamera is an in-memory Camera.
type fakeCamera struct {
	openErr   error
	blockOpen bool
	stream    *fakeStream
	opens     atomic.Int32
}

func (c *fakeCamera) Open(ctx context.Context, _ Constraints) (Stream, error) {
	c.opens.Add(1)
	if c.blockOpen {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}

type fakeStream struct {
	supported map[string]bool
	recorder  *fakeRecorder
	lost      chan struct{}
	stops     atomic.Int32
}

func newFakeStream(supported ...string) *fakeStream {
	m := make(map[string]bool)
	for _, s := range supported {
		m[s] = true
	}
	return &fakeStream{
		supported: m,
		recorder:  &fakeRecorder{chunk: []byte("cluster")},
		lost:      make(chan struct{}),
	}
}

func (s *fakeStream) ID() string               { return "fake-stream" }
func (s *fakeStream) Settings() StreamSettings { return StreamSettings{Device: "fake", Width: 1280, Height: 720} }
func (s *fakeStream) Lost() <-chan struct{}    { return s.lost }
func (s *fakeStream) Stop() error              { s.stops.Add(1); return nil }

func (s *fakeStream) SupportsMimeType(mime string) bool { return s.supported[mime] }

func (s *fakeStream) NewRecorder(mime string, onData func(Chunk)) (Recorder, error) {
	s.recorder.mime = mime
	s.recorder.onData = onData
	return s.recorder, nil
}

// fakeRecorder emits chunk on every RequestData and final on Stop.
type fakeRecorder struct {
	mime   string
	onData func(Chunk)
	chunk  []byte
	final  []byte

	mu       sync.Mutex
	state    RecorderState
	requests int
	stops    int
}

func (r *fakeRecorder) MimeType() string { return r.mime }

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = RecorderRecording
	return nil
}

func (r *fakeRecorder) RequestData() {
	r.mu.Lock()
	r.requests++
	chunk := r.chunk
	r.mu.Unlock()

	if chunk != nil {
		r.onData(Chunk{Data: bytes.Clone(chunk)})
	}
}

func (r *fakeRecorder) Stop(context.Context) error {
	r.mu.Lock()
	r.state = RecorderInactive
	r.stops++
	final := r.final
	r.mu.Unlock()

	if final != nil {
		r.onData(Chunk{Data: bytes.Clone(final)})
	}
	return nil
}

func (r *fakeRecorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRecorder) counts() (requests, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests, r.stops
}
