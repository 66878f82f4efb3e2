package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/relief-capture/extract"
	"github.com/e7canasta/relief-capture/framegrid"
	"github.com/e7canasta/relief-capture/preview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, window time.Duration, sup *preview.Supplier) *Server {
	t.Helper()
	s, err := New(Options{Factory: testFactory(window), Preview: sup})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) framegrid.Snapshot {
	t.Helper()
	var s framegrid.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

func waitForPhase(t *testing.T, h http.Handler, phase framegrid.Phase) framegrid.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s := decodeSnapshot(t, do(t, h, http.MethodGet, "/v1/capture"))
		if s.Phase == phase {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("phase %s not reached", phase)
	return framegrid.Snapshot{}
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, 90*time.Millisecond, nil)

	rec := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_NoCapture(t *testing.T) {
	s := newTestServer(t, 90*time.Millisecond, nil)

	snap := decodeSnapshot(t, do(t, s, http.MethodGet, "/v1/capture"))
	assert.Equal(t, framegrid.PhaseIdle, snap.Phase)

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/v1/capture/retry"},
		{http.MethodPost, "/v1/capture/accept"},
		{http.MethodDelete, "/v1/capture"},
		{http.MethodGet, "/v1/capture/events"},
	} {
		assert.Equal(t, http.StatusNotFound, do(t, s, r.method, r.path).Code, r.path)
	}
}

func TestCaptureFlow(t *testing.T) {
	s := newTestServer(t, 90*time.Millisecond, nil)

	rec := do(t, s, http.MethodPost, "/v1/capture")
	require.Equal(t, http.StatusAccepted, rec.Code)
	first := decodeSnapshot(t, rec)
	assert.NotEmpty(t, first.AttemptID)

	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/capture").Code)

	ready := waitForPhase(t, s, framegrid.PhaseReady)
	assert.True(t, strings.HasPrefix(ready.ImageURL, extract.DataURLPrefix))

	rec = do(t, s, http.MethodPost, "/v1/capture/accept")
	require.Equal(t, http.StatusOK, rec.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, ready.ImageURL, accepted["image_url"])

	closed := decodeSnapshot(t, do(t, s, http.MethodGet, "/v1/capture"))
	assert.Equal(t, framegrid.PhaseClosed, closed.Phase)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/capture/retry").Code)

	rec = do(t, s, http.MethodPost, "/v1/capture")
	require.Equal(t, http.StatusAccepted, rec.Code, "closed capture is replaced")
	assert.NotEqual(t, first.AttemptID, decodeSnapshot(t, rec).AttemptID)
}

func TestRetryAndClose(t *testing.T) {
	s := newTestServer(t, 2*time.Second, nil)

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/capture").Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/capture/accept").Code)

	before := decodeSnapshot(t, do(t, s, http.MethodGet, "/v1/capture"))
	rec := do(t, s, http.MethodPost, "/v1/capture/retry")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEqual(t, before.AttemptID, decodeSnapshot(t, rec).AttemptID)

	rec = do(t, s, http.MethodDelete, "/v1/capture")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, framegrid.PhaseClosed, decodeSnapshot(t, rec).Phase)
}

func TestEvents_StreamUntilReady(t *testing.T) {
	s := newTestServer(t, 90*time.Millisecond, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/capture").Code)

	resp, err := srv.Client().Get(srv.URL + "/v1/capture/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	phases := map[framegrid.Phase]bool{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap framegrid.Snapshot
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
		phases[snap.Phase] = true
		if snap.Phase == framegrid.PhaseReady {
			break
		}
	}
	assert.True(t, phases[framegrid.PhaseReady])

	// Closing the capture ends the stream.
	require.Equal(t, http.StatusOK, do(t, s, http.MethodDelete, "/v1/capture").Code)
	for scanner.Scan() {
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, 90*time.Millisecond, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/capture/preview.jpg").Code)

	sup := preview.New()
	defer sup.Stop()
	s = newTestServer(t, 90*time.Millisecond, sup)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/capture/preview.jpg").Code)

	sup.Publish(&preview.Frame{Seq: 1, Width: 4, Height: 2, Data: make([]byte, 4*2*3)})
	rec := do(t, s, http.MethodGet, "/v1/capture/preview.jpg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8}, rec.Body.Bytes()[:2])
}

func TestPreviewMJPEG(t *testing.T) {
	sup := preview.New()
	s := newTestServer(t, 90*time.Millisecond, sup)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/v1/capture/preview.mjpeg")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace"))

	// The handler subscribes before writing headers, so this frame is seen.
	sup.Publish(&preview.Frame{Seq: 1, Width: 2, Height: 2, Data: make([]byte, 2*2*3)})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)

	sup.Stop()
}
