package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// FileSink writes each capture as <dir>/<timestamp>-<id>.jpg with a JSON
// sidecar. Both files are replaced atomically.
type FileSink struct {
	dir string
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("delivery: file sink directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("delivery: create %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

// Name implements Sink
func (f *FileSink) Name() string { return "file" }

// Path returns the JPEG path used for c.
func (f *FileSink) Path(c *Capture) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s-%s.jpg", c.CapturedAt.UTC().Format("20060102T150405Z"), c.ID))
}

// Deliver implements Sink
func (f *FileSink) Deliver(ctx context.Context, c *Capture) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(c.JPEG) == 0 {
		return fmt.Errorf("empty image")
	}

	path := f.Path(c)
	if err := writeAtomic(path, c.JPEG); err != nil {
		return err
	}

	meta, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return writeAtomic(path[:len(path)-len(".jpg")]+".json", meta)
}

// Close implements Sink
func (f *FileSink) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
