package sink

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Dir writes each tile as a file in one directory
type Dir struct {
	fs   afero.Fs
	path string
}

// NewDir creates path if needed and returns a sink writing into it
func NewDir(fs afero.Fs, path string) (*Dir, error) {
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Dir{fs: fs, path: path}, nil
}

// Put writes data to <dir>/<name>, replacing any existing file
func (d *Dir) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	return afero.WriteFile(d.fs, filepath.Join(d.path, name), data, 0o644)
}

// Close implements Sink
func (d *Dir) Close() error {
	return nil
}
