package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// Zip streams tiles into a ZIP archive
type Zip struct {
	w        *zip.Writer
	closer   io.Closer
	method   uint16
	modified time.Time
}

// ParseMethod maps store, deflate or zstd to a ZIP compression method
func ParseMethod(s string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "store":
		return zip.Store, nil
	case "deflate":
		return zip.Deflate, nil
	case "zstd":
		return zstd.ZipMethodWinZip, nil
	}
	return 0, fmt.Errorf("unknown zip compression %q (want store, deflate or zstd)", s)
}

// NewZip writes an archive to w. PNG data is already compressed, so the
// default method is store.
func NewZip(w io.Writer, method string) (*Zip, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	zw := zip.NewWriter(w)
	if m == zstd.ZipMethodWinZip {
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
	}
	return &Zip{w: zw, method: m, modified: time.Now()}, nil
}

// CreateZip creates the archive file at path
func CreateZip(fs afero.Fs, path, method string) (*Zip, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	z, err := NewZip(f, method)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	z.closer = f
	return z, nil
}

// Put adds one entry to the archive
func (z *Zip) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	fw, err := z.w.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   z.method,
		Modified: z.modified,
	})
	if err != nil {
		return fmt.Errorf("add %s to archive: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s to archive: %w", name, err)
	}
	return nil
}

// Close writes the central directory and closes the underlying file, if any
func (z *Zip) Close() error {
	err := z.w.Close()
	if z.closer != nil {
		err = multierr.Append(err, z.closer.Close())
	}
	return err
}
