// Package sink stores encoded tiles: in a directory, a ZIP archive or an
// S3-compatible bucket.
package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/afero"
)

// Sink receives tiles in the order they are produced
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
	Close() error
}

// Config holds the settings of every sink kind; Open uses the ones that
// apply to the chosen target.
type Config struct {
	Fs          afero.Fs // defaults to the OS filesystem
	Compression string   // ZIP entry method: store, deflate or zstd
	S3          S3Config
}

// Open picks a sink for target: "s3://bucket/prefix" uploads to object
// storage, a path ending in .zip writes an archive, anything else is a
// directory.
func Open(ctx context.Context, target string, cfg Config) (Sink, error) {
	if target == "" {
		return nil, fmt.Errorf("no output target given")
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	switch {
	case strings.HasPrefix(target, "s3://"):
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse s3 target: %w", err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("s3 target %q has no bucket", target)
		}
		s3cfg := cfg.S3
		s3cfg.Bucket = u.Host
		s3cfg.Prefix = strings.Trim(u.Path, "/")
		return NewS3(ctx, s3cfg)
	case strings.EqualFold(ext(target), ".zip"):
		return CreateZip(cfg.Fs, target, cfg.Compression)
	default:
		return NewDir(cfg.Fs, target)
	}
}

func ext(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 && !strings.ContainsAny(p[i:], `/\`) {
		return p[i:]
	}
	return ""
}

// checkName rejects names that would escape the sink's root
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid tile name %q", name)
	}
	return nil
}
