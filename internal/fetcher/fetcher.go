// Package fetcher loads workbook bytes from a local path, an HTTP(S) URL or
// an FTP URL.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultMaxBytes caps how much of a workbook is read into memory.
const DefaultMaxBytes = 64 << 20

// Downloader opens a remote location for reading.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Options configures a Fetcher.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	HTTP     Downloader
	FTP      Downloader
}

// Fetcher dispatches on the location scheme.
type Fetcher struct {
	maxBytes int64
	http     Downloader
	ftp      Downloader
}

// New creates a Fetcher. Missing downloaders are built from opts.Timeout.
func New(opts Options) *Fetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.HTTP == nil {
		opts.HTTP = NewHTTPFetcher(HTTPOptions{Timeout: opts.Timeout})
	}
	if opts.FTP == nil {
		opts.FTP = NewFTPFetcher(FTPOptions{Timeout: opts.Timeout})
	}
	return &Fetcher{maxBytes: opts.MaxBytes, http: opts.HTTP, ftp: opts.FTP}
}

// Fetch reads the whole resource at location. Anything without an http,
// https or ftp scheme is treated as a local path.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	rc, err := f.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, f.maxBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", location)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, eris.Errorf("fetcher: %s exceeds %d bytes", location, f.maxBytes)
	}

	zap.L().Debug("fetcher: loaded", zap.String("location", location), zap.Int("bytes", len(data)))
	return data, nil
}

// Open returns a reader for location.
func (f *Fetcher) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch scheme(location) {
	case "http", "https":
		return f.http.Download(ctx, location)
	case "ftp":
		return f.ftp.Download(ctx, location)
	case "file":
		u, err := url.Parse(location)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: parse file url")
		}
		return openLocal(u.Path)
	}
	return openLocal(location)
}

// Name returns the file name a location refers to, used to label runs.
func Name(location string) string {
	if s := scheme(location); s != "" {
		if u, err := url.Parse(location); err == nil {
			return filepath.Base(u.Path)
		}
	}
	return filepath.Base(location)
}

func scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

func openLocal(path string) (io.ReadCloser, error) {
	file, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return file, nil
}
