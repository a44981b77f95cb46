package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDownloader struct {
	got  string
	body string
}

func (s *stubDownloader) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	s.got = rawURL
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestFetch_LocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "may.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0o600))

	f := New(Options{})
	data, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	data, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}

func TestFetch_MissingFile(t *testing.T) {
	_, err := New(Options{}).Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: open")
}

func TestFetch_DispatchesByScheme(t *testing.T) {
	httpStub := &stubDownloader{body: "from http"}
	ftpStub := &stubDownloader{body: "from ftp"}
	f := New(Options{HTTP: httpStub, FTP: ftpStub})

	data, err := f.Fetch(context.Background(), "HTTPS://example.com/a.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "from http", string(data))
	assert.Equal(t, "HTTPS://example.com/a.xlsx", httpStub.got)

	data, err = f.Fetch(context.Background(), "ftp://example.com/b.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "from ftp", string(data))
}

func TestFetch_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	data, err := New(Options{}).Fetch(context.Background(), srv.URL+"/may.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))
}

func TestFetch_SizeCap(t *testing.T) {
	f := New(Options{MaxBytes: 4, HTTP: &stubDownloader{body: "too large"}})
	_, err := f.Fetch(context.Background(), "http://example.com/a.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 4 bytes")
}

func TestName(t *testing.T) {
	assert.Equal(t, "may.xlsx", Name("/data/exports/may.xlsx"))
	assert.Equal(t, "may.xlsx", Name("https://example.com/exports/may.xlsx?sig=1"))
	assert.Equal(t, "b.xlsx", Name("ftp://u:p@host/a/b.xlsx"))
}
