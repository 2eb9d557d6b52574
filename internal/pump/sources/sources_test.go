package sources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFile_ReadsWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.bin")
	payload := []byte("some file contents")
	require.NoError(t, os.WriteFile(path, payload, 0o640))

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	assert.Equal(t, int64(len(payload)), src.Size())

	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOpenFile_RejectsDirectories(t *testing.T) {
	_, err := OpenFile(t.TempDir())
	assert.Error(t, err)
}

func TestOpenFile_MissingFile(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestNewBytes_SizeAndEOF(t *testing.T) {
	src := NewBytes([]byte("abc"))
	assert.Equal(t, int64(3), src.Size())

	buf := make([]byte, 8)
	n, err := src.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = src.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestNewBytes_Empty(t *testing.T) {
	src := NewBytes(nil)
	assert.Equal(t, int64(0), src.Size())

	buf := make([]byte, 8)
	_, err := src.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenHTTP_StreamsBody(t *testing.T) {
	payload := []byte("remote payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	src, err := OpenHTTP(context.Background(), srv.URL, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	assert.Equal(t, int64(len(payload)), src.Size())

	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOpenHTTP_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := OpenHTTP(context.Background(), srv.URL, 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOpenHTTP_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("never seen"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := OpenHTTP(ctx, srv.URL, 5*time.Second)
	assert.Error(t, err)
}
