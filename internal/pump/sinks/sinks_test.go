package sinks

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubConnState simulates an HTTP peer that can go away.
type stubConnState struct {
	connected bool
	done      chan struct{}
}

func newStubConnState() *stubConnState {
	return &stubConnState{connected: true, done: make(chan struct{})}
}

func (s *stubConnState) disconnect() {
	s.connected = false
	close(s.done)
}

func (s *stubConnState) IsConnected() bool     { return s.connected }
func (s *stubConnState) Done() <-chan struct{} { return s.done }

func TestFileSink_WritesAndSyncs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.bin")

	snk, err := CreateFile(path)
	require.NoError(t, err)

	ok, err := snk.Submit([]byte("hello "))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = snk.Submit([]byte("world"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, snk.Finalize())
	require.NoError(t, snk.Close())

	data, err := os.ReadFile(path) // #nosec G304
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)
}

func TestFileSink_RefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("already here"), 0o640))

	_, err := CreateFile(path)
	assert.Error(t, err)
}

func TestBufferSink_KeepsChunkBoundaries(t *testing.T) {
	snk := NewBuffer()

	chunk := []byte("abc")
	ok, err := snk.Submit(chunk)
	require.NoError(t, err)
	assert.True(t, ok)

	// The sink must copy; mutating the submitted slice is harmless.
	chunk[0] = 'x'

	_, err = snk.Submit([]byte("defg"))
	require.NoError(t, err)
	require.NoError(t, snk.Finalize())

	assert.Equal(t, []byte("abcdefg"), snk.Bytes())
	require.Len(t, snk.Chunks(), 2)
	assert.Equal(t, []byte("abc"), snk.Chunks()[0])
	assert.Equal(t, []byte("defg"), snk.Chunks()[1])
	assert.True(t, snk.Finalized())
}

func TestHashSink_MatchesDirectDigest(t *testing.T) {
	payload := bytes.Repeat([]byte("streampump"), 1000)

	snk := NewHash()
	for i := 0; i < len(payload); i += 256 {
		end := min(i+256, len(payload))
		ok, err := snk.Submit(payload[i:end])
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.NoError(t, snk.Finalize())

	want := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(want[:]), snk.Sum())
}

func TestHTTPSink_SignalsDrainedAtHighWater(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriterSize(&out, 4096)
	snk := NewHTTP(w, newStubConnState(), 10)

	ok, err := snk.Submit([]byte("12345"))
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case <-snk.Drained():
		t.Fatal("drained before reaching the high-water mark")
	default:
	}

	// Crossing the mark flushes and reports no capacity.
	ok, err = snk.Submit([]byte("6789AB"))
	require.NoError(t, err)
	assert.False(t, ok)

	select {
	case <-snk.Drained():
	default:
		t.Fatal("expected a drained signal after the flush")
	}

	assert.Equal(t, "123456789AB", out.String())
	assert.Equal(t, int64(11), snk.TotalBytes())

	// Capacity is available again after the drain.
	ok, err = snk.Submit([]byte("c"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPSink_DisconnectedPeer(t *testing.T) {
	var out bytes.Buffer
	conn := newStubConnState()
	snk := NewHTTP(bufio.NewWriter(&out), conn, 0)

	conn.disconnect()

	_, err := snk.Submit([]byte("data"))
	assert.ErrorIs(t, err, ErrClientDisconnected)
	assert.ErrorIs(t, snk.Finalize(), ErrClientDisconnected)
	assert.NoError(t, snk.Close())
}
