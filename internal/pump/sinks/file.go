// Package sinks provides consumers a pump can feed: local files, in-memory
// buffers, checksum accumulators and HTTP responses.
package sinks

import (
	"fmt"
	"os"
	"path/filepath"
)

// File writes chunks to a new local file. Writes are synchronous, so the
// sink never reports a full backlog. Finalize flushes the file to stable
// storage.
type File struct {
	f       *os.File
	drained chan struct{}
}

// CreateFile creates path for writing. An existing file is not overwritten.
func CreateFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create sink directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304 - callers confine path to the spool dir
	if err != nil {
		return nil, fmt.Errorf("failed to create sink file: %w", err)
	}

	return &File{f: f, drained: make(chan struct{})}, nil
}

// Submit writes the chunk. Disk writes complete before returning, so the
// capacity signal is always true.
func (s *File) Submit(chunk []byte) (bool, error) {
	if _, err := s.f.Write(chunk); err != nil {
		return false, err
	}
	return true, nil
}

// Drained never signals: this sink is never at capacity.
func (s *File) Drained() <-chan struct{} {
	return s.drained
}

// Finalize flushes written data to stable storage.
func (s *File) Finalize() error {
	return s.f.Sync()
}

// Close releases the file handle.
func (s *File) Close() error {
	return s.f.Close()
}
