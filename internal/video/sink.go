package video

import (
	"errors"
	"fmt"
	"os"
)

// Sink consumes encoded payloads in order.
type Sink interface {
	Write(p []byte) error
	Close() error
}

// FileSink appends payloads to a file it created itself.
type FileSink struct {
	path    string
	file    *os.File
	written int64
}

// CreateFileSink creates path for writing. It never truncates or appends to
// an existing file.
func CreateFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, newError(KindOutputFile, "create output file", 0, errors.New("output file path is empty"))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, newError(KindOutputFile, "create output file", 0, err)
	}
	return &FileSink{path: path, file: f}, nil
}

func (s *FileSink) Path() string { return s.path }

// Written is the number of bytes written so far.
func (s *FileSink) Written() int64 { return s.written }

func (s *FileSink) Write(p []byte) error {
	if s.file == nil {
		return newError(KindOutputFile, "write "+s.path, 0, os.ErrClosed)
	}
	// os.File.Write loops until p is written or an error occurs.
	n, err := s.file.Write(p)
	s.written += int64(n)
	if err != nil {
		return newError(KindOutputFile, "write "+s.path, 0, err)
	}
	return nil
}

// Close flushes the file to stable storage and closes it. It is safe to call
// repeatedly.
func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil

	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		return newError(KindOutputFile, "sync "+s.path, 0, syncErr)
	}
	if closeErr != nil {
		return newError(KindOutputFile, "close "+s.path, 0, closeErr)
	}
	return nil
}

// Remove closes and deletes the file. It is used when a session fails before
// anything was recorded.
func (s *FileSink) Remove() error {
	var closeErr error
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close %s: %w", s.path, err)
		}
		s.file = nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(closeErr, fmt.Errorf("failed to remove %s: %w", s.path, err))
	}
	return closeErr
}
