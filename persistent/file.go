package persistent

import (
	"bufio"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const bufferSize = 1 << 20

// NewFileStore creates new file-based store. Existing file is truncated.
func NewFileStore(path string) (*FileStore, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	return &FileStore{
			file:   file,
			writer: bufio.NewWriterSize(file, bufferSize),
		}, func() {
			_ = file.Close()
		}, nil
}

// FileStore defines persistent file-based store.
type FileStore struct {
	file   *os.File
	writer *bufio.Writer
}

// Write writes data to the store.
func (s *FileStore) Write(data []byte) error {
	_, err := s.writer.Write(data)
	return errors.WithStack(err)
}

// Sync syncs pending writes.
func (s *FileStore) Sync() error {
	if err := s.writer.Flush(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(unix.Fdatasync(int(s.file.Fd())))
}
