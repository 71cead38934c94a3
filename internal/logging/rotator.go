package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRotator is an io.Writer that rotates its file once it grows past a
// size limit. Backups are numbered: gazed.log.1 is the most recent.
type FileRotator struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileRotator opens path for appending. maxSizeMB of zero disables
// rotation.
func NewFileRotator(path string, maxSizeMB int64, maxBackups int) (*FileRotator, error) {
	r := &FileRotator{
		path:       path,
		maxBytes:   maxSizeMB * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = file
	r.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate shifts the numbered backups up by one and starts a new file.
// Backups beyond maxBackups fall off the end.
func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	r.file = nil

	if r.maxBackups <= 0 {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return r.open()
	}

	os.Remove(r.backup(r.maxBackups))
	for i := r.maxBackups - 1; i >= 1; i-- {
		if err := os.Rename(r.backup(i), r.backup(i+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Rename(r.path, r.backup(1)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return r.open()
}

func (r *FileRotator) backup(n int) string {
	return fmt.Sprintf("%s.%d", r.path, n)
}

// Files returns the current log file followed by the existing backups,
// newest first.
func (r *FileRotator) Files() []string {
	files := []string{r.path}
	for i := 1; i <= r.maxBackups; i++ {
		if _, err := os.Stat(r.backup(i)); err == nil {
			files = append(files, r.backup(i))
		}
	}
	return files
}

// Close closes the underlying file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
