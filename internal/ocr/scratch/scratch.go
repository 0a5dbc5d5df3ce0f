// Package scratch provides filesystem-backed resources scoped to one
// document's lifecycle. Every resource is removed exactly once on Release,
// no matter how processing exits; removal failures are logged, never
// escalated, so cleanup can never mask the primary result.
package scratch

import (
	"fmt"
	"os"
	"sync"

	"github.com/docuflow/ocr-service/pkg/logger"
)

// File is a scratch file holding one document's validated bytes
type File struct {
	path   string
	logger *logger.Logger
	once   sync.Once
}

// NewFile creates a scratch file from pattern (os.CreateTemp rules, so a
// "*" placeholder keeps the extension suffix intact) and writes data into
// it. The file is closed before returning; the engine only ever sees the
// path.
func NewFile(dir, pattern string, data []byte, log *logger.Logger) (*File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close scratch file: %w", err)
	}

	return &File{path: path, logger: log}, nil
}

// Path returns the location of the scratch file
func (f *File) Path() string {
	return f.path
}

// Release removes the file. Only the first call deletes; later calls are
// no-ops.
func (f *File) Release() {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn().Err(err).Str("path", f.path).Msg("failed to clean up scratch file")
		}
	})
}

// Dir is a scratch directory collecting engine output artifacts
type Dir struct {
	path   string
	logger *logger.Logger
	once   sync.Once
}

// NewDir creates a scratch directory under dir using pattern
// (os.MkdirTemp rules)
func NewDir(dir, pattern string, log *logger.Logger) (*Dir, error) {
	path, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Dir{path: path, logger: log}, nil
}

// Path returns the location of the scratch directory
func (d *Dir) Path() string {
	return d.path
}

// Release removes the directory and everything in it. Only the first call
// deletes; later calls are no-ops.
func (d *Dir) Release() {
	d.once.Do(func() {
		if err := os.RemoveAll(d.path); err != nil {
			d.logger.Warn().Err(err).Str("path", d.path).Msg("failed to clean up scratch directory")
		}
	})
}
