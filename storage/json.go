package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
)

var _ store.Storage = (*JSONStorage)(nil)

type JSONOptions struct {
	// CreateDirs creates missing parent directories of the file.
	CreateDirs bool
	// Compress stores the table zstd compressed.
	Compress bool
	Log      *slog.Logger
}

// JSONStorage keeps the table in a single JSON file. The file is created if
// it does not exist and an empty file reads as an empty table.
type JSONStorage struct {
	path     string
	handle   *os.File
	compress bool
	log      *slog.Logger
}

// NewJSONStorage opens or creates the file at path.
func NewJSONStorage(path string, opts *JSONOptions) (*JSONStorage, error) {
	if opts == nil {
		opts = &JSONOptions{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	if opts.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directories for %s: %w", path, err)
		}
	}

	handle, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	log.Debug("NewJSONStorage - open file", "path", path, "compress", opts.Compress)
	return &JSONStorage{path: path, handle: handle, compress: opts.Compress, log: log}, nil
}

func (s *JSONStorage) Read() (store.Table, error) {
	if s.handle == nil {
		return nil, fault.ErrClosed
	}

	info, err := s.handle.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	data := make([]byte, info.Size())
	if _, err := s.handle.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return DecodeTable(data)
}

func (s *JSONStorage) Write(t store.Table) error {
	if s.handle == nil {
		return fault.ErrClosed
	}

	data, err := EncodeTable(t, s.compress)
	if err != nil {
		return err
	}

	if _, err := s.handle.WriteAt(data, 0); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	if err := s.handle.Truncate(int64(len(data))); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", s.path, err)
	}
	if err := s.handle.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", s.path, err)
	}

	s.log.Debug("JSONStorage.Write() - wrote table", "path", s.path, "documents", len(t), "size", humanize.Bytes(uint64(len(data))))
	return nil
}

func (s *JSONStorage) Close() error {
	if s.handle == nil {
		return nil
	}
	err := s.handle.Close()
	s.handle = nil
	return err
}
