package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"table-projection-go/operators"
)

var (
	ErrUnsupportedFile = func(path string) error {
		return fmt.Errorf("unsupported file type %q, expected .csv, .parquet or .xlsx", filepath.Ext(path))
	}
	ErrFileTooLarge = func(path string, size int64, limitMB int) error {
		return fmt.Errorf("%s is %d bytes, limit is %d MB", path, size, limitMB)
	}
)

// FileOptions controls how OpenFile reads a local file.
type FileOptions struct {
	BatchSize  int64
	NullTokens []string
	// Sheet is the xlsx sheet, empty for the first one.
	Sheet string
	// 0 disables the check
	MaxFileSizeMB int
}

// OpenFile picks a source by file extension. The returned operator owns the
// file; Close releases both.
func OpenFile(path string, opts FileOptions) (operators.Operator, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if opts.MaxFileSizeMB > 0 && info.Size() > int64(opts.MaxFileSizeMB)*1024*1024 {
		return nil, ErrFileTooLarge(path, info.Size(), opts.MaxFileSizeMB)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		src, err := NewCSVSource(f, opts.NullTokens...)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &fileSource{Operator: src, f: f}, nil
	case ".parquet":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		src, err := NewParquetSource(f, opts.BatchSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &fileSource{Operator: src, f: f}, nil
	case ".xlsx", ".xlsm":
		return NewXLSXSource(path, opts.Sheet, opts.NullTokens...)
	default:
		return nil, ErrUnsupportedFile(path)
	}
}

// fileSource closes the backing file after the source.
type fileSource struct {
	operators.Operator
	f *os.File
}

func (fs *fileSource) Close() error {
	err := fs.Operator.Close()
	if cerr := fs.f.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}
