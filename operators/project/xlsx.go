package project

import (
	"errors"
	"fmt"
	"io"

	"table-projection-go/operators"

	"github.com/xuri/excelize/v2"
)

var (
	_ = (operators.Operator)(&XLSXSource{})
)

var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// XLSXSource reads one sheet of a workbook. The first row is the header and
// typing follows the CSV source.
type XLSXSource struct {
	*CSVSource
	Sheet string
}

// NewXLSXSource opens path and reads sheet; an empty sheet name picks the
// first sheet of the workbook.
func NewXLSXSource(path, sheet string, nullTokens ...string) (*XLSXSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return newXLSXSource(f, sheet, nullTokens)
}

// NewXLSXSourceFromReader is NewXLSXSource for an already open stream.
func NewXLSXSourceFromReader(r io.Reader, sheet string, nullTokens ...string) (*XLSXSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return newXLSXSource(f, sheet, nullTokens)
}

func newXLSXSource(f *excelize.File, sheet string, nullTokens []string) (*XLSXSource, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyWorkbook
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	src, err := newRowSource(&sheetRows{rows: rows}, nullTokens)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	return &XLSXSource{CSVSource: src, Sheet: sheet}, nil
}

// sheetRows replays GetRows output. excelize drops trailing empty cells, so
// rows are padded to the header width.
type sheetRows struct {
	rows  [][]string
	pos   int
	width int
}

func (s *sheetRows) Read() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	if s.pos == 1 {
		s.width = len(row)
		return row, nil
	}
	if len(row) > s.width {
		return nil, operators.ErrRowLengthMismatch(s.pos-1, len(row), s.width)
	}
	if len(row) < s.width {
		padded := make([]string, s.width)
		copy(padded, row)
		row = padded
	}
	return row, nil
}
