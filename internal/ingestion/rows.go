package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpattn/ngoreports/pkg/validator"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Format identifies how an upload is encoded.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromFileName derives the upload format from the file extension.
func FormatFromFileName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Upload points at a stored upload awaiting ingestion.
type Upload struct {
	Path   string
	Format Format
	// Name is the client supplied file name, used for logging only.
	Name string
}

// Row is one data record of an upload. Number is the 1-based row of the
// record in the file, where the header is row 1.
type Row struct {
	Number int
	fields []string
	index  map[string]int
}

// Value returns the raw text of the named column, or "" if the record is
// shorter than the header.
func (r Row) Value(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

// RowReader yields the records of an upload lazily and exactly once.
// Next returns io.EOF after the last record.
type RowReader interface {
	Header() []string
	Next() (Row, error)
	Close() error
}

// OpenRowReader opens the upload and reads its header row.
func OpenRowReader(upload Upload) (RowReader, error) {
	switch upload.Format {
	case FormatCSV, "":
		return openCSV(upload.Path)
	case FormatXLSX:
		return openXLSX(upload.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, upload.Format)
	}
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := validator.NormalizeHeader(name)
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}
	return index
}

type csvRowReader struct {
	file   *os.File
	reader *csv.Reader
	header []string
	index  map[string]int
}

func openCSV(path string) (*csvRowReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}

	buffered := bufio.NewReader(file)
	if prefix, err := buffered.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = buffered.Discard(len(byteOrderMark))
	}

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	r := &csvRowReader{file: file, reader: reader}
	header, err := reader.Read()
	switch {
	case errors.Is(err, io.EOF):
		header = []string{}
	case err != nil:
		file.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	r.header = header
	r.index = headerIndex(header)
	return r, nil
}

func (r *csvRowReader) Header() []string { return r.header }

// Next returns the next record. Empty lines are dropped by encoding/csv;
// a record of empty fields such as ",,,," is data and is returned. Number
// is the physical line, so it counts the dropped lines too.
func (r *csvRowReader) Next() (Row, error) {
	record, err := r.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, fmt.Errorf("malformed CSV: %w", err)
	}
	line, _ := r.reader.FieldPos(0)
	return Row{Number: line, fields: record, index: r.index}, nil
}

func (r *csvRowReader) Close() error { return r.file.Close() }

type xlsxRowReader struct {
	file   *excelize.File
	rows   *excelize.Rows
	header []string
	index  map[string]int
	line   int
}

func openXLSX(path string) (*xlsxRowReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	r := &xlsxRowReader{file: f, rows: rows, header: []string{}}
	for rows.Next() {
		r.line++
		cols, err := rows.Columns()
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("read header: %w", err)
		}
		if isEmptyRow(cols) {
			continue
		}
		r.header = cols
		break
	}
	r.index = headerIndex(r.header)
	return r, nil
}

func (r *xlsxRowReader) Header() []string { return r.header }

func (r *xlsxRowReader) Next() (Row, error) {
	for r.rows.Next() {
		r.line++
		cols, err := r.rows.Columns()
		if err != nil {
			return Row{}, fmt.Errorf("read row %d: %w", r.line, err)
		}
		if isEmptyRow(cols) {
			continue
		}
		return Row{Number: r.line, fields: cols, index: r.index}, nil
	}
	if err := r.rows.Error(); err != nil {
		return Row{}, fmt.Errorf("read sheet: %w", err)
	}
	return Row{}, io.EOF
}

func (r *xlsxRowReader) Close() error {
	rowsErr := r.rows.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return rowsErr
}

// isEmptyRow reports a sheet row without any cell content, the XLSX
// counterpart of an empty CSV line. Whitespace counts as content.
func isEmptyRow(cols []string) bool {
	for _, v := range cols {
		if v != "" {
			return false
		}
	}
	return true
}
