package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/enricher/internal/common"
)

// Supported input formats by file extension
const (
	FormatCSV  = ".csv"
	FormatXLSX = ".xlsx"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX
var ErrUnsupportedFormat = errors.New("unsupported file format")

const utf8BOM = "\ufeff"

// FormatOf returns the normalized input format of filename
func FormatOf(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case FormatCSV, FormatXLSX:
		return ext, nil
	case "":
		// Browsers occasionally send CSV without an extension
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// Decode reads a table in the format implied by filename
func Decode(filename string, r io.Reader) (*Table, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return DecodeXLSX(r)
	}
	return DecodeCSV(r)
}

// DecodeCSV parses CSV with the first row as header
func DecodeCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return New(nil, nil), nil
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return New(header, records[1:]), nil
}

// DecodeXLSX reads the first sheet of a workbook with the first row as header
func DecodeXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return New(nil, nil), nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	var populated [][]string
	for _, row := range rows {
		if len(row) > 0 {
			populated = append(populated, row)
		}
	}
	if len(populated) == 0 {
		return New(nil, nil), nil
	}
	return New(populated[0], populated[1:]), nil
}

// Encode writes the table as CSV, header first
func Encode(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if len(t.Header) > 0 {
		if err := writer.Write(t.Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// WriteFile rewrites path with the whole table. The previous file is only
// replaced once the new contents are complete.
func WriteFile(path string, t *Table) error {
	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return err
	}
	return common.WriteFileAtomic(path, buf.Bytes())
}
