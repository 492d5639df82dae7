package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"contact_harvest/internal/shared/types"
)

// ExtractionColumns are appended after the input columns in the export.
var ExtractionColumns = []string{
	"Verified Name", "Verified Address",
	"Phone 1", "Phone 2", "Phone 3", "Phone 4",
	"Email 1", "Email 2", "Email 3",
	"Remarks", "Used Egress",
}

// Table 是读入的输入表格。Rows[i].Ordinal == i。
type Table struct {
	Header []string
	Rows   []types.InputRow
}

// ReadTableFile opens path and reads it with ReadTable.
func ReadTableFile(path, nameColumn, localityColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadTable(f, nameColumn, localityColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTable reads a CSV with a header row. The name and locality columns
// must exist; short rows are padded to the header width.
func ReadTable(r io.Reader, nameColumn, localityColumn string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	nameIdx, err := columnIndex(header, nameColumn)
	if err != nil {
		return nil, err
	}
	localityIdx, err := columnIndex(header, localityColumn)
	if err != nil {
		return nil, err
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		fields := make([]string, len(header))
		copy(fields, rec)
		t.Rows = append(t.Rows, types.InputRow{
			Ordinal:  len(t.Rows),
			Name:     strings.TrimSpace(fields[nameIdx]),
			Locality: strings.TrimSpace(fields[localityIdx]),
			Fields:   fields,
		})
	}
}

func columnIndex(header []string, name string) (int, error) {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), strings.TrimSpace(name)) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("missing required column %q", name)
}

// SourceID identifies an input across runs: its absolute path.
func SourceID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// DefaultOutputPath returns <input-stem>_output.csv next to the input.
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_output.csv"
}
