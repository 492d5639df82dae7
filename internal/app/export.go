package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"contact_harvest/internal/store"
	"contact_harvest/internal/shared/types"
)

// WriteMerged left-joins results onto the input rows by ordinal and writes
// one CSV: every input column in order, then ExtractionColumns. Rows with
// no result get empty extraction columns.
func WriteMerged(w io.Writer, t *Table, results map[int]types.Result) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(t.Header)+len(ExtractionColumns))
	header = append(header, t.Header...)
	header = append(header, ExtractionColumns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.Fields...)
		rec = append(rec, extractionFields(results[row.Ordinal])...)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func extractionFields(r types.Result) []string {
	r.Normalize()
	out := []string{r.VerifiedName, r.VerifiedAddress}
	out = append(out, r.Phones[:]...)
	out = append(out, r.Emails[:]...)
	return append(out, r.Remarks.String(), r.UsedEgress)
}

// Export 读取 source 的最新结果并原子地写出合并表格（临时文件 + rename）。
func Export(ctx context.Context, results store.ResultStore, t *Table, source, path string) (int, error) {
	latest, err := results.Latest(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("load results: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	if err := WriteMerged(tmp, t, latest); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}

	matched := 0
	for _, row := range t.Rows {
		if _, ok := latest[row.Ordinal]; ok {
			matched++
		}
	}
	return matched, nil
}
