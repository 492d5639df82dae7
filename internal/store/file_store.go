package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"contact_harvest/internal/shared/logger"
	"contact_harvest/internal/shared/types"
)

const (
	delimiter        = '|'
	checkpointFields = 6  // Source|Row|Attempt|Final|RunID|AtUnixNano
	resultFields     = 17 // Source|Ordinal|RunID|Name|Address|Phone1..4|Email1..3|Kind|Summary|Attempts|Egress|AtUnixNano
)

// appendLog 是追加写入的分隔文本文件，每次写入后 fsync。
type appendLog struct {
	path string
	mu   sync.Mutex
	log  zerolog.Logger
}

// FileCheckpoints 实现 CheckpointStore，记录写入 dir/checkpoints.txt。
type FileCheckpoints struct{ file *appendLog }

// FileResults 实现 ResultStore，记录写入 dir/results.txt。
type FileResults struct{ file *appendLog }

// NewFileCheckpoints 创建一个新的 FileCheckpoints 实例，文件位于 dir 下。
func NewFileCheckpoints(dir string) *FileCheckpoints {
	return &FileCheckpoints{file: &appendLog{
		path: filepath.Join(dir, "checkpoints.txt"),
		log:  logger.WithComponent("Store/Checkpoints"),
	}}
}

// NewFileResults 创建一个新的 FileResults 实例，文件位于 dir 下。
func NewFileResults(dir string) *FileResults {
	return &FileResults{file: &appendLog{
		path: filepath.Join(dir, "results.txt"),
		log:  logger.WithComponent("Store/Results"),
	}}
}

func (s *FileCheckpoints) Append(_ context.Context, cp types.Checkpoint) error {
	return s.file.appendRecord(formatCheckpoint(cp))
}

func (s *FileCheckpoints) Latest(_ context.Context, source string) (types.Checkpoint, bool, error) {
	var latest types.Checkpoint
	found := false
	err := s.file.readRecords(checkpointFields, func(fields []string) error {
		if fields[0] != source {
			return nil
		}
		cp, err := parseCheckpoint(fields)
		if err != nil {
			return err
		}
		// 以时间戳为准，时间相同时后写入者优先
		if !found || !cp.At.Before(latest.At) {
			latest = cp
			found = true
		}
		return nil
	})
	return latest, found, err
}

func (s *FileResults) Save(_ context.Context, r types.StoredResult) error {
	r.Result.Normalize()
	return s.file.appendRecord(formatResult(r))
}

// Latest 按写入顺序覆盖，保证每个序号取最新一条。
func (s *FileResults) Latest(_ context.Context, source string) (map[int]types.Result, error) {
	out := make(map[int]types.Result)
	err := s.file.readRecords(resultFields, func(fields []string) error {
		if fields[0] != source {
			return nil
		}
		r, err := parseResult(fields)
		if err != nil {
			return err
		}
		out[r.Ordinal] = r.Result
		return nil
	})
	return out, err
}

func (l *appendLog) appendRecord(record []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Comma = delimiter
	if err := w.Write(record); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *appendLog) readRecords(numFields int, fn func([]string) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	line := 0
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			// a torn final write from a crash is skipped, not fatal
			l.log.Warn().Str("path", l.path).Int("record", line).Err(err).Msg("Skipping unreadable record.")
			continue
		}
		if len(fields) != numFields {
			l.log.Warn().Str("path", l.path).Int("record", line).Int("expected", numFields).Int("got", len(fields)).Msg("Skipping malformed record.")
			continue
		}
		if err := fn(fields); err != nil {
			l.log.Warn().Str("path", l.path).Int("record", line).Err(err).Msg("Failed to parse record, skipping.")
		}
	}
}

func formatCheckpoint(cp types.Checkpoint) []string {
	return []string{
		cp.Source,
		strconv.Itoa(cp.LastAttemptedRow),
		strconv.Itoa(cp.Attempt),
		strconv.FormatBool(cp.Final),
		cp.RunID,
		strconv.FormatInt(cp.At.UnixNano(), 10),
	}
}

func parseCheckpoint(fields []string) (types.Checkpoint, error) {
	row, err := strconv.Atoi(fields[1])
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("invalid row: %w", err)
	}
	attempt, err := strconv.Atoi(fields[2])
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("invalid attempt: %w", err)
	}
	final, err := strconv.ParseBool(fields[3])
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("invalid final flag: %w", err)
	}
	at, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return types.Checkpoint{
		Source:           fields[0],
		LastAttemptedRow: row,
		Attempt:          attempt,
		Final:            final,
		RunID:            fields[4],
		At:               time.Unix(0, at).UTC(),
	}, nil
}

func formatResult(r types.StoredResult) []string {
	res := r.Result
	rec := []string{r.Source, strconv.Itoa(r.Ordinal), r.RunID, res.VerifiedName, res.VerifiedAddress}
	rec = append(rec, res.Phones[:]...)
	rec = append(rec, res.Emails[:]...)
	return append(rec,
		res.Remarks.Kind.String(),
		res.Remarks.Summary,
		strconv.Itoa(res.Remarks.Attempts),
		res.UsedEgress,
		strconv.FormatInt(r.At.UnixNano(), 10),
	)
}

func parseResult(fields []string) (types.StoredResult, error) {
	ordinal, err := strconv.Atoi(fields[1])
	if err != nil {
		return types.StoredResult{}, fmt.Errorf("invalid ordinal: %w", err)
	}
	kind, err := types.ParseRemarksKind(fields[12])
	if err != nil {
		return types.StoredResult{}, err
	}
	attempts, err := strconv.Atoi(fields[14])
	if err != nil {
		return types.StoredResult{}, fmt.Errorf("invalid attempts: %w", err)
	}
	at, err := strconv.ParseInt(fields[16], 10, 64)
	if err != nil {
		return types.StoredResult{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	res := types.Result{
		VerifiedName:    fields[3],
		VerifiedAddress: fields[4],
		Remarks:         types.Remarks{Kind: kind, Summary: fields[13], Attempts: attempts},
		UsedEgress:      fields[15],
	}
	copy(res.Phones[:], fields[5:9])
	copy(res.Emails[:], fields[9:12])
	res.Normalize()

	return types.StoredResult{
		Source:  fields[0],
		Ordinal: ordinal,
		RunID:   fields[2],
		Result:  res,
		At:      time.Unix(0, at).UTC(),
	}, nil
}
