// Package store persists checkpoints and extraction results. Every write
// is durable before the call returns.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"contact_harvest/egresspool/storage"
	"contact_harvest/internal/store/pg"
	"contact_harvest/internal/shared/types"
)

// CheckpointStore is an append-only progress log per input source.
type CheckpointStore interface {
	Append(ctx context.Context, cp types.Checkpoint) error
	// Latest returns the most recent checkpoint for source; ok is false
	// when none exists.
	Latest(ctx context.Context, source string) (cp types.Checkpoint, ok bool, err error)
}

// ResultStore keeps every persisted result. The latest write per row wins.
type ResultStore interface {
	Save(ctx context.Context, r types.StoredResult) error
	Latest(ctx context.Context, source string) (map[int]types.Result, error)
}

// Backend bundles the three durable stores of a run.
type Backend struct {
	Blocklist   storage.Blocklist
	Checkpoints CheckpointStore
	Results     ResultStore
	closeFn     func()
}

// Close releases backend resources.
func (b *Backend) Close() {
	if b.closeFn != nil {
		b.closeFn()
	}
}

// Open 根据配置打开文件或 Postgres 后端。
func Open(ctx context.Context, cfg types.StoreConf) (*Backend, error) {
	switch cfg.Backend {
	case "", "file":
		return &Backend{
			Blocklist:   storage.NewFileBlocklist(filepath.Join(cfg.Dir, "blocked_egress.txt")),
			Checkpoints: NewFileCheckpoints(cfg.Dir),
			Results:     NewFileResults(cfg.Dir),
		}, nil
	case "postgres":
		db, err := pg.Open(ctx, pg.Config{URL: cfg.PgDSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &Backend{
			Blocklist:   db.Blocklist(),
			Checkpoints: db.Checkpoints(),
			Results:     db.Results(),
			closeFn:     db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
