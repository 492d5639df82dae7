// Package pg stores the blocklist, checkpoints and results in Postgres
// through a pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contact_harvest/internal/shared/types"
)

// Config configures pgxpool for pg
type Config struct {
	URL      string
	MaxConns int32
}

// PG is a postgres client with pool
type PG struct {
	Pool *pgxpool.Pool
}

var newPool = pgxpool.NewWithConfig

// Open creates a new PG client with the given config
func Open(ctx context.Context, cfg Config) (*PG, error) {
	if cfg.URL == "" {
		return nil, errors.New("pg: empty connection url")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("pg: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: open pool: %w", err)
	}
	return &PG{Pool: pool}, nil
}

// Close closes the pool
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

const schema = `
create table if not exists harvest_blocked_egress (
	address    text primary key,
	blocked_at timestamptz not null
);
create table if not exists harvest_checkpoints (
	id                 bigserial primary key,
	source             text not null,
	last_attempted_row integer not null,
	attempt            integer not null,
	final              boolean not null,
	run_id             text not null,
	at                 timestamptz not null
);
create index if not exists harvest_checkpoints_source_at on harvest_checkpoints (source, at desc, id desc);
create table if not exists harvest_results (
	id               bigserial primary key,
	source           text not null,
	row_ordinal      integer not null,
	run_id           text not null,
	verified_name    text not null,
	verified_address text not null,
	phones           text[] not null,
	emails           text[] not null,
	remarks_kind     text not null,
	remarks_summary  text not null,
	attempts         integer not null,
	used_egress      text not null,
	at               timestamptz not null
);
create index if not exists harvest_results_source_row on harvest_results (source, row_ordinal, id desc);
`

// EnsureSchema creates the tables when missing.
func (p *PG) EnsureSchema(ctx context.Context) error {
	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: ensure schema: %w", err)
	}
	return nil
}

// Blocklist 返回基于 harvest_blocked_egress 的黑名单。
func (p *PG) Blocklist() *Blocklist { return &Blocklist{pool: p.Pool} }

// Checkpoints 返回基于 harvest_checkpoints 的检查点存储。
func (p *PG) Checkpoints() *Checkpoints { return &Checkpoints{pool: p.Pool} }

// Results 返回基于 harvest_results 的结果存储。
func (p *PG) Results() *Results { return &Results{pool: p.Pool} }

type Blocklist struct{ pool *pgxpool.Pool }

func (b *Blocklist) Load(ctx context.Context) (map[string]time.Time, error) {
	rows, err := b.pool.Query(ctx, `select address, blocked_at from harvest_blocked_egress`)
	if err != nil {
		return nil, fmt.Errorf("pg: load blocklist: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var addr string
		var at time.Time
		if err := rows.Scan(&addr, &at); err != nil {
			return nil, fmt.Errorf("pg: scan blocklist: %w", err)
		}
		out[addr] = at.UTC()
	}
	return out, rows.Err()
}

// Add keeps the first block time when the address is already present.
func (b *Blocklist) Add(ctx context.Context, addr string, at time.Time) error {
	_, err := b.pool.Exec(ctx,
		`insert into harvest_blocked_egress (address, blocked_at) values ($1, $2) on conflict (address) do nothing`,
		addr, at.UTC())
	if err != nil {
		return fmt.Errorf("pg: add blocked egress: %w", err)
	}
	return nil
}

type Checkpoints struct{ pool *pgxpool.Pool }

func (c *Checkpoints) Append(ctx context.Context, cp types.Checkpoint) error {
	_, err := c.pool.Exec(ctx,
		`insert into harvest_checkpoints (source, last_attempted_row, attempt, final, run_id, at)
		 values ($1, $2, $3, $4, $5, $6)`,
		cp.Source, cp.LastAttemptedRow, cp.Attempt, cp.Final, cp.RunID, cp.At.UTC())
	if err != nil {
		return fmt.Errorf("pg: append checkpoint: %w", err)
	}
	return nil
}

func (c *Checkpoints) Latest(ctx context.Context, source string) (types.Checkpoint, bool, error) {
	cp := types.Checkpoint{Source: source}
	err := c.pool.QueryRow(ctx,
		`select last_attempted_row, attempt, final, run_id, at from harvest_checkpoints
		 where source = $1 order by at desc, id desc limit 1`, source).
		Scan(&cp.LastAttemptedRow, &cp.Attempt, &cp.Final, &cp.RunID, &cp.At)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Checkpoint{}, false, nil
	}
	if err != nil {
		return types.Checkpoint{}, false, fmt.Errorf("pg: latest checkpoint: %w", err)
	}
	cp.At = cp.At.UTC()
	return cp, true, nil
}

type Results struct{ pool *pgxpool.Pool }

func (r *Results) Save(ctx context.Context, sr types.StoredResult) error {
	res := sr.Result
	res.Normalize()
	_, err := r.pool.Exec(ctx,
		`insert into harvest_results (source, row_ordinal, run_id, verified_name, verified_address,
		   phones, emails, remarks_kind, remarks_summary, attempts, used_egress, at)
		 values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sr.Source, sr.Ordinal, sr.RunID, res.VerifiedName, res.VerifiedAddress,
		res.Phones[:], res.Emails[:], res.Remarks.Kind.String(), res.Remarks.Summary,
		res.Remarks.Attempts, res.UsedEgress, sr.At.UTC())
	if err != nil {
		return fmt.Errorf("pg: save result: %w", err)
	}
	return nil
}

func (r *Results) Latest(ctx context.Context, source string) (map[int]types.Result, error) {
	rows, err := r.pool.Query(ctx,
		`select distinct on (row_ordinal) row_ordinal, verified_name, verified_address,
		   phones, emails, remarks_kind, remarks_summary, attempts, used_egress
		 from harvest_results where source = $1
		 order by row_ordinal, id desc`, source)
	if err != nil {
		return nil, fmt.Errorf("pg: latest results: %w", err)
	}
	defer rows.Close()

	out := make(map[int]types.Result)
	for rows.Next() {
		var (
			ordinal        int
			res            types.Result
			phones, emails []string
			kind           string
		)
		if err := rows.Scan(&ordinal, &res.VerifiedName, &res.VerifiedAddress,
			&phones, &emails, &kind, &res.Remarks.Summary, &res.Remarks.Attempts, &res.UsedEgress); err != nil {
			return nil, fmt.Errorf("pg: scan result: %w", err)
		}
		if res.Remarks.Kind, err = types.ParseRemarksKind(kind); err != nil {
			return nil, err
		}
		copy(res.Phones[:], phones)
		copy(res.Emails[:], emails)
		res.Normalize()
		out[ordinal] = res
	}
	return out, rows.Err()
}
