// Package app composes the egress pool, browser sessions, fetch controller
// and stores into the sequential run loop, plus input and export handling.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/browser"
	"contact_harvest/internal/store"
	"contact_harvest/internal/shared/types"
)

// EgressPool is the subset of *egresspool.Pool the run loop drives.
type EgressPool interface {
	Lease() (model.Endpoint, error)
	Rotate() (model.Endpoint, error)
	MarkBlocked(ctx context.Context, ep model.Endpoint) error
	RecordUse(ep model.Endpoint)
	Available() int
}

// Fetcher runs one attempt for a row; *fetch.Controller implements it.
type Fetcher interface {
	Fetch(ctx context.Context, b browser.Browser, row types.InputRow, ep model.Endpoint) (types.Result, error)
}

// Reporter receives progress events. Report must not block.
type Reporter interface {
	Report(ev types.Event)
}

// Options 是运行循环的策略参数。
type Options struct {
	RetryBudget         int
	TransientRetryDelay time.Duration
}

// Summary describes a finished or aborted run.
type Summary struct {
	RunID     string
	Source    string
	StartRow  int
	Attempted int // rows that reached a terminal outcome
	Succeeded int
	Failed    int // rows given a failure placeholder
}

// Runner 顺序处理输入行，任何时刻只有一次抓取在进行。
type Runner struct {
	pool        EgressPool
	launcher    browser.Launcher
	fetcher     Fetcher
	checkpoints store.CheckpointStore
	results     store.ResultStore
	reporter    Reporter
	opts        Options
	runID       string
	now         func() time.Time
	log         zerolog.Logger
}

// RunnerDeps groups the collaborators of a Runner.
type RunnerDeps struct {
	Pool        EgressPool
	Launcher    browser.Launcher
	Fetcher     Fetcher
	Checkpoints store.CheckpointStore
	Results     store.ResultStore
	Reporter    Reporter         // optional
	Now         func() time.Time // optional
}

func NewRunner(deps RunnerDeps, opts Options, log zerolog.Logger) *Runner {
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = 5
	}
	r := &Runner{
		pool:        deps.Pool,
		launcher:    deps.Launcher,
		fetcher:     deps.Fetcher,
		checkpoints: deps.Checkpoints,
		results:     deps.Results,
		reporter:    deps.Reporter,
		opts:        opts,
		runID:       uuid.NewString(),
		now:         deps.Now,
		log:         log,
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.log = r.log.With().Str("run_id", r.runID).Logger()
	return r
}

// RunID identifies this run in checkpoints, results and events.
func (r *Runner) RunID() string { return r.runID }

// Run processes rows[start:]. It returns nil once every row has a terminal
// result, an error wrapping types.ErrNoEgressAvailable when the pool runs
// dry, the context's error on cancellation, or a store error. Results
// persisted before an error stay persisted.
func (r *Runner) Run(ctx context.Context, source string, rows []types.InputRow, start int) (Summary, error) {
	if start < 0 {
		start = 0
	}
	sum := Summary{RunID: r.runID, Source: source, StartRow: start}
	r.log.Info().Str("source", source).Int("rows", len(rows)).Int("start_row", start).
		Int("retry_budget", r.opts.RetryBudget).Msg("Run started.")

	var runErr error
	for i := start; i < len(rows); i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		row := rows[i]
		r.report(types.Event{Type: types.EventRowStarted, Source: source, Row: row.Ordinal, Name: row.Name, TotalRows: len(rows)})

		res, err := r.processRow(ctx, source, row)
		if err != nil {
			runErr = err
			break
		}
		sum.Attempted++
		outcome := "ok"
		if res.Remarks.Kind == types.RemarksFailedAfterRetries {
			sum.Failed++
			outcome = "failed"
		} else {
			sum.Succeeded++
		}
		r.report(types.Event{
			Type: types.EventRowFinished, Source: source, Row: row.Ordinal, Name: row.Name,
			TotalRows: len(rows), Egress: res.UsedEgress, Outcome: outcome, Remarks: res.Remarks.String(),
		})
	}

	ev := types.Event{Type: types.EventRunFinished, Source: source, TotalRows: len(rows), Outcome: "completed"}
	logEv := r.log.Info()
	if runErr != nil {
		ev.Outcome, ev.Error = "aborted", runErr.Error()
		logEv = r.log.Error().Err(runErr)
	}
	r.report(ev)
	logEv.Int("attempted", sum.Attempted).Int("succeeded", sum.Succeeded).Int("failed", sum.Failed).Msg("Run finished.")
	return sum, runErr
}

// processRow 在重试预算内处理一行，返回已持久化的终态结果。
// 返回错误表示整个运行需要中止。
func (r *Runner) processRow(ctx context.Context, source string, row types.InputRow) (types.Result, error) {
	log := r.log.With().Int("row", row.Ordinal).Str("name", row.Name).Str("locality", row.Locality).Logger()
	log.Info().Msg("Processing row.")

	var last model.Endpoint
	for attempt := 1; attempt <= r.opts.RetryBudget; attempt++ {
		ep, err := r.pool.Lease()
		if err != nil {
			return types.Result{}, fmt.Errorf("row %d: %w", row.Ordinal, err)
		}
		last = ep

		res, err := r.attempt(ctx, row, ep)
		if err == nil {
			res.UsedEgress = ep.Address()
			if err := r.finish(ctx, source, row, attempt, res); err != nil {
				return types.Result{}, err
			}
			r.pool.RecordUse(ep)
			r.report(types.Event{Type: types.EventAttemptFinished, Source: source, Row: row.Ordinal, Attempt: attempt, Egress: ep.Address(), Outcome: "ok"})
			log.Info().Int("attempt", attempt).Str("egress", ep.Address()).Str("remarks", res.Remarks.String()).Msg("Row finished.")
			return res, nil
		}
		if ctx.Err() != nil {
			return types.Result{}, ctx.Err()
		}

		outcome := "transient"
		if types.IsBlocked(err) {
			outcome = "blocked"
			log.Warn().Int("attempt", attempt).Str("egress", ep.Address()).Err(err).Msg("Egress blocked, rotating.")
			if err := r.pool.MarkBlocked(ctx, ep); err != nil {
				return types.Result{}, err
			}
		} else {
			log.Warn().Int("attempt", attempt).Str("egress", ep.Address()).Err(err).Msg("Attempt failed, retrying on same egress.")
		}
		r.report(types.Event{Type: types.EventAttemptFinished, Source: source, Row: row.Ordinal, Attempt: attempt, Egress: ep.Address(), Outcome: outcome, Error: err.Error()})

		if err := r.checkpoints.Append(ctx, r.checkpoint(source, row, attempt, false)); err != nil {
			return types.Result{}, fmt.Errorf("append checkpoint: %w", err)
		}
		if outcome == "blocked" && attempt < r.opts.RetryBudget {
			if _, err := r.pool.Rotate(); err != nil {
				return types.Result{}, fmt.Errorf("row %d: %w", row.Ordinal, err)
			}
		}
		if outcome == "transient" && attempt < r.opts.RetryBudget {
			if err := browser.Sleep(ctx, r.opts.TransientRetryDelay); err != nil {
				return types.Result{}, err
			}
		}
	}

	res := types.Result{Remarks: types.FailedAfterRetries(r.opts.RetryBudget), UsedEgress: last.Address()}
	log.Error().Err(types.ErrRetryBudgetExhausted).Int("attempts", r.opts.RetryBudget).Str("egress", res.UsedEgress).Msg("Row failed, storing placeholder.")
	if err := r.finish(ctx, source, row, r.opts.RetryBudget, res); err != nil {
		return types.Result{}, err
	}
	return res, nil
}

// attempt opens a session through ep, fetches once and closes the session.
func (r *Runner) attempt(ctx context.Context, row types.InputRow, ep model.Endpoint) (types.Result, error) {
	b, err := r.launcher.Open(ctx, ep)
	if err != nil {
		if ctx.Err() != nil {
			return types.Result{}, ctx.Err()
		}
		return types.Result{}, &types.TransientError{Err: fmt.Errorf("open browser: %w", err)}
	}
	defer func() {
		if err := b.Close(); err != nil {
			r.log.Debug().Err(err).Msg("Browser close failed.")
		}
	}()

	res, err := r.fetcher.Fetch(ctx, b, row, ep)
	if err != nil && ctx.Err() == nil && !types.IsBlocked(err) && !types.IsTransient(err) {
		err = &types.TransientError{Err: err}
	}
	return res, err
}

// finish 持久化终态结果并写入最终检查点，二者都落盘后才返回。
func (r *Runner) finish(ctx context.Context, source string, row types.InputRow, attempt int, res types.Result) error {
	res.Normalize()
	if err := r.results.Save(ctx, types.StoredResult{
		Source:  source,
		Ordinal: row.Ordinal,
		RunID:   r.runID,
		Result:  res,
		At:      r.now().UTC(),
	}); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if err := r.checkpoints.Append(ctx, r.checkpoint(source, row, attempt, true)); err != nil {
		return fmt.Errorf("append checkpoint: %w", err)
	}
	return nil
}

func (r *Runner) checkpoint(source string, row types.InputRow, attempt int, final bool) types.Checkpoint {
	return types.Checkpoint{
		Source:           source,
		LastAttemptedRow: row.Ordinal,
		Attempt:          attempt,
		Final:            final,
		RunID:            r.runID,
		At:               r.now().UTC(),
	}
}

func (r *Runner) report(ev types.Event) {
	if r.reporter == nil {
		return
	}
	ev.RunID = r.runID
	ev.Available = r.pool.Available()
	if ev.At.IsZero() {
		ev.At = r.now().UTC()
	}
	r.reporter.Report(ev)
}
