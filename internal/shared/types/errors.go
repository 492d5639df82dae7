package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEgressAvailable is run-fatal: every candidate endpoint is blocked or unusable.
	ErrNoEgressAvailable = errors.New("no egress endpoint available")
	// ErrRetryBudgetExhausted marks a row that received a placeholder result.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	// ErrFieldMiss is logged when an extraction rule finds nothing.
	ErrFieldMiss = errors.New("extraction field miss")
)

// BlockedError 表示目标站点拒绝了当前出口，需要拉黑并轮换。
type BlockedError struct {
	Signature string
	Err       error
}

func (e *BlockedError) Error() string {
	switch {
	case e.Signature != "" && e.Err != nil:
		return fmt.Sprintf("blocked (%s): %v", e.Signature, e.Err)
	case e.Signature != "":
		return fmt.Sprintf("blocked (%s)", e.Signature)
	case e.Err != nil:
		return fmt.Sprintf("blocked: %v", e.Err)
	default:
		return "blocked"
	}
}

func (e *BlockedError) Unwrap() error { return e.Err }

// TransientError 表示可以在同一出口上重试的失败。
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsBlocked reports whether err carries a *BlockedError.
func IsBlocked(err error) bool {
	var b *BlockedError
	return errors.As(err, &b)
}

// IsTransient reports whether err carries a *TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
