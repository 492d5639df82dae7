// Package browser defines the capability the fetch controller drives a
// rendered page through. Adapters live in the chrome and static packages.
package browser

import (
	"context"
	"errors"
	"time"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/shared/types"
)

// ErrUnsupported is returned for capabilities an adapter lacks.
var ErrUnsupported = errors.New("browser capability not supported")

// Locator is re-exported so adapters and the controller share one type.
type Locator = types.Locator

// Browser 是一个已打开、经由某个出口路由的页面会话。所有方法都在同一会话上顺序调用。
type Browser interface {
	Navigate(ctx context.Context, url string) error
	RenderedText(ctx context.Context) (string, error)
	RunScript(ctx context.Context, script string) (any, error)
	Click(ctx context.Context, loc Locator) error
	IsVisible(ctx context.Context, loc Locator) (bool, error)
	Sleep(ctx context.Context, d time.Duration) error
	ResolveChallenge(ctx context.Context) (bool, error)
	Close() error
}

// Launcher opens one isolated session per attempt.
type Launcher interface {
	Open(ctx context.Context, ep model.Endpoint) (Browser, error)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
