// Package chrome drives a real Chrome instance over the DevTools protocol.
package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/browser"
	"contact_harvest/internal/browser/pagetext"
	"contact_harvest/internal/shared/logger"
	"contact_harvest/internal/shared/types"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Options 配置 Chrome 后端。
type Options struct {
	ChromePath     string
	Headless       bool
	UserAgent      string
	PageTimeout    time.Duration
	LocatorTimeout time.Duration
	HoldDuration   time.Duration
	Challenge      types.ChallengeTargets
}

// Launcher starts one Chrome process per session.
type Launcher struct {
	opts Options
	log  zerolog.Logger
}

func NewLauncher(opts Options) *Launcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 60 * time.Second
	}
	if opts.LocatorTimeout <= 0 {
		opts.LocatorTimeout = 5 * time.Second
	}
	if opts.HoldDuration <= 0 {
		opts.HoldDuration = 12 * time.Second
	}
	return &Launcher{opts: opts, log: logger.WithComponent("Browser/Chrome")}
}

func (l *Launcher) allocatorOptions(ep model.Endpoint) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-service-autorun", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.Flag("incognito", true),
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.WindowSize(1920, 1080),
	}
	if l.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if l.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ChromePath))
	}
	if ep.Host != "" {
		opts = append(opts, chromedp.ProxyServer(ep.ServerURL()))
	}
	return opts
}

// Open 启动一个隔离的 Chrome 会话，流量经由 ep 路由。代理认证通过 Fetch.authRequired 事件应答。
func (l *Launcher) Open(ctx context.Context, ep model.Endpoint) (browser.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(ep)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &session{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		opts: l.opts,
		log:  l.log.With().Str("egress", ep.Address()).Logger(),
	}

	// the first Run allocates the browser and must not carry a timeout,
	// otherwise the process dies with the timeout context
	if err := chromedp.Run(tabCtx); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if ep.Username != "" {
		if ep.Scheme == "socks5" {
			s.log.Warn().Msg("Chrome cannot authenticate to SOCKS5 proxies; credentials ignored.")
		} else {
			s.listenForAuth(ep.Username, ep.Password)
			actions = append(actions, fetch.Enable().WithHandleAuthRequests(true))
		}
	}

	if err := s.run(ctx, l.opts.PageTimeout, actions...); err != nil {
		s.cancel()
		return nil, fmt.Errorf("prepare chrome session: %w", err)
	}
	return s, nil
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	log    zerolog.Logger
}

func (s *session) listenForAuth(user, password string) {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func(id fetch.RequestID) {
				c := chromedp.FromContext(s.ctx)
				execCtx := cdp.WithExecutor(s.ctx, c.Target)
				resp := &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: user,
					Password: password,
				}
				if err := fetch.ContinueWithAuth(id, resp).Do(execCtx); err != nil {
					s.log.Debug().Err(err).Msg("continue with auth failed")
				}
			}(e.RequestID)
		case *fetch.EventRequestPaused:
			go func(id fetch.RequestID) {
				c := chromedp.FromContext(s.ctx)
				execCtx := cdp.WithExecutor(s.ctx, c.Target)
				if err := fetch.ContinueRequest(id).Do(execCtx); err != nil {
					s.log.Debug().Err(err).Msg("continue request failed")
				}
			}(e.RequestID)
		}
	})
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *session) Navigate(ctx context.Context, url string) error {
	s.log.Debug().Str("url", url).Msg("navigate")
	return s.run(ctx, s.opts.PageTimeout, chromedp.Navigate(url))
}

func (s *session) RenderedText(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.opts.PageTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return pagetext.FromHTML(html)
}

func (s *session) RunScript(ctx context.Context, script string) (any, error) {
	var obj *runtime.RemoteObject
	if err := s.run(ctx, s.opts.PageTimeout, chromedp.Evaluate(script, &obj)); err != nil {
		return nil, err
	}
	return decodeRemote(obj)
}

func decodeRemote(obj *runtime.RemoteObject) (any, error) {
	if obj == nil || obj.Type == runtime.TypeUndefined || len(obj.Value) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(obj.Value), &out); err != nil {
		return nil, fmt.Errorf("decode script result: %w", err)
	}
	return out, nil
}

func (s *session) Click(ctx context.Context, loc browser.Locator) error {
	if loc.Script {
		v, err := s.RunScript(ctx, browser.ClickScript(loc))
		if err != nil {
			return err
		}
		if ok, _ := v.(bool); !ok {
			return fmt.Errorf("no element matches %s %q", loc.By, loc.Expr)
		}
		return nil
	}
	sel, opt := query(loc)
	return s.run(ctx, s.opts.LocatorTimeout, chromedp.Click(sel, opt))
}

func (s *session) IsVisible(ctx context.Context, loc browser.Locator) (bool, error) {
	v, err := s.RunScript(ctx, browser.VisibleScript(loc))
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

func (s *session) Sleep(ctx context.Context, d time.Duration) error {
	return browser.Sleep(ctx, d)
}

// ResolveChallenge 先点击可见的挑战 iframe 中心，再尝试长按目标；都没有时按配置坐标长按。
func (s *session) ResolveChallenge(ctx context.Context) (bool, error) {
	for _, sel := range s.opts.Challenge.Frames {
		x, y, ok := s.center(ctx, sel)
		if !ok {
			continue
		}
		s.log.Info().Str("target", sel).Msg("Clicking challenge frame.")
		if err := s.run(ctx, s.opts.LocatorTimeout, chromedp.MouseClickXY(x, y)); err != nil {
			return false, err
		}
		return true, nil
	}

	for _, sel := range s.opts.Challenge.HoldTargets {
		x, y, ok := s.center(ctx, sel)
		if !ok {
			continue
		}
		s.log.Info().Str("target", sel).Msg("Holding challenge target.")
		return true, s.hold(ctx, x, y)
	}

	if s.opts.Challenge.HoldX > 0 && s.opts.Challenge.HoldY > 0 {
		s.log.Info().Float64("x", s.opts.Challenge.HoldX).Float64("y", s.opts.Challenge.HoldY).Msg("Holding at configured position.")
		return true, s.hold(ctx, s.opts.Challenge.HoldX, s.opts.Challenge.HoldY)
	}
	return false, nil
}

func (s *session) center(ctx context.Context, css string) (float64, float64, bool) {
	v, err := s.RunScript(ctx, scriptCenter(css))
	if err != nil {
		return 0, 0, false
	}
	pt, ok := v.([]any)
	if !ok || len(pt) != 2 {
		return 0, 0, false
	}
	x, okX := pt[0].(float64)
	y, okY := pt[1].(float64)
	return x, y, okX && okY
}

func (s *session) hold(ctx context.Context, x, y float64) error {
	press := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	})
	release := chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	})
	return s.run(ctx, s.opts.HoldDuration+s.opts.LocatorTimeout, press, chromedp.Sleep(s.opts.HoldDuration), release)
}

func (s *session) Close() error {
	s.cancel()
	return nil
}
