// Package static is a lightweight browser backend: plain HTTP requests
// through the egress endpoint, with no script execution.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/browser"
	"contact_harvest/internal/browser/pagetext"
	"contact_harvest/internal/shared/logger"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Options 配置 HTTP 后端。
type Options struct {
	UserAgent string
	Timeout   time.Duration
}

// Launcher opens colly-backed sessions.
type Launcher struct {
	opts Options
	log  zerolog.Logger
}

func NewLauncher(opts Options) *Launcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Launcher{opts: opts, log: logger.WithComponent("Browser/Static")}
}

// Open 创建一个新的 collector，流量经由 ep 路由；ep 为零值时直连。
func (l *Launcher) Open(ctx context.Context, ep model.Endpoint) (browser.Browser, error) {
	c := colly.NewCollector(
		colly.UserAgent(l.opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(l.opts.Timeout)
	// block pages come back as 403/503 and still need to be read
	c.ParseHTTPErrorResponse = true

	if ep.Host != "" {
		if err := c.SetProxy(ep.URL().String()); err != nil {
			return nil, fmt.Errorf("set proxy %s: %w", ep.Address(), err)
		}
	}

	s := &session{collector: c, log: l.log.With().Str("egress", ep.Address()).Logger()}
	c.OnResponse(func(r *colly.Response) {
		s.last = r
		s.doc = nil
	})
	return s, nil
}

type session struct {
	collector *colly.Collector
	last      *colly.Response
	doc       *goquery.Document
	log       zerolog.Logger
}

func (s *session) Navigate(_ context.Context, url string) error {
	s.log.Debug().Str("url", url).Msg("GET")
	if err := s.collector.Visit(url); err != nil {
		return err
	}
	s.collector.Wait()
	if s.last == nil {
		return errors.New("no response received")
	}
	return nil
}

func (s *session) document() (*goquery.Document, error) {
	if s.last == nil {
		return nil, errors.New("no page loaded")
	}
	if s.doc == nil {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.last.Body))
		if err != nil {
			return nil, err
		}
		s.doc = doc
	}
	return s.doc, nil
}

func (s *session) RenderedText(context.Context) (string, error) {
	doc, err := s.document()
	if err != nil {
		return "", err
	}
	return pagetext.FromDocument(doc), nil
}

func (s *session) RunScript(context.Context, string) (any, error) {
	return nil, browser.ErrUnsupported
}

// find 解析 css 与 text 定位器；xpath 不支持。
func (s *session) find(loc browser.Locator) (*goquery.Selection, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	switch loc.By {
	case "css":
		return doc.Find(loc.Expr).First(), nil
	case "text":
		return doc.Find("a, button").FilterFunction(func(_ int, sel *goquery.Selection) bool {
			return strings.Contains(sel.Text(), loc.Expr)
		}).First(), nil
	default:
		return nil, browser.ErrUnsupported
	}
}

// Click 跟随匹配元素的 href。
func (s *session) Click(ctx context.Context, loc browser.Locator) error {
	sel, err := s.find(loc)
	if err != nil {
		return err
	}
	if sel.Length() == 0 {
		return fmt.Errorf("no element matches %s %q", loc.By, loc.Expr)
	}
	href, ok := sel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return fmt.Errorf("element %s %q has no link", loc.By, loc.Expr)
	}
	target := s.last.Request.AbsoluteURL(href)
	if target == "" {
		return fmt.Errorf("cannot resolve link %q", href)
	}
	return s.Navigate(ctx, target)
}

func (s *session) IsVisible(_ context.Context, loc browser.Locator) (bool, error) {
	sel, err := s.find(loc)
	if err != nil {
		return false, err
	}
	return sel.Length() > 0, nil
}

func (s *session) Sleep(ctx context.Context, d time.Duration) error {
	return browser.Sleep(ctx, d)
}

func (s *session) ResolveChallenge(context.Context) (bool, error) {
	return false, nil
}

func (s *session) Close() error {
	s.last = nil
	s.doc = nil
	return nil
}
