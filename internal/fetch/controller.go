// Package fetch runs one row attempt against the data source: navigate,
// clear challenges, classify blocks, read the summary, expand details and
// extract the record.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/browser"
	"contact_harvest/internal/extract"
	"contact_harvest/internal/shared/types"
)

// State names the stages of an attempt; it is only used for logging and
// error context.
type State string

const (
	StateNavigating      State = "navigating"
	StateChallengeCheck  State = "challenge_check"
	StateBlockCheck      State = "block_check"
	StateSummaryParsed   State = "summary_parsed"
	StateDetailExpansion State = "detail_expansion"
	StateExtractionDone  State = "extraction_done"
)

// Options 是单次抓取尝试的时序与阈值。
type Options struct {
	SettleDelay        time.Duration
	ChallengePasses    int
	ChallengeSettle    time.Duration
	DetailSettle       time.Duration
	DetailClickRounds  int
	SummaryThreshold   int
	NavigationInterval time.Duration
}

// OptionsFromConfig maps the [fetch] section onto Options.
func OptionsFromConfig(c types.FetchConf) Options {
	return Options{
		SettleDelay:        c.SettleDelay,
		ChallengePasses:    c.ChallengePasses,
		ChallengeSettle:    c.ChallengeSettle,
		DetailSettle:       c.DetailSettle,
		DetailClickRounds:  c.DetailClickRounds,
		SummaryThreshold:   c.SummaryThreshold,
		NavigationInterval: c.NavigationInterval,
	}
}

// Controller 驱动一次行抓取尝试的状态机。不持有任何出口状态，拉黑由调用方完成。
type Controller struct {
	profile   *types.SiteProfile
	opts      Options
	extractor *extract.Extractor
	limiter   *rate.Limiter
	log       zerolog.Logger
}

func NewController(profile *types.SiteProfile, opts Options, extractor *extract.Extractor, log zerolog.Logger) *Controller {
	if opts.DetailClickRounds <= 0 {
		opts.DetailClickRounds = 1
	}
	if opts.SummaryThreshold <= 0 {
		opts.SummaryThreshold = 6
	}
	c := &Controller{profile: profile, opts: opts, extractor: extractor, log: log}
	if opts.NavigationInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.NavigationInterval), 1)
	}
	return c
}

// SearchURL builds the search URL for a name and locality. Values are
// percent-encoded with spaces as %20.
func SearchURL(profile *types.SiteProfile, name, locality string) string {
	return profile.SearchURL + "?" +
		profile.NameParam + "=" + encode(name) + "&" +
		profile.LocalityParam + "=" + encode(locality)
}

func encode(v string) string {
	return strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(v)), "+", "%20")
}

// Fetch runs one attempt for row through b. A nil error means the result is
// terminal. Errors are *types.BlockedError, *types.TransientError or the
// context's error.
func (c *Controller) Fetch(ctx context.Context, b browser.Browser, row types.InputRow, ep model.Endpoint) (types.Result, error) {
	log := c.log.With().Int("row", row.Ordinal).Str("egress", ep.Address()).Logger()
	result := types.Result{UsedEgress: ep.Address()}

	// Navigating
	target := SearchURL(c.profile, row.Name, row.Locality)
	log.Debug().Str("state", string(StateNavigating)).Str("url", target).Msg("Fetch state")
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return result, c.classify(ctx, StateNavigating, err)
		}
	}
	if err := b.Navigate(ctx, target); err != nil {
		return result, c.classify(ctx, StateNavigating, err)
	}
	if err := b.Sleep(ctx, c.opts.SettleDelay); err != nil {
		return result, err
	}

	// ChallengeCheck
	log.Debug().Str("state", string(StateChallengeCheck)).Msg("Fetch state")
	text, err := c.clearChallenges(ctx, b, log)
	if err != nil {
		return result, c.classify(ctx, StateChallengeCheck, err)
	}
	if _, err := b.RunScript(ctx, "window.stop();"); err != nil && ctx.Err() != nil {
		return result, ctx.Err()
	}
	if c.dismissConsent(ctx, b, log) {
		if text, err = b.RenderedText(ctx); err != nil {
			return result, c.classify(ctx, StateChallengeCheck, err)
		}
	}

	// BlockCheck
	log.Debug().Str("state", string(StateBlockCheck)).Msg("Fetch state")
	if sig := matchSignature(text, c.profile.BlockSignatures); sig != "" {
		log.Warn().Str("signature", sig).Msg("Block page detected.")
		return result, &types.BlockedError{Signature: sig}
	}

	// SummaryParsed
	summary := c.readSummary(ctx, b, text)
	log.Info().Str("state", string(StateSummaryParsed)).Str("summary", summary.Text).Int("count", summary.Count).Msg("Fetch state")
	switch {
	case !summary.Numeric || summary.Count <= 0:
		result.Remarks = types.NoRecordFound()
		return result, nil
	case summary.Count > c.opts.SummaryThreshold:
		result.Remarks = types.ResultSummary(summary.Text)
		return result, nil
	}

	// DetailExpansion
	log.Debug().Str("state", string(StateDetailExpansion)).Msg("Fetch state")
	if err := c.expandDetails(ctx, b, log); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, &types.TransientError{Err: fmt.Errorf("%s: %w", StateDetailExpansion, err)}
	}
	if err := b.Sleep(ctx, c.opts.DetailSettle); err != nil {
		return result, err
	}
	if text, err = c.clearChallenges(ctx, b, log); err != nil {
		return result, c.classify(ctx, StateDetailExpansion, err)
	}
	if c.dismissConsent(ctx, b, log) {
		if text, err = b.RenderedText(ctx); err != nil {
			return result, c.classify(ctx, StateDetailExpansion, err)
		}
	}
	if sig := matchSignature(text, c.profile.DetailBlockSignatures); sig != "" {
		log.Warn().Str("signature", sig).Msg("Detail page denied.")
		return result, &types.BlockedError{Signature: sig}
	}

	// ExtractionDone
	ext := c.extractor.Extract(text)
	if ext.Missed(extract.FieldName) {
		if v := c.locatorText(ctx, b, c.profile.NameLocators); v != "" {
			ext.Name = v
		}
	}
	if ext.Missed(extract.FieldAddress) {
		if v := c.locatorText(ctx, b, c.profile.AddressLocators); v != "" {
			ext.Address = strings.TrimSpace(strings.TrimPrefix(v, c.profile.AddressStripPrefix))
		}
	}
	ext.Apply(&result)
	result.Remarks = types.RecordFound()
	log.Info().Str("state", string(StateExtractionDone)).
		Str("name", result.VerifiedName).
		Int("phones", countFilled(result.Phones[:])).
		Int("emails", countFilled(result.Emails[:])).
		Msg("Fetch state")
	return result, nil
}

// classify 把浏览器错误归类：含传输标记的视为封锁，其余视为瞬时错误。
func (c *Controller) classify(ctx context.Context, state State, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range c.profile.TransportErrorMarkers {
		if marker != "" && strings.Contains(msg, strings.ToLower(marker)) {
			return &types.BlockedError{Err: fmt.Errorf("%s: %w", state, err)}
		}
	}
	return &types.TransientError{Err: fmt.Errorf("%s: %w", state, err)}
}

// clearChallenges 读取页面文本，命中挑战特征时尝试解决，最多 ChallengePasses 轮。
// 特征持续存在不算失败。
func (c *Controller) clearChallenges(ctx context.Context, b browser.Browser, log zerolog.Logger) (string, error) {
	text, err := b.RenderedText(ctx)
	if err != nil {
		return "", err
	}
	for pass := 1; pass <= c.opts.ChallengePasses; pass++ {
		sig := matchSignature(text, c.profile.ChallengeSignatures)
		if sig == "" {
			break
		}
		log.Info().Str("signature", sig).Int("pass", pass).Msg("Challenge detected, resolving.")
		acted, err := b.ResolveChallenge(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Warn().Err(err).Msg("Challenge resolution failed.")
		}
		if err := b.Sleep(ctx, c.opts.ChallengeSettle); err != nil {
			return "", err
		}
		if text, err = b.RenderedText(ctx); err != nil {
			return "", err
		}
		if !acted {
			break
		}
	}
	return text, nil
}

func (c *Controller) dismissConsent(ctx context.Context, b browser.Browser, log zerolog.Logger) bool {
	rule := c.profile.Consent
	if rule == nil {
		return false
	}
	visible, err := b.IsVisible(ctx, rule.Dialog)
	if err != nil || !visible {
		return false
	}
	if err := b.Click(ctx, rule.Button); err != nil {
		alt := rule.Button
		alt.Script = !alt.Script
		if err := b.Click(ctx, alt); err != nil {
			log.Warn().Err(err).Msg("Consent dialog could not be dismissed.")
			return false
		}
	}
	log.Debug().Msg("Consent dialog dismissed.")
	_ = b.Sleep(ctx, c.opts.ChallengeSettle)
	return true
}

func (c *Controller) removePopups(ctx context.Context, b browser.Browser) {
	for _, script := range c.profile.PopupScripts {
		if _, err := b.RunScript(ctx, script); errors.Is(err, browser.ErrUnsupported) {
			return
		}
	}
}

// readSummary 依次尝试摘要定位器，失败时回退到页面文本中的摘要行。
func (c *Controller) readSummary(ctx context.Context, b browser.Browser, text string) extract.Summary {
	if v := c.locatorText(ctx, b, c.profile.SummaryLocators); v != "" {
		return extract.ParseSummary(v)
	}
	if line, ok := extract.SummaryFromText(text); ok {
		return extract.ParseSummary(line)
	}
	return extract.Summary{}
}

// locatorText returns the text of the first locator that yields any.
func (c *Controller) locatorText(ctx context.Context, b browser.Browser, locs []types.Locator) string {
	for _, loc := range locs {
		v, err := b.RunScript(ctx, browser.TextScript(loc))
		if errors.Is(err, browser.ErrUnsupported) {
			return ""
		}
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func (c *Controller) expandDetails(ctx context.Context, b browser.Browser, log zerolog.Logger) error {
	var lastErr error
	for round := 1; round <= c.opts.DetailClickRounds; round++ {
		c.removePopups(ctx, b)
		c.dismissConsent(ctx, b, log)
		for i, loc := range c.profile.DetailLocators {
			err := b.Click(ctx, loc)
			if err == nil {
				log.Debug().Int("round", round).Int("locator", i).Str("by", loc.By).Msg("Detail link clicked.")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
		}
		if round < c.opts.DetailClickRounds {
			if err := b.Sleep(ctx, c.opts.ChallengeSettle); err != nil {
				return err
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no detail locators configured")
	}
	return fmt.Errorf("no detail locator succeeded after %d rounds: %w", c.opts.DetailClickRounds, lastErr)
}

func matchSignature(text string, signatures []string) string {
	for _, sig := range signatures {
		if sig != "" && strings.Contains(text, sig) {
			return sig
		}
	}
	return ""
}

func countFilled(values []string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}
