package validator

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/shared/logger"
)

const defaultValidationTarget = "www.google.com:443" // Use a target that requires TLS

// Result is the outcome of probing one endpoint.
type Result struct {
	Endpoint model.Endpoint
	Latency  time.Duration
	Err      error
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Validator 在运行开始前并发探测候选出口的连通性。
type Validator struct {
	timeout     time.Duration
	concurrency int
	target      string
	log         zerolog.Logger
}

func NewValidator(timeout time.Duration, concurrency int, target string) *Validator {
	if concurrency <= 0 {
		concurrency = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if target == "" {
		target = defaultValidationTarget
	}
	return &Validator{
		timeout:     timeout,
		concurrency: concurrency,
		target:      target,
		log:         logger.WithComponent("EgressPool/Validator"),
	}
}

// Validate probes every endpoint and returns results in input order.
func (v *Validator) Validate(ctx context.Context, endpoints []model.Endpoint) []Result {
	if len(endpoints) == 0 {
		return nil
	}

	v.log.Info().Int("count", len(endpoints)).Int("concurrency", v.concurrency).Msg("Starting probe batch...")

	results := make([]Result, len(endpoints))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.concurrency)

	for i, ep := range endpoints {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, ep model.Endpoint) {
			defer wg.Done()
			defer func() { <-semaphore }()

			results[i] = v.validateSingle(ctx, ep)
		}(i, ep)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
			v.log.Warn().Str("egress", r.Endpoint.Address()).Err(r.Err).Msg("Endpoint failed probe, excluded from this run.")
		}
	}
	v.log.Info().Int("passed", len(results)-failed).Int("failed", failed).Msg("Probe batch finished.")
	return results
}

// validateSingle acts as a dispatcher based on the endpoint scheme.
func (v *Validator) validateSingle(ctx context.Context, ep model.Endpoint) Result {
	startTime := time.Now()
	var err error
	switch ep.Scheme {
	case "socks5":
		err = v.checkSocks5Connect(ctx, ep)
	default:
		err = v.checkHttpConnect(ctx, ep)
	}
	r := Result{Endpoint: ep, Err: err}
	if err == nil {
		r.Latency = time.Since(startTime)
	}
	return r
}

// checkHttpConnect validates an endpoint by issuing a HEAD request through an HTTP CONNECT tunnel.
func (v *Validator) checkHttpConnect(ctx context.Context, ep model.Endpoint) error {
	dialer := &net.Dialer{
		Timeout:   v.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyURL(ep.URL()),
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       v.timeout,
		TLSHandshakeTimeout:   v.timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   v.timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+v.target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}

// checkSocks5Connect validates an endpoint by attempting a SOCKS5 connection.
func (v *Validator) checkSocks5Connect(ctx context.Context, ep model.Endpoint) error {
	var auth *proxy.Auth
	if ep.Username != "" {
		auth = &proxy.Auth{User: ep.Username, Password: ep.Password}
	}
	dialer, err := proxy.SOCKS5("tcp", ep.Address(), auth, &net.Dialer{Timeout: v.timeout})
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	conn, err := dialer.(proxy.ContextDialer).DialContext(ctx, "tcp", v.target)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}
