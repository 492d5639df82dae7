package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/browser"
)

func siteServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><div>3 records found for %s</div>
<div class="card"><a class="detail" href="/find/person/abc">View Details</a></div></body></html>`, r.URL.Query().Get("name"))
	})
	mux.HandleFunc("/find/person/abc", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>John Smith, Age 45</title></head><body><div>Current Address</div></body></html>`)
	})
	mux.HandleFunc("/denied", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><body><h1>Access Denied</h1></body></html>`)
	})
	return httptest.NewServer(mux)
}

func open(t *testing.T, ep model.Endpoint) browser.Browser {
	t.Helper()
	b, err := NewLauncher(Options{Timeout: 5 * time.Second}).Open(context.Background(), ep)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNavigateClickAndRead(t *testing.T) {
	srv := siteServer()
	defer srv.Close()
	ctx := context.Background()
	b := open(t, model.Endpoint{})

	if err := b.Navigate(ctx, srv.URL+"/results?name=John%20Smith"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	text, err := b.RenderedText(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "3 records found for John Smith") {
		t.Errorf("unexpected results text %q", text)
	}

	visible, err := b.IsVisible(ctx, browser.Locator{By: "css", Expr: "a.detail"})
	if err != nil || !visible {
		t.Fatalf("expected detail link visible, got %v, %v", visible, err)
	}
	if err := b.Click(ctx, browser.Locator{By: "text", Expr: "View Details"}); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	text, _ = b.RenderedText(ctx)
	if !strings.HasPrefix(text, "John Smith, Age 45") {
		t.Errorf("expected detail page text, got %q", text)
	}
}

func TestErrorStatusBodyIsReadable(t *testing.T) {
	srv := siteServer()
	defer srv.Close()
	ctx := context.Background()
	b := open(t, model.Endpoint{})

	if err := b.Navigate(ctx, srv.URL+"/denied"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	text, _ := b.RenderedText(ctx)
	if text != "Access Denied" {
		t.Errorf("expected block page text, got %q", text)
	}
}

func TestUnsupportedCapabilities(t *testing.T) {
	srv := siteServer()
	defer srv.Close()
	ctx := context.Background()
	b := open(t, model.Endpoint{})
	if err := b.Navigate(ctx, srv.URL+"/results"); err != nil {
		t.Fatal(err)
	}

	if _, err := b.RunScript(ctx, "window.stop()"); !errors.Is(err, browser.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported from RunScript, got %v", err)
	}
	if err := b.Click(ctx, browser.Locator{By: "xpath", Expr: "//a"}); !errors.Is(err, browser.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for xpath, got %v", err)
	}
	if err := b.Click(ctx, browser.Locator{By: "css", Expr: "a.missing"}); err == nil {
		t.Error("expected error for missing element")
	}
	if ok, err := b.ResolveChallenge(ctx); ok || err != nil {
		t.Errorf("expected no challenge handling, got %v, %v", ok, err)
	}
}

func TestRequestsGoThroughEgress(t *testing.T) {
	proxied := make(chan string, 1)
	px := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case proxied <- r.URL.String():
		default:
		}
		fmt.Fprint(w, "<html><body><p>via egress</p></body></html>")
	}))
	defer px.Close()

	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(px.URL, "http://"))
	port, _ := strconv.Atoi(portStr)
	b := open(t, model.Endpoint{Scheme: "http", Host: host, Port: port})

	if err := b.Navigate(context.Background(), "http://target.invalid/results"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	text, _ := b.RenderedText(context.Background())
	if text != "via egress" {
		t.Errorf("expected proxied body, got %q", text)
	}
	if got := <-proxied; got != "http://target.invalid/results" {
		t.Errorf("proxy saw %q", got)
	}
}
