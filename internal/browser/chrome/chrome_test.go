package chrome

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/browser"
)

func TestDecodeRemote(t *testing.T) {
	v, err := decodeRemote(&runtime.RemoteObject{Type: runtime.TypeUndefined})
	if err != nil || v != nil {
		t.Errorf("undefined: got %v, %v", v, err)
	}
	v, err = decodeRemote(&runtime.RemoteObject{Type: runtime.TypeString, Value: []byte(`"3 records found"`)})
	if err != nil || v != "3 records found" {
		t.Errorf("string: got %v, %v", v, err)
	}
	v, err = decodeRemote(&runtime.RemoteObject{Type: runtime.TypeBoolean, Value: []byte(`true`)})
	if err != nil || v != true {
		t.Errorf("bool: got %v, %v", v, err)
	}
}

func TestQuery(t *testing.T) {
	sel, _ := query(browser.Locator{By: "text", Expr: "View Details"})
	if !strings.Contains(sel, `"View Details"`) {
		t.Errorf("unexpected text selector %q", sel)
	}
	sel, _ = query(browser.Locator{By: "css", Expr: "a.x"})
	if sel != "a.x" {
		t.Errorf("unexpected css selector %q", sel)
	}
}

func TestAllocatorOptionsRoutesThroughEgress(t *testing.T) {
	l := NewLauncher(Options{Headless: true})
	with := len(l.allocatorOptions(model.Endpoint{Scheme: "http", Host: "1.2.3.4", Port: 8080}))
	without := len(l.allocatorOptions(model.Endpoint{}))
	if with != without+1 {
		t.Errorf("expected proxy flag for endpoint, got %d vs %d options", with, without)
	}
}

func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("chrome not installed")
	return ""
}

func TestSessionAgainstLocalPage(t *testing.T) {
	path := findChrome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>John Smith, Age 45</title></head><body>
<div id="count">3 records found</div>
<a id="go" href="#done" onclick="document.getElementById('count').textContent='clicked'">View Details</a>
</body></html>`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b, err := NewLauncher(Options{ChromePath: path, Headless: true}).Open(ctx, model.Endpoint{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer b.Close()

	if err := b.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	got, err := b.RunScript(ctx, browser.TextScript(browser.Locator{By: "xpath", Expr: "//div[@id='count']"}))
	if err != nil || got != "3 records found" {
		t.Fatalf("RunScript = %v, %v", got, err)
	}
	if ok, err := b.IsVisible(ctx, browser.Locator{By: "css", Expr: "#go"}); err != nil || !ok {
		t.Fatalf("IsVisible = %v, %v", ok, err)
	}
	if err := b.Click(ctx, browser.Locator{By: "text", Expr: "View Details"}); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	text, err := b.RenderedText(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "clicked") {
		t.Errorf("expected clicked text, got %q", text)
	}
	if _, err := b.RunScript(ctx, "window.stop();"); err != nil {
		t.Errorf("undefined script result should not fail: %v", err)
	}
}
