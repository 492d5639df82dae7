package validator

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"contact_harvest/egresspool/model"
)

// connectProxy is a minimal HTTP CONNECT proxy for tests.
func connectProxy(t *testing.T, sawAuth *atomic.Bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			http.Error(w, "connect only", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Proxy-Authorization") != "" {
			sawAuth.Store(true)
		}
		upstream, err := net.Dial("tcp", r.Host)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			upstream.Close()
			http.Error(w, "no hijack", http.StatusInternalServerError)
			return
		}
		client, _, err := hj.Hijack()
		if err != nil {
			upstream.Close()
			return
		}
		client.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n"))
		go func() {
			io.Copy(upstream, client)
			upstream.Close()
		}()
		io.Copy(client, upstream)
		client.Close()
	}))
}

func endpointFor(t *testing.T, rawURL string) model.Endpoint {
	t.Helper()
	hostPort := strings.TrimPrefix(rawURL, "http://")
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return model.Endpoint{Scheme: "http", Host: host, Port: port}
}

func TestValidateHttpConnect(t *testing.T) {
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	var sawAuth atomic.Bool
	px := connectProxy(t, &sawAuth)
	defer px.Close()

	good := endpointFor(t, px.URL)
	good.Username, good.Password = "alice", "secret"

	// a closed port stands in for a dead endpoint
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dead := endpointFor(t, "http://"+ln.Addr().String())
	ln.Close()

	v := NewValidator(2*time.Second, 2, target.Listener.Addr().String())
	results := v.Validate(context.Background(), []model.Endpoint{good, dead})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].OK() {
		t.Errorf("expected live endpoint to pass, got %v", results[0].Err)
	}
	if results[1].OK() {
		t.Error("expected dead endpoint to fail")
	}
	if !sawAuth.Load() {
		t.Error("expected proxy credentials on CONNECT")
	}
}

func TestValidateSocks5Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ep := endpointFor(t, "http://"+ln.Addr().String())
	ep.Scheme = "socks5"
	ln.Close()

	v := NewValidator(time.Second, 1, "example.com:443")
	results := v.Validate(context.Background(), []model.Endpoint{ep})
	if results[0].OK() {
		t.Error("expected socks5 probe against closed port to fail")
	}
}

func TestValidateEmpty(t *testing.T) {
	if got := NewValidator(0, 0, "").Validate(context.Background(), nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}
