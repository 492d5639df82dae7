package model

import "testing"

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		line     string
		scheme   string
		addr     string
		user     string
		password string
	}{
		{"1.2.3.4:8080", "http", "1.2.3.4:8080", "", ""},
		{"1.2.3.4:8080:alice:secret", "http", "1.2.3.4:8080", "alice", "secret"},
		{"socks5://bob:pw@5.6.7.8:1080", "socks5", "5.6.7.8:1080", "bob", "pw"},
		{"  http://proxy.example:3128  ", "http", "proxy.example:3128", "", ""},
	}
	for _, tt := range tests {
		ep, err := ParseEndpoint(tt.line)
		if err != nil {
			t.Fatalf("ParseEndpoint(%q) failed: %v", tt.line, err)
		}
		if ep.Scheme != tt.scheme || ep.Address() != tt.addr || ep.Username != tt.user || ep.Password != tt.password {
			t.Errorf("ParseEndpoint(%q) = %+v", tt.line, ep)
		}
	}
}

func TestParseEndpointRejects(t *testing.T) {
	for _, line := range []string{"", "host", "host:notaport", "a:1:b", "ftp://x:21", ":8080"} {
		if _, err := ParseEndpoint(line); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestEndpointURLCarriesCredentials(t *testing.T) {
	ep := Endpoint{Scheme: "http", Host: "1.2.3.4", Port: 80, Username: "u", Password: "p"}
	if got := ep.URL().String(); got != "http://u:p@1.2.3.4:80" {
		t.Errorf("unexpected url %q", got)
	}
	if got := ep.ServerURL(); got != "http://1.2.3.4:80" {
		t.Errorf("unexpected server url %q", got)
	}
}
