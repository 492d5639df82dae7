package model

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Endpoint 定义了一个出口代理的完整信息，是出口池模块的核心数据结构。
// 池之外只会拿到它的值拷贝。
type Endpoint struct {
	// 核心信息
	Scheme   string `json:"scheme"` // "http" 或 "socks5"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`

	// 生命周期
	UsageCount int       `json:"usage_count"` // 当前租期内成功完成的行数
	Blocked    bool      `json:"blocked"`
	BlockedAt  time.Time `json:"blocked_at,omitempty"`
}

// Address 返回 "host:port"，作为黑名单与导出中的唯一标识。
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ServerURL returns the proxy URL without credentials, e.g. http://1.2.3.4:8080.
func (e Endpoint) ServerURL() string {
	return e.Scheme + "://" + e.Address()
}

// URL returns the proxy URL including credentials when present.
func (e Endpoint) URL() *url.URL {
	u := &url.URL{Scheme: e.Scheme, Host: e.Address()}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

func (e Endpoint) String() string {
	return e.ServerURL()
}

// ParseEndpoint parses one candidate line. Accepted forms are
// host:port, host:port:user:pass and scheme://[user:pass@]host:port.
func ParseEndpoint(line string) (Endpoint, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}

	if strings.Contains(line, "://") {
		u, err := url.Parse(line)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid endpoint url %q: %w", line, err)
		}
		ep := Endpoint{Scheme: strings.ToLower(u.Scheme), Host: u.Hostname()}
		switch ep.Scheme {
		case "http", "https", "socks5":
		default:
			return Endpoint{}, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
		}
		if ep.Port, err = parsePort(u.Port()); err != nil {
			return Endpoint{}, err
		}
		if u.User != nil {
			ep.Username = u.User.Username()
			ep.Password, _ = u.User.Password()
		}
		if ep.Host == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q has no host", line)
		}
		return ep, nil
	}

	parts := strings.Split(line, ":")
	if len(parts) != 2 && len(parts) != 4 {
		return Endpoint{}, fmt.Errorf("invalid endpoint format %q", line)
	}
	port, err := parsePort(parts[1])
	if err != nil {
		return Endpoint{}, err
	}
	ep := Endpoint{Scheme: "http", Host: parts[0], Port: port}
	if ep.Host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q has no host", line)
	}
	if len(parts) == 4 {
		ep.Username = parts[2]
		ep.Password = parts[3]
	}
	return ep, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
