// Package browser builds the login URL handed to the browser and opens it.
package browser

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// LoginPath is appended to the auth base URL.
const LoginPath = "/login"

// PortParam is the query parameter telling the login page where to connect.
const PortParam = "ws_port"

// ValidateBaseURL checks that raw is an absolute https URL, or plain http on
// a loopback host.
func ValidateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("auth base URL is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid auth base URL: %w", err)
	}

	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return fmt.Errorf("auth base URL missing host")
	}

	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme != "https" && !(scheme == "http" && IsLoopbackHost(host)) {
		return fmt.Errorf("refusing auth base URL scheme %q (host=%q)", scheme, host)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("auth base URL must not carry a query or fragment")
	}
	return nil
}

// LoginURL composes {base}/login?ws_port={port}.
func LoginURL(base string, port int) (string, error) {
	if err := ValidateBaseURL(base); err != nil {
		return "", err
	}
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid callback port %d", port)
	}

	u, _ := url.Parse(base)
	u.Path = strings.TrimRight(u.Path, "/") + LoginPath
	u.RawPath = ""
	q := url.Values{}
	q.Set(PortParam, strconv.Itoa(port))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CallbackPort extracts the ws_port parameter from a login URL.
func CallbackPort(loginURL string) (int, error) {
	u, err := url.Parse(loginURL)
	if err != nil {
		return 0, fmt.Errorf("invalid login URL: %w", err)
	}
	raw := u.Query().Get(PortParam)
	if raw == "" {
		return 0, fmt.Errorf("login URL has no %s parameter", PortParam)
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid %s %q", PortParam, raw)
	}
	return port, nil
}

// Origin normalizes raw to scheme://host[:port], lower-cased. It returns ""
// when raw is not an absolute URL.
func Origin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// IsLoopbackHost reports whether host is localhost or a loopback IP.
func IsLoopbackHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(host, "["), "]"))
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
