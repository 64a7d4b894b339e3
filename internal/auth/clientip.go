package auth

import (
	"net"
	"net/http"
	"strings"
)

// proxyHeaders are consulted in order when resolving the client address.
var proxyHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Original-Forwarded-For",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
	"HTTP_X_FORWARDED_FOR",
	"HTTP_X_FORWARDED",
	"HTTP_X_CLUSTER_CLIENT_IP",
	"HTTP_CLIENT_IP",
	"HTTP_FORWARDED_FOR",
	"HTTP_FORWARDED",
	"HTTP_VIA",
	"REMOTE_ADDR",
}

// ClientIP resolves the caller address. The first proxy header holding a
// valid address decides: its first public address wins, otherwise its first
// private one. Without usable headers the connection address is used, and
// "unknown" when that fails too.
func ClientIP(r *http.Request) string {
	for _, h := range proxyHeaders {
		v := strings.TrimSpace(r.Header.Get(h))
		if v == "" || strings.EqualFold(v, "unknown") {
			continue
		}
		if ip := pickAddress(strings.Split(v, ",")); ip != "" {
			return ip
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host = host[:i]
	}
	if validIP(host) {
		return host
	}
	return "unknown"
}

func pickAddress(candidates []string) string {
	first := ""
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if !validIP(c) {
			continue
		}
		if !privateIP(c) {
			return c
		}
		if first == "" {
			first = c
		}
	}
	return first
}

func validIP(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && !ip.IsUnspecified()
}

func privateIP(s string) bool {
	ip := net.ParseIP(s)
	return ip == nil || ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}
