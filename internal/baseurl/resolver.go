// Package baseurl derives the externally visible base URL of the service.
package baseurl

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// Fallback is returned whenever no trustworthy base URL can be derived.
const Fallback = "http://localhost:3001"

const fallbackHost = "localhost:3001"

// allowedHostnames is the hostname allow-list applied to Host / X-Forwarded-Host
// values. Hosts outside it are never echoed back into generated URLs.
var allowedHostnames = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^localhost$`),
	regexp.MustCompile(`^127\.0\.0\.1$`),
	regexp.MustCompile(`^192\.168\.\d{1,3}\.\d{1,3}$`),
	regexp.MustCompile(`^10\.\d{1,3}\.\d{1,3}\.\d{1,3}$`),
	regexp.MustCompile(`(?i)^[\w-]+\.misskey\.site$`),
	regexp.MustCompile(`(?i)^api\.misskey\.site$`),
}

var portPattern = regexp.MustCompile(`^\d{1,5}$`)

// Resolver resolves the base URL for generated file links.
type Resolver struct {
	// Override is returned unconditionally when non-empty.
	Override string
	Logger   *slog.Logger
}

// New creates a Resolver. An empty override means "derive from the request".
func New(override string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Override: override, Logger: logger}
}

// Resolve returns the base URL for r. r may be nil.
func (res *Resolver) Resolve(r *http.Request) string {
	if res.Override != "" {
		return res.Override
	}
	if r == nil {
		return Fallback
	}

	proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto"))
	if proto != "http" && proto != "https" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if host == "" {
		host = fallbackHost
	}

	hostname, port, hasPort := strings.Cut(host, ":")
	if !Allowed(hostname) || (hasPort && !portPattern.MatchString(port)) {
		res.logger().Warn("rejected suspicious host header", "host", host)
		return Fallback
	}

	return proto + "://" + host
}

// Allowed reports whether hostname (without port) is on the allow-list.
func Allowed(hostname string) bool {
	for _, p := range allowedHostnames {
		if p.MatchString(hostname) {
			return true
		}
	}
	return false
}

func (res *Resolver) logger() *slog.Logger {
	if res.Logger != nil {
		return res.Logger
	}
	return slog.Default()
}
