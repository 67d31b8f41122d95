package validate

import (
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"

	"idgateway/internal/pool"
)

// classifyResult is the outcome of classifying a failed outbound call.
type classifyResult struct {
	class       pool.ErrorClass
	categorized bool
}

var connectionErrorPattern = regexp.MustCompile(`(?i)socket hang up|ECONNRESET|ETIMEDOUT|timeout|SSL|TLS|certificate`)

// classifyError implements spec.md §4.3's error classification table for
// rate-limited endpoint calls. The original's classification rules were
// written against a runtime that surfaces POSIX error codes as literal
// strings (ECONNREFUSED, ENOTFOUND, EHOSTUNREACH) on the error object; Go's
// net package instead wraps syscall.Errno and net.DNSError values. The
// order is: a 429 status, then any message containing "socks"
// (golang.org/x/net/proxy reports SOCKS failures as plain "socks: ..."
// text), then the wrapped DNS/errno values, and only then the literal
// code substrings and connection-error patterns as a fallback for errors
// that carry them verbatim.
// An uncategorized error deliberately does not trigger a cooldown — see
// DESIGN.md's note on the §4.2/§4.3 reconciliation.
func classifyError(resp *http.Response, err error) classifyResult {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return classifyResult{class: pool.ErrorClassHTTP429, categorized: true}
	}
	if err == nil {
		return classifyResult{categorized: false}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "socks") {
		return classifyResult{class: pool.ErrorClassSocksError, categorized: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return classifyResult{class: pool.ErrorClassSocksError, categorized: true}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.EHOSTUNREACH:
			return classifyResult{class: pool.ErrorClassSocksError, categorized: true}
		case syscall.ECONNRESET, syscall.ETIMEDOUT:
			return classifyResult{class: pool.ErrorClassConnectionError, categorized: true}
		}
	}

	if strings.Contains(msg, "ECONNREFUSED") ||
		strings.Contains(msg, "ENOTFOUND") ||
		strings.Contains(msg, "EHOSTUNREACH") {
		return classifyResult{class: pool.ErrorClassSocksError, categorized: true}
	}
	if connectionErrorPattern.MatchString(msg) {
		return classifyResult{class: pool.ErrorClassConnectionError, categorized: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classifyResult{class: pool.ErrorClassConnectionError, categorized: true}
	}

	return classifyResult{categorized: false}
}

// ClassifyTransportError exposes classifyError for callers outside this
// package that need the same rules against a connection not owned by a
// Client — the proxy smoke test in internal/worker being the one case.
func ClassifyTransportError(resp *http.Response, err error) (pool.ErrorClass, bool) {
	r := classifyError(resp, err)
	return r.class, r.categorized
}
