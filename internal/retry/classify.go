package retry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Error taxonomy kinds recorded by source metrics.
const (
	KindRetryableTransport = "retryable-transport"
	KindFatalRequest       = "fatal-request"
	KindDataIntegrity      = "data-integrity"
	KindUnknown            = "unknown"
)

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// IsRetryable reports whether err is a transient transport fault:
// connection reset, timeout, HTTP 429/5xx, or provider throttling.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		return code == 429 || code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "throttl")
}

// Kind buckets err for metrics and alerting.
func Kind(err error) string {
	if err == nil {
		return KindUnknown
	}
	if IsRetryable(err) {
		return KindRetryableTransport
	}
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	if errors.As(err, &syn) || errors.As(err, &typ) {
		return KindDataIntegrity
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return KindFatalRequest
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "decode") || strings.Contains(msg, "parse") || strings.Contains(msg, "missing") {
		return KindDataIntegrity
	}
	return KindFatalRequest
}
