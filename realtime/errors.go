package realtime

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("not connected")

// ErrorCode categorizes connection failures.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeBadURL
	ErrCodeUnreachable
	ErrCodeTimeout
	ErrCodeTLS
	ErrCodeClosed
	ErrCodeNotConnected
	ErrCodeBadFrame
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeBadURL:
		return "bad_url"
	case ErrCodeUnreachable:
		return "unreachable"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeTLS:
		return "tls_failure"
	case ErrCodeClosed:
		return "connection_closed"
	case ErrCodeNotConnected:
		return "not_connected"
	case ErrCodeBadFrame:
		return "bad_frame"
	default:
		return "unknown"
	}
}

// LinkError is a categorized connection error with a human-readable,
// cause-specific message.
type LinkError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

func (e *LinkError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LinkError) Unwrap() error { return e.Wrapped }

func (e *LinkError) Is(target error) bool {
	t, ok := target.(*LinkError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newLinkError(code ErrorCode, message string, wrapped error) *LinkError {
	return &LinkError{Code: code, Message: message, Wrapped: wrapped}
}

// classifyTransportErr maps a raw transport failure to a LinkError whose
// message distinguishes unreachable hosts from timeouts, TLS failures and
// abnormal closes, so the consuming UI can surface actionable guidance.
func classifyTransportErr(err error) *LinkError {
	var le *LinkError
	if errors.As(err, &le) {
		return le
	}

	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return newLinkError(ErrCodeTLS, "TLS certificate verification failed", err)
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return newLinkError(ErrCodeTLS, "TLS handshake failed", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newLinkError(ErrCodeUnreachable, "host could not be resolved", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newLinkError(ErrCodeTimeout, "connection attempt timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return newLinkError(ErrCodeTimeout, "connection attempt timed out", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return newLinkError(ErrCodeUnreachable, "host unreachable", err)
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return newLinkError(ErrCodeClosed, fmt.Sprintf("connection closed by server (code %d)", closeErr.Code), err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return newLinkError(ErrCodeClosed, "connection closed unexpectedly", err)
	}

	return newLinkError(ErrCodeUnknown, "connection failed", err)
}
