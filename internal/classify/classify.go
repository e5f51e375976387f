// Package classify maps raw UI error bubbles and transport errors to the
// closed set of failure kinds. Pure functions, no side effects; used by both
// the session (submission-time) and the poller (query-time) to decide retry
// eligibility.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/chatrelay/chatrelay/internal/domain"
)

// Genuine error bubbles are concise; anything longer is a normal reply.
const maxErrorChars = 180

// Canonical phrases rendered at the start of the UI's error bubbles.
var networkPatterns = []string{
	"a network error occurred",
	"network error",
}

var lengthPatterns = []string{
	"the message you submitted was too long",
	"message too long",
	"the message you submitted was too long, please reload the conversation and submit something shorter",
}

// Classify inspects reply text and returns its failure kind. KindNone means
// the text is an ordinary assistant reply.
func Classify(text string) domain.ErrorKind {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.KindUnknown
	}
	if len(trimmed) > maxErrorChars {
		return domain.KindNone
	}

	canon := canonical(trimmed)
	for _, p := range lengthPatterns {
		if canon == p {
			return domain.KindContentTooLong
		}
	}
	for _, p := range networkPatterns {
		if canon == p || strings.HasPrefix(canon, p) {
			return domain.KindTransientNetwork
		}
	}
	return domain.KindNone
}

// statusCoder is implemented by backend errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// ClassifyErr maps a transport-level error to a failure kind. Timeouts,
// connection faults and retryable HTTP statuses are transient; everything
// else is unknown and terminal.
func ClassifyErr(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindNone
	}

	var se *domain.SubmitError
	if errors.As(err, &se) {
		return se.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrSubmissionTimeout) {
		return domain.KindTransientNetwork
	}
	if errors.Is(err, context.Canceled) {
		return domain.KindUnknown
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch status := sc.HTTPStatus(); {
		case status == http.StatusTooManyRequests,
			status == http.StatusRequestTimeout,
			status >= 500:
			return domain.KindTransientNetwork
		case status == http.StatusForbidden, status == http.StatusNotFound:
			// The conversation is often not visible to the backend for a
			// short window right after submission.
			return domain.KindTransientNetwork
		default:
			return domain.KindUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.KindTransientNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.KindTransientNetwork
	}

	return domain.KindUnknown
}

// canonical lower-cases text and strips surrounding whitespace plus
// trailing punctuation, so bubble variants compare equal.
func canonical(text string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".! ")
}
