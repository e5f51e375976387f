// Package domain holds the request/outcome types shared by the session,
// poller and routing layers.
package domain

// Tag is the correlation marker embedded in every submitted prompt.
type Tag string

// ConversationID identifies an in-flight exchange. It is obtained from the
// post-submission redirect and consumed only by the completion poller.
type ConversationID string

// Request is a fully prepared submission: the flattened prompt, the target
// model and the correlation tag generated for this attempt. Immutable once
// constructed.
type Request struct {
	Prompt string
	Model  string
	Tag    Tag
}

type OutcomeStatus int

const (
	OutcomeSuccess OutcomeStatus = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one submit-then-poll cycle. Exactly one
// Outcome is produced per request.
type Outcome struct {
	Status OutcomeStatus
	Text   string    // assistant reply, set on success
	Kind   ErrorKind // failure classification, set on failure
	Detail string
}

func Success(text string) Outcome {
	return Outcome{Status: OutcomeSuccess, Text: text}
}

func Failed(kind ErrorKind, detail string) Outcome {
	return Outcome{Status: OutcomeFailed, Kind: kind, Detail: detail}
}

func TimedOut(detail string) Outcome {
	return Outcome{Status: OutcomeTimedOut, Kind: KindUnknown, Detail: detail}
}

// ErrorKind is the closed classification of failures observed from the UI or
// the conversation backend.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransientNetwork
	KindContentTooLong
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransientNetwork:
		return "transient_network"
	case KindContentTooLong:
		return "content_too_long"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Retryable reports whether a failure of this kind may be retried. Only
// transient network failures are ever retry-eligible.
func (k ErrorKind) Retryable() bool {
	return k == KindTransientNetwork
}
