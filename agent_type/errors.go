package agent_type

import (
    "context"
    "errors"
)

// Failure taxonomy. Components retry transient errors locally; whatever
// exhausts its retries propagates to the orchestrator, which converts it
// into a user-visible respond step instead of terminating the session.
var (
    ErrUnsupportedFormat    = errors.New("unsupported document format")
    ErrExtractionFailed     = errors.New("text extraction failed")
    ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
    ErrIndexUnavailable     = errors.New("vector index unavailable")
    ErrDimensionMismatch    = errors.New("embedding dimension does not match index schema")
    ErrPlanning             = errors.New("planner output could not be interpreted")
    ErrSessionClosed        = errors.New("session is closed")
)

type ErrorKind int

const (
    // KindTransient covers network and service hiccups, retried with backoff.
    KindTransient ErrorKind = iota
    // KindConfig covers operator errors such as a dimension mismatch or
    // missing credentials. Never retried.
    KindConfig
    // KindValidation covers malformed LLM output and unsupported inputs,
    // retried at most once with adjusted input.
    KindValidation
    // KindUncertain marks a side effect whose outcome is unknown, typically
    // cancellation mid-call. Reconciled through the idempotency key, never
    // assumed successful or failed.
    KindUncertain
)

func (k ErrorKind) String() string {
    switch k {
    case KindTransient:
        return "transient"
    case KindConfig:
        return "config"
    case KindValidation:
        return "validation"
    case KindUncertain:
        return "uncertain"
    }
    return "unknown"
}

// Classify maps an error onto the retry taxonomy.
func Classify(err error) ErrorKind {
    switch {
    case errors.Is(err, ErrDimensionMismatch):
        return KindConfig
    case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrPlanning):
        return KindValidation
    case errors.Is(err, context.Canceled):
        return KindUncertain
    default:
        return KindTransient
    }
}
