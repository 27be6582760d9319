package agent_type

import (
    "encoding/json"
    "fmt"
)

// ConnectorRequest is the uniform request shape for side-effecting tools.
// The idempotency key is derived from (session id, step index), so retrying
// a whole turn re-presents the same keys and the connectors replay recorded
// results instead of duplicating the external side effect.
type ConnectorRequest struct {
    Connector      string          `json:"connector"`
    Payload        json.RawMessage `json:"payload"`
    IdempotencyKey string          `json:"idempotency_key"`
}

func IdempotencyKey(sessionID string, stepIndex int) string {
    return fmt.Sprintf("%s:%d", sessionID, stepIndex)
}

type ConnectorStatus string

const (
    ConnectorSuccess          ConnectorStatus = "success"
    ConnectorRetryableFailure ConnectorStatus = "retryable_failure"
    ConnectorPermanentFailure ConnectorStatus = "permanent_failure"
)

type ConnectorResult struct {
    Status  ConnectorStatus `json:"status"`
    Payload json.RawMessage `json:"payload,omitempty"`
    Reason  string          `json:"reason,omitempty"`
}

func ConnectorOK(payload json.RawMessage) ConnectorResult {
    return ConnectorResult{Status: ConnectorSuccess, Payload: payload}
}

func ConnectorRetryable(format string, args ...interface{}) ConnectorResult {
    return ConnectorResult{Status: ConnectorRetryableFailure, Reason: fmt.Sprintf(format, args...)}
}

func ConnectorPermanent(format string, args ...interface{}) ConnectorResult {
    return ConnectorResult{Status: ConnectorPermanentFailure, Reason: fmt.Sprintf(format, args...)}
}
