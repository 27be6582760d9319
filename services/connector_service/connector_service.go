// Package connector_service implements the side-effecting tools behind the
// connector registry: calendar scheduling, team messaging, SMS, email,
// task-board cards and PDF export. Every connector classifies its failures
// as retryable or permanent; at-most-once execution is enforced by the
// registry through the shared idempotency-key store.
package connector_service

import (
    "context"
    "errors"
    "net"
    "strings"
)

const (
    CalendarConnectorName  = "calendar"
    MessagingConnectorName = "messaging"
    SMSConnectorName       = "sms"
    EmailConnectorName     = "email"
    TaskBoardConnectorName = "taskboard"
    ExportConnectorName    = "document_export"
)

// isTransport reports whether the error looks like a network-level hiccup
// worth retrying.
func isTransport(err error) bool {
    if err == nil {
        return false
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return true
    }
    var netErr net.Error
    if errors.As(err, &netErr) {
        return true
    }
    msg := err.Error()
    return strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset")
}
