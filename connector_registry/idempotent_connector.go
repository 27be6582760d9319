package connector_registry

import (
    "context"
    "log/slog"

    "github.com/amsaid/docpilot/agent_type"
)

// idempotentConnector enforces at-most-once external side effects. It checks
// the key store before dispatching and records the outcome after. A key left
// pending means a previous attempt was cancelled mid-call: the outcome is
// unknown, so the call is re-dispatched and the underlying connector is
// expected to reconcile through key-derived external identifiers where its
// API supports them.
type idempotentConnector struct {
    inner  Connector
    keys   KeyStore
    logger *slog.Logger
}

func (c *idempotentConnector) Name() string {
    return c.inner.Name()
}

func (c *idempotentConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    rec, acquired, err := c.keys.Begin(ctx, req.IdempotencyKey)
    if err != nil {
        // Without the key store we cannot guarantee at-most-once, so the
        // external service is not called at all.
        return agent_type.ConnectorRetryable("idempotency store unavailable: %v", err)
    }

    if !acquired {
        if rec.Status == KeyCompleted && rec.Result != nil {
            c.logger.Info("Replaying recorded connector result",
                slog.String("connector", c.inner.Name()),
                slog.String("idempotency_key", req.IdempotencyKey))
            return *rec.Result
        }
        // Pending: the previous attempt's outcome is unknown. Re-dispatch
        // and let the connector reconcile against the same key.
        c.logger.Warn("Reconciling connector call with unknown prior outcome",
            slog.String("connector", c.inner.Name()),
            slog.String("idempotency_key", req.IdempotencyKey))
    }

    result := c.inner.Execute(ctx, req)

    if ctx.Err() != nil && result.Status != agent_type.ConnectorSuccess {
        // Cancelled after dispatch: unknown outcome, not a failure. The key
        // stays pending so the next attempt reconciles instead of assuming.
        return agent_type.ConnectorRetryable("outcome unknown: cancelled during dispatch")
    }

    switch result.Status {
    case agent_type.ConnectorSuccess, agent_type.ConnectorPermanentFailure:
        if err := c.keys.Complete(context.WithoutCancel(ctx), req.IdempotencyKey, result); err != nil {
            c.logger.Error("Failed to record connector result",
                slog.String("connector", c.inner.Name()),
                slog.String("idempotency_key", req.IdempotencyKey),
                slog.String("error", err.Error()))
        }
    case agent_type.ConnectorRetryableFailure:
        // Nothing happened externally; free the key for the retry.
        if err := c.keys.Release(context.WithoutCancel(ctx), req.IdempotencyKey); err != nil {
            c.logger.Error("Failed to release idempotency key",
                slog.String("idempotency_key", req.IdempotencyKey),
                slog.String("error", err.Error()))
        }
    }
    return result
}
