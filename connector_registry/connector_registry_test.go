package connector_registry

import (
    "context"
    "encoding/json"
    "io"
    "log/slog"
    "testing"

    "github.com/amsaid/docpilot/agent_type"
)

func testLogger() *slog.Logger {
    return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingConnector records how many times the external side effect ran.
type countingConnector struct {
    name       string
    executions int
    result     agent_type.ConnectorResult
}

func (c *countingConnector) Name() string { return c.name }

func (c *countingConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    c.executions++
    return c.result
}

func TestRegistryResolvesByName(t *testing.T) {
    registry := NewConnectorRegistry(NewMemoryKeyStore(), testLogger())
    registry.RegisterConnector(&countingConnector{name: "calendar"})
    registry.RegisterConnector(&countingConnector{name: "messaging"})

    if _, ok := registry.GetConnector("calendar"); !ok {
        t.Error("expected calendar connector to resolve")
    }
    if _, ok := registry.GetConnector("unknown"); ok {
        t.Error("did not expect unknown connector to resolve")
    }
    if got := len(registry.ConnectorNames()); got != 2 {
        t.Errorf("expected 2 connector names, got %d", got)
    }
}

func TestSameKeyExecutesSideEffectOnce(t *testing.T) {
    registry := NewConnectorRegistry(NewMemoryKeyStore(), testLogger())
    inner := &countingConnector{
        name:   "calendar",
        result: agent_type.ConnectorOK(json.RawMessage(`{"event_id":"ev-1"}`)),
    }
    registry.RegisterConnector(inner)
    conn, _ := registry.GetConnector("calendar")

    req := agent_type.ConnectorRequest{
        Connector:      "calendar",
        Payload:        json.RawMessage(`{"title":"standup"}`),
        IdempotencyKey: agent_type.IdempotencyKey("sess-1", 0),
    }

    for i := 0; i < 3; i++ {
        res := conn.Execute(context.Background(), req)
        if res.Status != agent_type.ConnectorSuccess {
            t.Fatalf("attempt %d: expected success, got %s (%s)", i, res.Status, res.Reason)
        }
        if string(res.Payload) != `{"event_id":"ev-1"}` {
            t.Errorf("attempt %d: unexpected payload %s", i, res.Payload)
        }
    }
    if inner.executions != 1 {
        t.Errorf("expected exactly one external execution, got %d", inner.executions)
    }
}

func TestDistinctKeysExecuteSeparately(t *testing.T) {
    registry := NewConnectorRegistry(NewMemoryKeyStore(), testLogger())
    inner := &countingConnector{name: "messaging", result: agent_type.ConnectorOK(nil)}
    registry.RegisterConnector(inner)
    conn, _ := registry.GetConnector("messaging")

    for i := 0; i < 3; i++ {
        req := agent_type.ConnectorRequest{
            Connector:      "messaging",
            IdempotencyKey: agent_type.IdempotencyKey("sess-1", i),
        }
        conn.Execute(context.Background(), req)
    }
    if inner.executions != 3 {
        t.Errorf("expected 3 executions for 3 keys, got %d", inner.executions)
    }
}

func TestRetryableFailureReleasesKey(t *testing.T) {
    keys := NewMemoryKeyStore()
    registry := NewConnectorRegistry(keys, testLogger())
    inner := &countingConnector{name: "tasks", result: agent_type.ConnectorRetryable("rate limited")}
    registry.RegisterConnector(inner)
    conn, _ := registry.GetConnector("tasks")

    req := agent_type.ConnectorRequest{
        Connector:      "tasks",
        IdempotencyKey: agent_type.IdempotencyKey("sess-2", 0),
    }

    res := conn.Execute(context.Background(), req)
    if res.Status != agent_type.ConnectorRetryableFailure {
        t.Fatalf("expected retryable failure, got %s", res.Status)
    }

    // A retry re-acquires the key and executes the side effect again.
    inner.result = agent_type.ConnectorOK(nil)
    res = conn.Execute(context.Background(), req)
    if res.Status != agent_type.ConnectorSuccess {
        t.Fatalf("expected success on retry, got %s", res.Status)
    }
    if inner.executions != 2 {
        t.Errorf("expected 2 executions, got %d", inner.executions)
    }
}

func TestPermanentFailureIsReplayedNotReexecuted(t *testing.T) {
    registry := NewConnectorRegistry(NewMemoryKeyStore(), testLogger())
    inner := &countingConnector{name: "tasks", result: agent_type.ConnectorPermanent("list does not exist")}
    registry.RegisterConnector(inner)
    conn, _ := registry.GetConnector("tasks")

    req := agent_type.ConnectorRequest{
        Connector:      "tasks",
        IdempotencyKey: agent_type.IdempotencyKey("sess-3", 0),
    }

    conn.Execute(context.Background(), req)
    conn.Execute(context.Background(), req)
    if inner.executions != 1 {
        t.Errorf("permanent failure should be recorded and replayed, got %d executions", inner.executions)
    }
}

func TestCancellationLeavesKeyPendingForReconciliation(t *testing.T) {
    keys := NewMemoryKeyStore()
    registry := NewConnectorRegistry(keys, testLogger())
    inner := &countingConnector{name: "calendar", result: agent_type.ConnectorRetryable("interrupted")}
    registry.RegisterConnector(inner)
    conn, _ := registry.GetConnector("calendar")

    req := agent_type.ConnectorRequest{
        Connector:      "calendar",
        IdempotencyKey: agent_type.IdempotencyKey("sess-4", 0),
    }

    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    res := conn.Execute(ctx, req)
    if res.Status != agent_type.ConnectorRetryableFailure {
        t.Fatalf("cancelled dispatch should report unknown outcome as retryable, got %s", res.Status)
    }

    rec, acquired, err := keys.Begin(context.Background(), req.IdempotencyKey)
    if err != nil {
        t.Fatal(err)
    }
    if acquired {
        t.Error("expected key to remain pending after cancellation")
    }
    if rec.Status != KeyPending {
        t.Errorf("expected pending status, got %s", rec.Status)
    }
}

func TestMemoryKeyStoreCheckAndSet(t *testing.T) {
    keys := NewMemoryKeyStore()
    ctx := context.Background()

    _, acquired, err := keys.Begin(ctx, "k1")
    if err != nil || !acquired {
        t.Fatalf("first Begin should acquire: acquired=%v err=%v", acquired, err)
    }
    _, acquired, _ = keys.Begin(ctx, "k1")
    if acquired {
        t.Error("second Begin should not acquire")
    }

    result := agent_type.ConnectorOK(json.RawMessage(`{"ok":true}`))
    if err := keys.Complete(ctx, "k1", result); err != nil {
        t.Fatal(err)
    }
    rec, acquired, _ := keys.Begin(ctx, "k1")
    if acquired || rec.Status != KeyCompleted || rec.Result == nil {
        t.Errorf("expected completed record, got %+v acquired=%v", rec, acquired)
    }

    // Release only drops pending keys.
    if err := keys.Release(ctx, "k1"); err != nil {
        t.Fatal(err)
    }
    if rec, _, _ := keys.Begin(ctx, "k1"); rec.Status != KeyCompleted {
        t.Error("release must not drop a completed key")
    }
}
