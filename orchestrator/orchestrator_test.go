package orchestrator

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log/slog"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/connector_registry"
    "github.com/amsaid/docpilot/services/embedding_service"
    "github.com/amsaid/docpilot/services/llm_service"
    "github.com/amsaid/docpilot/vector_index"
)

func testLogger() *slog.Logger {
    return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedPlanner replays a fixed sequence of completions.
type scriptedPlanner struct {
    mu      sync.Mutex
    answers []string
    calls   int
}

func (p *scriptedPlanner) CallLLM(ctx context.Context, prompt string) (string, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.calls >= len(p.answers) {
        return "", errors.New("planner script exhausted")
    }
    answer := p.answers[p.calls]
    p.calls++
    return answer, nil
}

type countingConnector struct {
    name       string
    mu         sync.Mutex
    executions int
    result     func() agent_type.ConnectorResult
}

func (c *countingConnector) Name() string { return c.name }

func (c *countingConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    c.mu.Lock()
    c.executions++
    c.mu.Unlock()
    if c.result != nil {
        return c.result()
    }
    return agent_type.ConnectorOK(json.RawMessage(`{"ok":true}`))
}

func (c *countingConnector) count() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.executions
}

type failingSearchStore struct {
    vector_index.Store
}

func (s *failingSearchStore) Search(ctx context.Context, vector []float32, k int) ([]agent_type.ScoredChunk, error) {
    return nil, errors.New("index connection timed out")
}

func newTestOrchestrator(llm llm_service.LLMService, connectors ...connector_registry.Connector) (*Orchestrator, *vector_index.Gateway) {
    embedder := &embedding_service.MockEmbedder{Dim: 32}
    gateway := vector_index.NewGateway(vector_index.NewMemoryStore(32), embedder,
        100*time.Millisecond, 3, testLogger())

    registry := connector_registry.NewConnectorRegistry(connector_registry.NewMemoryKeyStore(), testLogger())
    for _, c := range connectors {
        registry.RegisterConnector(c)
    }

    decision := llm_service.NewDecisionService(llm, llm_service.DefaultTools(), testLogger())
    sessions := NewSessionStore(30*time.Minute, testLogger())
    orch := NewOrchestrator(sessions, decision, gateway, registry,
        4, 8, 5, 2, time.Millisecond, testLogger())
    return orch, gateway
}

func seedGateway(t *testing.T, gateway *vector_index.Gateway, text string) {
    t.Helper()
    embedder := &embedding_service.MockEmbedder{Dim: 32}
    vectors, err := embedder.Embed(context.Background(), []string{text})
    if err != nil {
        t.Fatal(err)
    }
    chunk := agent_type.Chunk{
        ID: "c1", DocumentID: "doc-1", Version: "v1", Text: text,
        FirstPage: 1, LastPage: 1, Embedding: vectors[0], CreatedAt: time.Now(),
    }
    if err := gateway.Upsert(context.Background(), "doc-1", "v1", []agent_type.Chunk{chunk}); err != nil {
        t.Fatal(err)
    }
}

func TestTurnRetrieveActRespond(t *testing.T) {
    calendar := &countingConnector{name: "calendar"}
    messaging := &countingConnector{name: "messaging"}
    planner := &scriptedPlanner{answers: []string{
        `{"action": "retrieve", "query": "kickoff meeting time"}`,
        `{"action": "act", "connector": "calendar", "payload": {"title": "Kickoff", "start": "2026-09-01T10:00:00Z", "end": "2026-09-01T11:00:00Z"}}`,
        `{"action": "act", "connector": "messaging", "payload": {"text": "Kickoff scheduled for Sept 1"}}`,
        `{"action": "respond", "text": "Scheduled the kickoff and notified the team."}`,
    }}
    orch, gateway := newTestOrchestrator(planner, calendar, messaging)
    seedGateway(t, gateway, "the kickoff meeting should happen in early september")

    reply, err := orch.HandleUserTurn(context.Background(), "s1", "schedule the kickoff and tell the team")
    if err != nil {
        t.Fatal(err)
    }
    if reply != "Scheduled the kickoff and notified the team." {
        t.Errorf("unexpected reply: %q", reply)
    }
    if calendar.count() != 1 || messaging.count() != 1 {
        t.Errorf("each connector must execute exactly once, got calendar=%d messaging=%d",
            calendar.count(), messaging.count())
    }

    snap, ok := orch.Sessions().Snapshot("s1")
    if !ok {
        t.Fatal("session missing")
    }
    if len(snap.Trace) != 4 {
        t.Fatalf("expected 4 trace entries, got %d", len(snap.Trace))
    }
    if snap.Trace[3].Step.Kind != agent_type.StepRespond {
        t.Error("last trace entry must be the respond step")
    }
    if !strings.Contains(snap.Trace[0].Observation, "passages") {
        t.Errorf("retrieval observation missing: %q", snap.Trace[0].Observation)
    }
}

func TestHopBoundForcesRespond(t *testing.T) {
    answers := make([]string, 0, 10)
    for i := 0; i < 10; i++ {
        answers = append(answers, fmt.Sprintf(`{"action": "retrieve", "query": "hop %d"}`, i))
    }
    orch, gateway := newTestOrchestrator(&scriptedPlanner{answers: answers})
    seedGateway(t, gateway, "some indexed content")

    reply, err := orch.HandleUserTurn(context.Background(), "s1", "keep digging")
    if err != nil {
        t.Fatal(err)
    }
    if reply != stepFallback {
        t.Errorf("expected forced respond, got %q", reply)
    }

    snap, _ := orch.Sessions().Snapshot("s1")
    last := snap.Trace[len(snap.Trace)-1]
    if last.Step.Kind != agent_type.StepRespond {
        t.Error("trace must end with a respond step")
    }
    retrieves := 0
    for _, e := range snap.Trace {
        if e.Step.Kind == agent_type.StepRetrieve {
            retrieves++
        }
    }
    if retrieves != 4 {
        t.Errorf("expected exactly 4 executed retrievals, got %d", retrieves)
    }
}

func TestStepBoundForcesRespond(t *testing.T) {
    messaging := &countingConnector{name: "messaging"}
    answers := make([]string, 0, 12)
    for i := 0; i < 12; i++ {
        answers = append(answers, `{"action": "act", "connector": "messaging", "payload": {"text": "ping"}}`)
    }
    orch, _ := newTestOrchestrator(&scriptedPlanner{answers: answers}, messaging)

    reply, err := orch.HandleUserTurn(context.Background(), "s1", "spam the channel")
    if err != nil {
        t.Fatal(err)
    }
    if reply != stepFallback {
        t.Errorf("expected forced respond, got %q", reply)
    }
    if messaging.count() != 8 {
        t.Errorf("expected the step bound to cap executions at 8, got %d", messaging.count())
    }
}

func TestRetrievalOutageYieldsDegradedRespond(t *testing.T) {
    planner := &scriptedPlanner{answers: []string{
        `{"action": "retrieve", "query": "anything"}`,
        `{"action": "respond", "text": "second turn works"}`,
    }}

    embedder := &embedding_service.MockEmbedder{Dim: 32}
    gateway := vector_index.NewGateway(
        &failingSearchStore{Store: vector_index.NewMemoryStore(32)}, embedder,
        10*time.Millisecond, 3, testLogger())
    registry := connector_registry.NewConnectorRegistry(connector_registry.NewMemoryKeyStore(), testLogger())
    decision := llm_service.NewDecisionService(planner, llm_service.DefaultTools(), testLogger())
    sessions := NewSessionStore(30*time.Minute, testLogger())
    orch := NewOrchestrator(sessions, decision, gateway, registry,
        4, 8, 5, 2, time.Millisecond, testLogger())

    reply, err := orch.HandleUserTurn(context.Background(), "s1", "find the clause")
    if err != nil {
        t.Fatal(err)
    }
    if reply != retrievalFallback {
        t.Errorf("expected degraded respond, got %q", reply)
    }

    // The session survives the outage and handles the next turn.
    reply, err = orch.HandleUserTurn(context.Background(), "s1", "hello again")
    if err != nil {
        t.Fatal(err)
    }
    if reply != "second turn works" {
        t.Errorf("session should remain usable, got %q", reply)
    }
}

func TestPlanningFailureYieldsDegradedRespond(t *testing.T) {
    planner := &scriptedPlanner{answers: []string{
        "gibberish",
        "more gibberish",
        `{"action": "respond", "text": "recovered"}`,
    }}
    orch, _ := newTestOrchestrator(planner)

    reply, err := orch.HandleUserTurn(context.Background(), "s1", "do something")
    if err != nil {
        t.Fatal(err)
    }
    if reply != planningFallback {
        t.Errorf("expected planning fallback, got %q", reply)
    }

    reply, err = orch.HandleUserTurn(context.Background(), "s1", "try again")
    if err != nil {
        t.Fatal(err)
    }
    if reply != "recovered" {
        t.Errorf("expected recovery on the next turn, got %q", reply)
    }
}

func TestConnectorRetryableFailureRetriesWithinTurn(t *testing.T) {
    attempts := 0
    flaky := &countingConnector{name: "messaging"}
    flaky.result = func() agent_type.ConnectorResult {
        attempts++
        if attempts == 1 {
            return agent_type.ConnectorRetryable("rate limited")
        }
        return agent_type.ConnectorOK(json.RawMessage(`{"ok":true}`))
    }
    planner := &scriptedPlanner{answers: []string{
        `{"action": "act", "connector": "messaging", "payload": {"text": "hi"}}`,
        `{"action": "respond", "text": "sent"}`,
    }}
    orch, _ := newTestOrchestrator(planner, flaky)

    reply, err := orch.HandleUserTurn(context.Background(), "s1", "message the team")
    if err != nil {
        t.Fatal(err)
    }
    if reply != "sent" {
        t.Errorf("unexpected reply: %q", reply)
    }
    if flaky.count() != 2 {
        t.Errorf("expected retry after retryable failure, got %d executions", flaky.count())
    }
}

func TestConnectorExhaustionYieldsDegradedRespond(t *testing.T) {
    down := &countingConnector{name: "messaging"}
    down.result = func() agent_type.ConnectorResult {
        return agent_type.ConnectorRetryable("service unavailable")
    }
    planner := &scriptedPlanner{answers: []string{
        `{"action": "act", "connector": "messaging", "payload": {"text": "hi"}}`,
    }}
    orch, _ := newTestOrchestrator(planner, down)

    reply, err := orch.HandleUserTurn(context.Background(), "s1", "message the team")
    if err != nil {
        t.Fatal(err)
    }
    if reply != connectorFallback {
        t.Errorf("expected degraded respond after exhausted retries, got %q", reply)
    }
    // connectorRetries is 2, so 3 executions in total.
    if down.count() != 3 {
        t.Errorf("expected 3 attempts, got %d", down.count())
    }
}

func TestConnectorPermanentFailureRecordedInTrace(t *testing.T) {
    broken := &countingConnector{name: "messaging"}
    broken.result = func() agent_type.ConnectorResult {
        return agent_type.ConnectorPermanent("channel is archived")
    }
    planner := &scriptedPlanner{answers: []string{
        `{"action": "act", "connector": "messaging", "payload": {"text": "hi"}}`,
        `{"action": "respond", "text": "I could not post the message, the channel is archived."}`,
    }}
    orch, _ := newTestOrchestrator(planner, broken)

    reply, err := orch.HandleUserTurn(context.Background(), "s1", "message the team")
    if err != nil {
        t.Fatal(err)
    }
    if !strings.Contains(reply, "archived") {
        t.Errorf("planner should surface the failure, got %q", reply)
    }
    if broken.count() != 1 {
        t.Errorf("permanent failures must not be retried, got %d executions", broken.count())
    }

    snap, _ := orch.Sessions().Snapshot("s1")
    if snap.Trace[0].Error == "" {
        t.Error("the failed act step must carry its error in the trace")
    }
}

func TestClosedSessionRejectsTurns(t *testing.T) {
    planner := &scriptedPlanner{answers: []string{
        `{"action": "respond", "text": "hello"}`,
    }}
    orch, _ := newTestOrchestrator(planner)

    if _, err := orch.HandleUserTurn(context.Background(), "s1", "hi"); err != nil {
        t.Fatal(err)
    }
    orch.Sessions().CloseSession("s1")

    _, err := orch.HandleUserTurn(context.Background(), "s1", "still there?")
    if !errors.Is(err, agent_type.ErrSessionClosed) {
        t.Errorf("expected ErrSessionClosed, got %v", err)
    }
}

func TestReapIdleRemovesStaleSessions(t *testing.T) {
    planner := &scriptedPlanner{answers: []string{
        `{"action": "respond", "text": "hello"}`,
    }}
    orch, _ := newTestOrchestrator(planner)

    if _, err := orch.HandleUserTurn(context.Background(), "s1", "hi"); err != nil {
        t.Fatal(err)
    }
    if n := orch.Sessions().ReapIdle(time.Now()); n != 0 {
        t.Errorf("fresh session must not be reaped, got %d", n)
    }
    if n := orch.Sessions().ReapIdle(time.Now().Add(time.Hour)); n != 1 {
        t.Errorf("stale session must be reaped, got %d", n)
    }
    if _, ok := orch.Sessions().Snapshot("s1"); ok {
        t.Error("reaped session should be gone")
    }
}
