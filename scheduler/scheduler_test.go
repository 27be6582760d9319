package scheduler

import (
    "context"
    "io"
    "log/slog"
    "testing"
    "time"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/orchestrator"
    "github.com/amsaid/docpilot/services/embedding_service"
    "github.com/amsaid/docpilot/vector_index"
)

func testLogger() *slog.Logger {
    return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMaintenanceSweepsSupersededVersions(t *testing.T) {
    embedder := &embedding_service.MockEmbedder{Dim: 16}
    store := vector_index.NewMemoryStore(16)
    gateway := vector_index.NewGateway(store, embedder, time.Second, 1, testLogger())

    vectors, err := embedder.Embed(context.Background(), []string{"old", "new"})
    if err != nil {
        t.Fatal(err)
    }
    mkChunk := func(id, version string, vec []float32) agent_type.Chunk {
        return agent_type.Chunk{
            ID: id, DocumentID: "d1", Version: version, Text: id,
            Embedding: vec, CreatedAt: time.Now(),
        }
    }

    // Stage two versions but only activate the second; the first becomes
    // sweepable garbage.
    if err := store.StageChunks(context.Background(), []agent_type.Chunk{mkChunk("a", "v1", vectors[0])}); err != nil {
        t.Fatal(err)
    }
    if err := store.StageChunks(context.Background(), []agent_type.Chunk{mkChunk("b", "v2", vectors[1])}); err != nil {
        t.Fatal(err)
    }
    if _, err := store.ActivateVersion(context.Background(), "d1", "v2"); err != nil {
        t.Fatal(err)
    }

    sessions := orchestrator.NewSessionStore(time.Nanosecond, testLogger())
    s := New(sessions, gateway, time.Hour, testLogger())
    s.runOnce()

    swept, err := store.SweepSuperseded(context.Background())
    if err != nil {
        t.Fatal(err)
    }
    if swept != 0 {
        t.Errorf("maintenance pass should have swept the stale version already, %d left", swept)
    }
}

func TestSchedulerStops(t *testing.T) {
    embedder := &embedding_service.MockEmbedder{Dim: 16}
    gateway := vector_index.NewGateway(vector_index.NewMemoryStore(16), embedder, time.Second, 1, testLogger())
    sessions := orchestrator.NewSessionStore(time.Minute, testLogger())

    s := New(sessions, gateway, 10*time.Millisecond, testLogger())
    done := make(chan struct{})
    go func() {
        s.Start()
        close(done)
    }()
    time.Sleep(30 * time.Millisecond)
    s.Stop()

    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("scheduler did not stop")
    }
}
