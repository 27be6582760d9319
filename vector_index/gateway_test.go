package vector_index

import (
    "context"
    "errors"
    "io"
    "log/slog"
    "testing"
    "time"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/services/embedding_service"
)

func testLogger() *slog.Logger {
    return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeChunks(t *testing.T, embedder embedding_service.Embedder, docID, version string, texts ...string) []agent_type.Chunk {
    t.Helper()
    vectors, err := embedder.Embed(context.Background(), texts)
    if err != nil {
        t.Fatalf("embedding failed: %v", err)
    }
    now := time.Now()
    chunks := make([]agent_type.Chunk, len(texts))
    for i, text := range texts {
        chunks[i] = agent_type.Chunk{
            ID:         version + "-" + text[:3] + string(rune('a'+i)),
            DocumentID: docID,
            Version:    version,
            Text:       text,
            FirstPage:  1,
            LastPage:   1,
            Embedding:  vectors[i],
            CreatedAt:  now.Add(time.Duration(i) * time.Millisecond),
        }
    }
    return chunks
}

func newTestGateway(dim int) (*Gateway, *MemoryStore, *embedding_service.MockEmbedder) {
    store := NewMemoryStore(dim)
    embedder := &embedding_service.MockEmbedder{Dim: dim}
    gw := NewGateway(store, embedder, time.Second, 3, testLogger())
    return gw, store, embedder
}

func TestUpsertThenSelfRetrieval(t *testing.T) {
    gw, _, embedder := newTestGateway(64)
    ctx := context.Background()

    chunks := makeChunks(t, embedder, "doc-1", "v1",
        "the quarterly report shows revenue growth across all regions",
        "meeting notes from the architecture review on tuesday",
        "invoice payment terms are net thirty days from receipt",
    )
    if err := gw.Upsert(ctx, "doc-1", "v1", chunks); err != nil {
        t.Fatalf("upsert failed: %v", err)
    }

    // Querying with the exact source text of a chunk returns that chunk
    // within the top-k results.
    res, err := gw.Query(ctx, "invoice payment terms are net thirty days from receipt", 3)
    if err != nil {
        t.Fatalf("query failed: %v", err)
    }
    if len(res.Matches) == 0 {
        t.Fatal("expected matches")
    }
    if res.Matches[0].Chunk.Text != "invoice payment terms are net thirty days from receipt" {
        t.Errorf("self-retrieval failed, top match was %q", res.Matches[0].Chunk.Text)
    }
}

func TestVersionSwapHidesOldChunks(t *testing.T) {
    gw, store, embedder := newTestGateway(64)
    ctx := context.Background()

    v1 := makeChunks(t, embedder, "doc-1", "v1", "old content about apples")
    if err := gw.Upsert(ctx, "doc-1", "v1", v1); err != nil {
        t.Fatalf("upsert v1 failed: %v", err)
    }

    // Stage v2 without activating: v1 must still be what queries see.
    v2 := makeChunks(t, embedder, "doc-1", "v2", "new content about oranges")
    if err := store.StageChunks(ctx, v2); err != nil {
        t.Fatalf("staging v2 failed: %v", err)
    }
    res, err := gw.Query(ctx, "content", 10)
    if err != nil {
        t.Fatalf("query failed: %v", err)
    }
    for _, m := range res.Matches {
        if m.Chunk.Version != "v1" {
            t.Errorf("staged version leaked into query results: %s", m.Chunk.Version)
        }
    }

    // Flip the pointer: only v2 is visible from then on, even before GC.
    if _, err := store.ActivateVersion(ctx, "doc-1", "v2"); err != nil {
        t.Fatalf("activation failed: %v", err)
    }
    res, err = gw.Query(ctx, "content", 10)
    if err != nil {
        t.Fatalf("query failed: %v", err)
    }
    if len(res.Matches) == 0 {
        t.Fatal("expected matches after swap")
    }
    for _, m := range res.Matches {
        if m.Chunk.Version != "v2" {
            t.Errorf("superseded version still visible after swap: %s", m.Chunk.Version)
        }
    }
}

func TestSweepSupersededRemovesOldVersions(t *testing.T) {
    gw, store, embedder := newTestGateway(32)
    ctx := context.Background()

    if err := gw.Upsert(ctx, "doc-1", "v1", makeChunks(t, embedder, "doc-1", "v1", "version one text")); err != nil {
        t.Fatalf("upsert v1 failed: %v", err)
    }
    if err := gw.Upsert(ctx, "doc-1", "v2", makeChunks(t, embedder, "doc-1", "v2", "version two text")); err != nil {
        t.Fatalf("upsert v2 failed: %v", err)
    }

    // Re-stage a stale version to simulate an interrupted async GC.
    if err := store.StageChunks(ctx, makeChunks(t, embedder, "doc-1", "v0", "stale text")); err != nil {
        t.Fatalf("staging stale version failed: %v", err)
    }

    removed, err := gw.SweepSuperseded(ctx)
    if err != nil {
        t.Fatalf("sweep failed: %v", err)
    }
    if removed == 0 {
        t.Error("expected sweep to remove superseded chunks")
    }

    res, err := gw.Query(ctx, "version text", 10)
    if err != nil {
        t.Fatalf("query failed: %v", err)
    }
    for _, m := range res.Matches {
        if m.Chunk.Version != "v2" {
            t.Errorf("unexpected version after sweep: %s", m.Chunk.Version)
        }
    }
}

func TestQueryTieBreakByRecency(t *testing.T) {
    dim := 16
    store := NewMemoryStore(dim)
    embedder := &embedding_service.MockEmbedder{Dim: dim}
    gw := NewGateway(store, embedder, time.Second, 3, testLogger())
    ctx := context.Background()

    // Two chunks with identical text, hence identical vectors and scores,
    // but different creation times.
    vectors, _ := embedder.Embed(ctx, []string{"identical text", "identical text"})
    older := agent_type.Chunk{
        ID: "older", DocumentID: "doc-1", Version: "v1", Text: "identical text",
        Embedding: vectors[0], CreatedAt: time.Now().Add(-time.Hour),
    }
    newer := agent_type.Chunk{
        ID: "newer", DocumentID: "doc-2", Version: "v1", Text: "identical text",
        Embedding: vectors[1], CreatedAt: time.Now(),
    }
    if err := store.StageChunks(ctx, []agent_type.Chunk{older, newer}); err != nil {
        t.Fatalf("staging failed: %v", err)
    }
    if _, err := store.ActivateVersion(ctx, "doc-1", "v1"); err != nil {
        t.Fatal(err)
    }
    if _, err := store.ActivateVersion(ctx, "doc-2", "v1"); err != nil {
        t.Fatal(err)
    }

    res, err := gw.Query(ctx, "identical text", 2)
    if err != nil {
        t.Fatalf("query failed: %v", err)
    }
    if len(res.Matches) != 2 {
        t.Fatalf("expected 2 matches, got %d", len(res.Matches))
    }
    if res.Matches[0].Chunk.ID != "newer" {
        t.Errorf("expected most recent chunk to win the tie, got %s", res.Matches[0].Chunk.ID)
    }
}

func TestDimensionMismatchIsFatal(t *testing.T) {
    gw, _, _ := newTestGateway(64)
    wrongDim := &embedding_service.MockEmbedder{Dim: 32}
    chunks := makeChunks(t, wrongDim, "doc-1", "v1", "some text to index here")

    err := gw.Upsert(context.Background(), "doc-1", "v1", chunks)
    if !errors.Is(err, agent_type.ErrDimensionMismatch) {
        t.Errorf("expected ErrDimensionMismatch, got %v", err)
    }
}

type failingStore struct {
    *MemoryStore
    failures int
}

func (f *failingStore) Search(ctx context.Context, vector []float32, k int) ([]agent_type.ScoredChunk, error) {
    if f.failures > 0 {
        f.failures--
        return nil, errors.New("connection refused")
    }
    return f.MemoryStore.Search(ctx, vector, k)
}

func TestQueryRetriesTransientFailures(t *testing.T) {
    dim := 16
    store := &failingStore{MemoryStore: NewMemoryStore(dim), failures: 2}
    embedder := &embedding_service.MockEmbedder{Dim: dim}
    gw := NewGateway(store, embedder, time.Second, 3, testLogger())

    if _, err := gw.Query(context.Background(), "anything", 1); err != nil {
        t.Errorf("expected query to succeed after retries, got %v", err)
    }
}

func TestQueryExhaustedRetriesSurfacesIndexUnavailable(t *testing.T) {
    dim := 16
    store := &failingStore{MemoryStore: NewMemoryStore(dim), failures: 10}
    embedder := &embedding_service.MockEmbedder{Dim: dim}
    gw := NewGateway(store, embedder, 50*time.Millisecond, 3, testLogger())

    _, err := gw.Query(context.Background(), "anything", 1)
    if !errors.Is(err, agent_type.ErrIndexUnavailable) {
        t.Errorf("expected ErrIndexUnavailable, got %v", err)
    }
}
