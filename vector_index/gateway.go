// Package vector_index fronts the external nearest-neighbor index. Replacing
// a document's chunk set is atomic from the caller's perspective: new chunks
// are staged under a version tag, the document's active-version pointer is
// flipped, and the superseded version is garbage collected afterwards.
package vector_index

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "time"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/services/embedding_service"
)

type Gateway struct {
    store    Store
    embedder embedding_service.Embedder
    timeout  time.Duration
    attempts int
    logger   *slog.Logger
}

func NewGateway(store Store, embedder embedding_service.Embedder, timeout time.Duration, attempts int, logger *slog.Logger) *Gateway {
    if attempts <= 0 {
        attempts = 3
    }
    return &Gateway{
        store:    store,
        embedder: embedder,
        timeout:  timeout,
        attempts: attempts,
        logger:   logger,
    }
}

// Upsert replaces the document's chunk set with write-then-swap semantics.
// Old chunks stay visible to concurrent queries until the pointer flip; the
// superseded version is deleted asynchronously.
func (g *Gateway) Upsert(ctx context.Context, documentID, version string, chunks []agent_type.Chunk) error {
    if len(chunks) == 0 {
        return fmt.Errorf("no chunks to upsert for document %s", documentID)
    }

    err := g.withRetry(ctx, "stage chunks", func(ctx context.Context) error {
        return g.store.StageChunks(ctx, chunks)
    })
    if err != nil {
        return err
    }

    var previous string
    err = g.withRetry(ctx, "activate version", func(ctx context.Context) error {
        var aerr error
        previous, aerr = g.store.ActivateVersion(ctx, documentID, version)
        return aerr
    })
    if err != nil {
        return err
    }

    g.logger.Info("Activated chunk version",
        slog.String("document_id", documentID),
        slog.String("version", version),
        slog.Int("chunk_count", len(chunks)))

    if previous != "" && previous != version {
        go g.collectVersion(documentID, previous)
    }
    return nil
}

// Query embeds the text and returns the top-k active chunks.
func (g *Gateway) Query(ctx context.Context, text string, k int) (agent_type.RetrievalResult, error) {
    vectors, err := g.embedder.Embed(ctx, []string{text})
    if err != nil {
        return agent_type.RetrievalResult{}, fmt.Errorf("failed to embed query: %w", err)
    }

    var matches []agent_type.ScoredChunk
    err = g.withRetry(ctx, "search", func(ctx context.Context) error {
        var serr error
        matches, serr = g.store.Search(ctx, vectors[0], k)
        return serr
    })
    if err != nil {
        return agent_type.RetrievalResult{}, err
    }
    return agent_type.RetrievalResult{Query: text, Matches: matches}, nil
}

// SweepSuperseded is called by the maintenance loop to catch versions whose
// asynchronous deletion was interrupted.
func (g *Gateway) SweepSuperseded(ctx context.Context) (int, error) {
    return g.store.SweepSuperseded(ctx)
}

func (g *Gateway) collectVersion(documentID, version string) {
    ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
    defer cancel()
    if err := g.store.DeleteVersion(ctx, documentID, version); err != nil {
        // The maintenance sweep picks up anything left behind.
        g.logger.Warn("Deferred garbage collection of superseded version failed",
            slog.String("document_id", documentID),
            slog.String("version", version),
            slog.String("error", err.Error()))
        return
    }
    g.logger.Debug("Collected superseded chunk version",
        slog.String("document_id", documentID),
        slog.String("version", version))
}

// withRetry retries transient store failures with exponential backoff. A
// dimension mismatch is a configuration error and is surfaced immediately.
func (g *Gateway) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
    retryDelay := 250 * time.Millisecond

    var lastErr error
    for attempt := 1; attempt <= g.attempts; attempt++ {
        attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
        err := fn(attemptCtx)
        cancel()
        if err == nil {
            return nil
        }
        if errors.Is(err, agent_type.ErrDimensionMismatch) {
            return err
        }
        lastErr = err

        if attempt == g.attempts {
            break
        }
        g.logger.Warn("Vector index operation failed, retrying",
            slog.String("op", op),
            slog.Int("attempt", attempt),
            slog.String("error", err.Error()))

        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(retryDelay):
        }
        retryDelay *= 2
    }
    return fmt.Errorf("%w: %s failed after %d attempts: %v", agent_type.ErrIndexUnavailable, op, g.attempts, lastErr)
}
