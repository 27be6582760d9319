package vector_index

import (
    "context"

    "github.com/amsaid/docpilot/agent_type"
)

// Store is the nearest-neighbor index behind the gateway. Implementations
// must be safe for concurrent use; the Postgres implementation leans on the
// database for that, the in-memory one locks internally.
//
// Version visibility contract: staged chunks are invisible to Search until
// ActivateVersion flips the document's active-version pointer, and a
// superseded version is invisible immediately after the flip even if its
// rows have not been garbage collected yet.
type Store interface {
    StageChunks(ctx context.Context, chunks []agent_type.Chunk) error

    // ActivateVersion atomically repoints the document to the staged
    // version and returns the previously active version ("" if none).
    ActivateVersion(ctx context.Context, documentID, version string) (string, error)

    // DeleteVersion removes the rows of a superseded version.
    DeleteVersion(ctx context.Context, documentID, version string) error

    // SweepSuperseded garbage-collects every chunk row whose version is no
    // longer its document's active version. Returns the number removed.
    SweepSuperseded(ctx context.Context) (int, error)

    // Search returns the k nearest active chunks by cosine similarity,
    // ties broken by most recent chunk creation time.
    Search(ctx context.Context, vector []float32, k int) ([]agent_type.ScoredChunk, error)
}
