package vector_index

import (
    "context"
    "fmt"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/pgvector/pgvector-go"

    "github.com/amsaid/docpilot/agent_type"
)

// PostgresStore keeps chunk vectors in a pgvector table. Version staging is
// plain row insertion; visibility is controlled entirely by the
// active_version pointer on the documents table, so the swap is a single
// UPDATE and readers never observe a mix of versions.
type PostgresStore struct {
    db        *pgxpool.Pool
    dimension int
}

func NewPostgresStore(db *pgxpool.Pool, dimension int) *PostgresStore {
    return &PostgresStore{db: db, dimension: dimension}
}

func (s *PostgresStore) StageChunks(ctx context.Context, chunks []agent_type.Chunk) error {
    batch := &pgx.Batch{}
    for _, ch := range chunks {
        if len(ch.Embedding) != s.dimension {
            return fmt.Errorf("%w: got %d, index expects %d",
                agent_type.ErrDimensionMismatch, len(ch.Embedding), s.dimension)
        }
        batch.Queue(`
            INSERT INTO chunks (id, document_id, version, chunk_text, first_page, last_page, embedding, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (id) DO NOTHING`,
            ch.ID, ch.DocumentID, ch.Version, ch.Text, ch.FirstPage, ch.LastPage,
            pgvector.NewVector(ch.Embedding), ch.CreatedAt)
    }

    results := s.db.SendBatch(ctx, batch)
    defer results.Close()
    for range chunks {
        if _, err := results.Exec(); err != nil {
            return fmt.Errorf("failed to stage chunk: %w", err)
        }
    }
    return nil
}

func (s *PostgresStore) ActivateVersion(ctx context.Context, documentID, version string) (string, error) {
    tx, err := s.db.Begin(ctx)
    if err != nil {
        return "", fmt.Errorf("failed to begin version swap: %w", err)
    }
    defer tx.Rollback(ctx)

    var previous string
    err = tx.QueryRow(ctx,
        `SELECT active_version FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&previous)
    if err != nil {
        return "", fmt.Errorf("failed to read active version: %w", err)
    }

    _, err = tx.Exec(ctx,
        `UPDATE documents SET active_version = $2 WHERE id = $1`, documentID, version)
    if err != nil {
        return "", fmt.Errorf("failed to flip active version: %w", err)
    }

    if err := tx.Commit(ctx); err != nil {
        return "", fmt.Errorf("failed to commit version swap: %w", err)
    }
    return previous, nil
}

func (s *PostgresStore) DeleteVersion(ctx context.Context, documentID, version string) error {
    _, err := s.db.Exec(ctx,
        `DELETE FROM chunks WHERE document_id = $1 AND version = $2`, documentID, version)
    if err != nil {
        return fmt.Errorf("failed to delete superseded version: %w", err)
    }
    return nil
}

func (s *PostgresStore) SweepSuperseded(ctx context.Context) (int, error) {
    tag, err := s.db.Exec(ctx, `
        DELETE FROM chunks c
        USING documents d
        WHERE d.id = c.document_id AND c.version <> d.active_version`)
    if err != nil {
        return 0, fmt.Errorf("failed to sweep superseded chunks: %w", err)
    }
    return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Search(ctx context.Context, vector []float32, k int) ([]agent_type.ScoredChunk, error) {
    if len(vector) != s.dimension {
        return nil, fmt.Errorf("%w: query vector has %d dimensions, index expects %d",
            agent_type.ErrDimensionMismatch, len(vector), s.dimension)
    }

    rows, err := s.db.Query(ctx, `
        SELECT c.id, c.document_id, c.version, c.chunk_text, c.first_page, c.last_page,
               1 - (c.embedding <=> $1) AS score, c.created_at
        FROM chunks c
        JOIN documents d ON d.id = c.document_id AND d.active_version = c.version
        ORDER BY c.embedding <=> $1, c.created_at DESC
        LIMIT $2`,
        pgvector.NewVector(vector), k)
    if err != nil {
        return nil, fmt.Errorf("vector search failed: %w", err)
    }
    defer rows.Close()

    var results []agent_type.ScoredChunk
    for rows.Next() {
        var sc agent_type.ScoredChunk
        err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.Version, &sc.Chunk.Text,
            &sc.Chunk.FirstPage, &sc.Chunk.LastPage, &sc.Score, &sc.Chunk.CreatedAt)
        if err != nil {
            return nil, fmt.Errorf("failed to scan search result: %w", err)
        }
        results = append(results, sc)
    }
    return results, rows.Err()
}
