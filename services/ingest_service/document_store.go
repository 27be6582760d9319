package ingest_service

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/amsaid/docpilot/agent_type"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore persists documents and their pages. The ingestor is the only
// writer; once a document reaches the extracted state its pages are never
// rewritten.
type DocumentStore interface {
    SaveDocument(ctx context.Context, doc *agent_type.Document) error
    GetDocument(ctx context.Context, id string) (*agent_type.Document, error)
}

type PostgresDocumentStore struct {
    db *pgxpool.Pool
}

func NewPostgresDocumentStore(db *pgxpool.Pool) *PostgresDocumentStore {
    return &PostgresDocumentStore{db: db}
}

func (s *PostgresDocumentStore) SaveDocument(ctx context.Context, doc *agent_type.Document) error {
    tx, err := s.db.Begin(ctx)
    if err != nil {
        return fmt.Errorf("failed to begin document save: %w", err)
    }
    defer tx.Rollback(ctx)

    _, err = tx.Exec(ctx, `
        INSERT INTO documents (id, source_ref, mime_type, state, degraded, active_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE
        SET state = EXCLUDED.state, degraded = EXCLUDED.degraded, active_version = EXCLUDED.active_version`,
        doc.ID, doc.SourceRef, doc.MimeType, doc.State, doc.Degraded, doc.ActiveVersion, doc.CreatedAt)
    if err != nil {
        return fmt.Errorf("failed to save document: %w", err)
    }

    _, err = tx.Exec(ctx, `DELETE FROM document_pages WHERE document_id = $1`, doc.ID)
    if err != nil {
        return fmt.Errorf("failed to clear pages: %w", err)
    }
    for _, p := range doc.Pages {
        _, err = tx.Exec(ctx, `
            INSERT INTO document_pages (document_id, page_number, page_text, confidence, low_confidence)
            VALUES ($1, $2, $3, $4, $5)`,
            doc.ID, p.Number, p.Text, p.Confidence, p.LowConfidence)
        if err != nil {
            return fmt.Errorf("failed to save page %d: %w", p.Number, err)
        }
    }

    return tx.Commit(ctx)
}

func (s *PostgresDocumentStore) GetDocument(ctx context.Context, id string) (*agent_type.Document, error) {
    doc := &agent_type.Document{}
    err := s.db.QueryRow(ctx, `
        SELECT id, source_ref, mime_type, state, degraded, active_version, created_at
        FROM documents WHERE id = $1`, id).
        Scan(&doc.ID, &doc.SourceRef, &doc.MimeType, &doc.State, &doc.Degraded, &doc.ActiveVersion, &doc.CreatedAt)
    if err != nil {
        if err == pgx.ErrNoRows {
            return nil, ErrDocumentNotFound
        }
        return nil, fmt.Errorf("failed to load document: %w", err)
    }

    rows, err := s.db.Query(ctx, `
        SELECT page_number, page_text, confidence, low_confidence
        FROM document_pages WHERE document_id = $1 ORDER BY page_number`, id)
    if err != nil {
        return nil, fmt.Errorf("failed to load pages: %w", err)
    }
    defer rows.Close()

    for rows.Next() {
        var p agent_type.Page
        if err := rows.Scan(&p.Number, &p.Text, &p.Confidence, &p.LowConfidence); err != nil {
            return nil, fmt.Errorf("failed to scan page: %w", err)
        }
        doc.Pages = append(doc.Pages, p)
    }
    return doc, rows.Err()
}

// MemoryDocumentStore backs tests and single-node setups.
type MemoryDocumentStore struct {
    mu   sync.RWMutex
    docs map[string]agent_type.Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
    return &MemoryDocumentStore{docs: make(map[string]agent_type.Document)}
}

func (s *MemoryDocumentStore) SaveDocument(ctx context.Context, doc *agent_type.Document) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    copied := *doc
    copied.Pages = append([]agent_type.Page(nil), doc.Pages...)
    s.docs[doc.ID] = copied
    return nil
}

func (s *MemoryDocumentStore) GetDocument(ctx context.Context, id string) (*agent_type.Document, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    doc, ok := s.docs[id]
    if !ok {
        return nil, ErrDocumentNotFound
    }
    copied := doc
    copied.Pages = append([]agent_type.Page(nil), doc.Pages...)
    return &copied, nil
}
