package connector_registry

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/amsaid/docpilot/agent_type"
)

type KeyStatus string

const (
    KeyPending   KeyStatus = "pending"
    KeyCompleted KeyStatus = "completed"
)

type KeyRecord struct {
    Key    string
    Status KeyStatus
    Result *agent_type.ConnectorResult
}

// KeyStore is the shared idempotency-key cache. It is modeled as an external
// keyed store with atomic check-and-set semantics rather than in-process
// state, so it stays correct across concurrent sessions and restarts.
type KeyStore interface {
    // Begin atomically records the key as pending if it is unseen. When the
    // key already exists, acquired is false and rec describes its state.
    Begin(ctx context.Context, key string) (rec KeyRecord, acquired bool, err error)

    // Complete records the final result for the key.
    Complete(ctx context.Context, key string, result agent_type.ConnectorResult) error

    // Release drops a pending key so a later attempt can re-acquire it.
    Release(ctx context.Context, key string) error
}

// MemoryKeyStore is the in-process KeyStore used in tests and single-node
// deployments.
type MemoryKeyStore struct {
    mu      sync.Mutex
    records map[string]KeyRecord
}

func NewMemoryKeyStore() *MemoryKeyStore {
    return &MemoryKeyStore{records: make(map[string]KeyRecord)}
}

func (s *MemoryKeyStore) Begin(ctx context.Context, key string) (KeyRecord, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if rec, ok := s.records[key]; ok {
        return rec, false, nil
    }
    rec := KeyRecord{Key: key, Status: KeyPending}
    s.records[key] = rec
    return rec, true, nil
}

func (s *MemoryKeyStore) Complete(ctx context.Context, key string, result agent_type.ConnectorResult) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.records[key] = KeyRecord{Key: key, Status: KeyCompleted, Result: &result}
    return nil
}

func (s *MemoryKeyStore) Release(ctx context.Context, key string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if rec, ok := s.records[key]; ok && rec.Status == KeyPending {
        delete(s.records, key)
    }
    return nil
}

// PostgresKeyStore implements the check-and-set through an INSERT ... ON
// CONFLICT, which is atomic under concurrent sessions.
type PostgresKeyStore struct {
    db *pgxpool.Pool
}

func NewPostgresKeyStore(db *pgxpool.Pool) *PostgresKeyStore {
    return &PostgresKeyStore{db: db}
}

func (s *PostgresKeyStore) Begin(ctx context.Context, key string) (KeyRecord, bool, error) {
    tag, err := s.db.Exec(ctx,
        `INSERT INTO idempotency_keys (key, status) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
        key, KeyPending)
    if err != nil {
        return KeyRecord{}, false, fmt.Errorf("failed to record idempotency key: %w", err)
    }
    if tag.RowsAffected() == 1 {
        return KeyRecord{Key: key, Status: KeyPending}, true, nil
    }

    var status string
    var resultJSON []byte
    err = s.db.QueryRow(ctx,
        `SELECT status, result FROM idempotency_keys WHERE key = $1`, key).Scan(&status, &resultJSON)
    if err != nil {
        if err == pgx.ErrNoRows {
            // Raced with a Release; caller retries through the orchestrator.
            return KeyRecord{}, false, fmt.Errorf("idempotency key vanished mid-check: %s", key)
        }
        return KeyRecord{}, false, fmt.Errorf("failed to read idempotency key: %w", err)
    }

    rec := KeyRecord{Key: key, Status: KeyStatus(status)}
    if len(resultJSON) > 0 {
        var result agent_type.ConnectorResult
        if err := json.Unmarshal(resultJSON, &result); err != nil {
            return KeyRecord{}, false, fmt.Errorf("failed to decode recorded result: %w", err)
        }
        rec.Result = &result
    }
    return rec, false, nil
}

func (s *PostgresKeyStore) Complete(ctx context.Context, key string, result agent_type.ConnectorResult) error {
    resultJSON, err := json.Marshal(result)
    if err != nil {
        return fmt.Errorf("failed to encode connector result: %w", err)
    }
    _, err = s.db.Exec(ctx,
        `UPDATE idempotency_keys SET status = $2, result = $3, completed_at = now() WHERE key = $1`,
        key, KeyCompleted, resultJSON)
    if err != nil {
        return fmt.Errorf("failed to complete idempotency key: %w", err)
    }
    return nil
}

func (s *PostgresKeyStore) Release(ctx context.Context, key string) error {
    _, err := s.db.Exec(ctx,
        `DELETE FROM idempotency_keys WHERE key = $1 AND status = $2`, key, KeyPending)
    if err != nil {
        return fmt.Errorf("failed to release idempotency key: %w", err)
    }
    return nil
}
