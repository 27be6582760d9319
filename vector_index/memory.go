package vector_index

import (
    "context"
    "fmt"
    "math"
    "sort"
    "sync"

    "github.com/amsaid/docpilot/agent_type"
)

// MemoryStore is a brute-force cosine-similarity store used in tests and
// small deployments.
type MemoryStore struct {
    mu        sync.RWMutex
    dimension int
    staged    map[string]map[string][]agent_type.Chunk // docID -> version -> chunks
    active    map[string]string                        // docID -> active version
}

func NewMemoryStore(dimension int) *MemoryStore {
    return &MemoryStore{
        dimension: dimension,
        staged:    make(map[string]map[string][]agent_type.Chunk),
        active:    make(map[string]string),
    }
}

func (s *MemoryStore) StageChunks(ctx context.Context, chunks []agent_type.Chunk) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, ch := range chunks {
        if len(ch.Embedding) != s.dimension {
            return fmt.Errorf("%w: got %d, index expects %d",
                agent_type.ErrDimensionMismatch, len(ch.Embedding), s.dimension)
        }
        versions, ok := s.staged[ch.DocumentID]
        if !ok {
            versions = make(map[string][]agent_type.Chunk)
            s.staged[ch.DocumentID] = versions
        }
        versions[ch.Version] = append(versions[ch.Version], ch)
    }
    return nil
}

func (s *MemoryStore) ActivateVersion(ctx context.Context, documentID, version string) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.staged[documentID][version]; !ok {
        return "", fmt.Errorf("no staged chunks for document %s version %s", documentID, version)
    }
    previous := s.active[documentID]
    s.active[documentID] = version
    return previous, nil
}

func (s *MemoryStore) DeleteVersion(ctx context.Context, documentID, version string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if versions, ok := s.staged[documentID]; ok {
        delete(versions, version)
    }
    return nil
}

func (s *MemoryStore) SweepSuperseded(ctx context.Context) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    removed := 0
    for docID, versions := range s.staged {
        activeVersion := s.active[docID]
        for version, chunks := range versions {
            if version != activeVersion {
                removed += len(chunks)
                delete(versions, version)
            }
        }
    }
    return removed, nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]agent_type.ScoredChunk, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    if len(vector) != s.dimension {
        return nil, fmt.Errorf("%w: query vector has %d dimensions, index expects %d",
            agent_type.ErrDimensionMismatch, len(vector), s.dimension)
    }

    var results []agent_type.ScoredChunk
    for docID, activeVersion := range s.active {
        for _, ch := range s.staged[docID][activeVersion] {
            results = append(results, agent_type.ScoredChunk{
                Chunk: ch,
                Score: cosine(ch.Embedding, vector),
            })
        }
    }

    sort.Slice(results, func(i, j int) bool {
        if results[i].Score != results[j].Score {
            return results[i].Score > results[j].Score
        }
        // Ties broken by most recent chunk creation time.
        if !results[i].Chunk.CreatedAt.Equal(results[j].Chunk.CreatedAt) {
            return results[i].Chunk.CreatedAt.After(results[j].Chunk.CreatedAt)
        }
        return results[i].Chunk.ID < results[j].Chunk.ID
    })

    if k > 0 && len(results) > k {
        results = results[:k]
    }
    return results, nil
}

func cosine(a, b []float32) float64 {
    var dot, normA, normB float64
    for i := range a {
        dot += float64(a[i]) * float64(b[i])
        normA += float64(a[i]) * float64(a[i])
        normB += float64(b[i]) * float64(b[i])
    }
    if normA == 0 || normB == 0 {
        return 0
    }
    return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
