package embedding_service

import (
    "context"
    "crypto/sha256"
    "encoding/binary"
    "math"
)

// MockEmbedder produces deterministic pseudo-embeddings: hashed token
// buckets, L2-normalized, so identical text always maps to the identical
// vector and cosine similarity behaves sensibly in tests.
type MockEmbedder struct {
    Dim      int
    EmbedErr error
    Calls    int
}

func (m *MockEmbedder) Dimension() int {
    return m.Dim
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
    m.Calls++
    if m.EmbedErr != nil {
        return nil, m.EmbedErr
    }
    vectors := make([][]float32, len(texts))
    for i, text := range texts {
        vectors[i] = hashVector(text, m.Dim)
    }
    return vectors, nil
}

func hashVector(text string, dim int) []float32 {
    v := make([]float32, dim)
    // Trigram buckets keep similar texts near each other.
    runes := []rune(text)
    for i := 0; i+3 <= len(runes); i++ {
        sum := sha256.Sum256([]byte(string(runes[i : i+3])))
        bucket := int(binary.BigEndian.Uint32(sum[:4])) % dim
        if bucket < 0 {
            bucket += dim
        }
        v[bucket]++
    }
    var norm float64
    for _, x := range v {
        norm += float64(x) * float64(x)
    }
    if norm == 0 {
        v[0] = 1
        return v
    }
    scale := float32(1 / math.Sqrt(norm))
    for i := range v {
        v[i] *= scale
    }
    return v
}
