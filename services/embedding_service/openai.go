package embedding_service

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "log/slog"
    "net/http"
    "time"

    "github.com/amsaid/docpilot/agent_type"
)

type OpenAIEmbedder struct {
    httpClient *http.Client
    apiURL     string
    apiKey     string
    model      string
    dimension  int
    batchSize  int
    attempts   int
    logger     *slog.Logger
}

func NewOpenAIEmbedder(apiURL, apiKey, model string, dimension, batchSize, attempts int, timeout time.Duration, logger *slog.Logger) *OpenAIEmbedder {
    if batchSize <= 0 {
        batchSize = 32
    }
    if attempts <= 0 {
        attempts = 3
    }
    return &OpenAIEmbedder{
        httpClient: &http.Client{Timeout: timeout},
        apiURL:     apiURL,
        apiKey:     apiKey,
        model:      model,
        dimension:  dimension,
        batchSize:  batchSize,
        attempts:   attempts,
        logger:     logger,
    }
}

func (e *OpenAIEmbedder) Dimension() int {
    return e.dimension
}

// Embed requests embeddings in batches. A failed batch is retried on its
// own with backoff; batches that already succeeded are not resubmitted.
// Chunk identifiers are content-derived upstream, so repeating a batch is
// harmless.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
    if e.apiKey == "" {
        return nil, fmt.Errorf("embedding API key is not configured")
    }

    vectors := make([][]float32, 0, len(texts))
    for start := 0; start < len(texts); start += e.batchSize {
        end := start + e.batchSize
        if end > len(texts) {
            end = len(texts)
        }

        batch, err := e.embedBatchWithRetry(ctx, texts[start:end])
        if err != nil {
            return nil, fmt.Errorf("%w: batch starting at %d: %v", agent_type.ErrEmbeddingUnavailable, start, err)
        }
        vectors = append(vectors, batch...)
    }
    return vectors, nil
}

func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
    retryDelay := time.Second

    var lastErr error
    for attempt := 1; attempt <= e.attempts; attempt++ {
        vectors, err := e.embedBatch(ctx, batch)
        if err == nil {
            return vectors, nil
        }
        lastErr = err

        if attempt == e.attempts {
            break
        }
        e.logger.Warn("Embedding batch failed, retrying",
            slog.Int("attempt", attempt),
            slog.Int("batch_size", len(batch)),
            slog.String("error", err.Error()))

        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(retryDelay):
        }
        retryDelay *= 2
    }
    return nil, fmt.Errorf("after %d attempts: %w", e.attempts, lastErr)
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
    requestBody, err := json.Marshal(map[string]interface{}{
        "input": batch,
        "model": e.model,
    })
    if err != nil {
        return nil, fmt.Errorf("error marshaling embedding request: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, "POST", e.apiURL, bytes.NewBuffer(requestBody))
    if err != nil {
        return nil, fmt.Errorf("error creating request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("Authorization", "Bearer "+e.apiKey)

    resp, err := e.httpClient.Do(req)
    if err != nil {
        return nil, fmt.Errorf("error making request: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        body, _ := io.ReadAll(resp.Body)
        return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
    }

    var embeddingResp struct {
        Data []struct {
            Index     int       `json:"index"`
            Embedding []float32 `json:"embedding"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
        return nil, fmt.Errorf("error decoding embedding response: %w", err)
    }
    if len(embeddingResp.Data) != len(batch) {
        return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(embeddingResp.Data))
    }

    vectors := make([][]float32, len(batch))
    for _, d := range embeddingResp.Data {
        if d.Index < 0 || d.Index >= len(batch) {
            return nil, fmt.Errorf("embedding index %d out of range", d.Index)
        }
        if len(d.Embedding) != e.dimension {
            return nil, fmt.Errorf("%w: got %d, index expects %d",
                agent_type.ErrDimensionMismatch, len(d.Embedding), e.dimension)
        }
        vectors[d.Index] = d.Embedding
    }
    return vectors, nil
}
