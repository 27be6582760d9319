// Package embedding_service turns text into fixed-dimensionality vectors
// through an external embedding endpoint.
package embedding_service

import "context"

type Embedder interface {
    // Embed returns one vector per input text, in order.
    Embed(ctx context.Context, texts []string) ([][]float32, error)
    Dimension() int
}
