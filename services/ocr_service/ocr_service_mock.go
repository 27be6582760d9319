package ocr_service

import "context"

// MockOCRService scripts ExtractPages for tests.
type MockOCRService struct {
    ExtractPagesFunc func(ctx context.Context, data []byte) ([]PageText, error)
}

func (m *MockOCRService) ExtractPages(ctx context.Context, data []byte) ([]PageText, error) {
    return m.ExtractPagesFunc(ctx, data)
}
