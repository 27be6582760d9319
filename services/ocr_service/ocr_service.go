// Package ocr_service wraps the OCR engine behind a page-level text
// extraction interface. The engine itself is a black box; the ingestor only
// depends on this contract.
package ocr_service

import "context"

// PageText is one page of extracted text with the engine's confidence in
// [0,1].
type PageText struct {
    Number     int
    Text       string
    Confidence float64
}

type OCRService interface {
    // ExtractPages runs OCR over the raw bytes of a scanned document or
    // image and returns its pages in order.
    ExtractPages(ctx context.Context, data []byte) ([]PageText, error)
}
