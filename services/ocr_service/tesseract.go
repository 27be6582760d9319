package ocr_service

import (
    "context"
    "fmt"
    "log/slog"
    "strings"

    "github.com/otiai10/gosseract/v2"
)

// TesseractOCRService runs a local Tesseract engine through gosseract. A
// fresh client is created per call; gosseract clients are not safe for
// concurrent use. Input must be a single raster image; the ingestor
// rasterizes PDF pages before they reach the engine.
type TesseractOCRService struct {
    clientFactory func() *gosseract.Client
    languages     []string
    logger        *slog.Logger
}

func NewTesseractOCRService(logger *slog.Logger, languages ...string) *TesseractOCRService {
    return &TesseractOCRService{
        clientFactory: gosseract.NewClient,
        languages:     languages,
        logger:        logger,
    }
}

func (s *TesseractOCRService) ExtractPages(ctx context.Context, data []byte) ([]PageText, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    default:
    }

    client := s.clientFactory()
    defer client.Close()

    if err := client.SetImageFromBytes(data); err != nil {
        return nil, fmt.Errorf("failed to set OCR image: %w", err)
    }
    if len(s.languages) > 0 {
        if err := client.SetLanguage(s.languages...); err != nil {
            return nil, fmt.Errorf("failed to set OCR languages: %w", err)
        }
    }

    text, err := client.Text()
    if err != nil {
        return nil, fmt.Errorf("OCR recognition failed: %w", err)
    }

    confidence := meanWordConfidence(client)
    s.logger.Debug("OCR extraction finished",
        slog.Int("text_length", len(text)),
        slog.Float64("confidence", confidence))

    return []PageText{{
        Number:     1,
        Text:       strings.TrimSpace(text),
        Confidence: confidence,
    }}, nil
}

// meanWordConfidence averages Tesseract's per-word confidence, scaled from
// its native 0-100 range into [0,1].
func meanWordConfidence(client *gosseract.Client) float64 {
    boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
    if err != nil || len(boxes) == 0 {
        return 0
    }
    var sum float64
    for _, b := range boxes {
        sum += b.Confidence / 100.0
    }
    return sum / float64(len(boxes))
}
