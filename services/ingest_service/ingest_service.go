// Package ingest_service normalizes uploaded files and images into
// page-level text and feeds the result through chunking, embedding and the
// vector index.
package ingest_service

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"
    "time"

    "code.sajari.com/docconv/v2"
    "github.com/PuerkitoBio/goquery"
    "github.com/google/uuid"
    "github.com/ledongthuc/pdf"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/chunker"
    "github.com/amsaid/docpilot/services/embedding_service"
    "github.com/amsaid/docpilot/services/ocr_service"
    "github.com/amsaid/docpilot/vector_index"
)

const mimeWord = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type Ingestor struct {
    ocr       ocr_service.OCRService
    store     DocumentStore
    chunker   *chunker.Chunker
    embedder  embedding_service.Embedder
    index     *vector_index.Gateway
    rasterize func(data []byte) ([][]byte, error)
    logger    *slog.Logger

    ocrTimeout          time.Duration
    extractionAttempts  int
    confidenceThreshold float64
}

func NewIngestor(ocr ocr_service.OCRService, store DocumentStore, ch *chunker.Chunker,
    embedder embedding_service.Embedder, index *vector_index.Gateway,
    ocrTimeout time.Duration, extractionAttempts int, confidenceThreshold float64,
    logger *slog.Logger) *Ingestor {

    if extractionAttempts <= 0 {
        extractionAttempts = 3
    }
    return &Ingestor{
        ocr:                 ocr,
        store:               store,
        chunker:             ch,
        embedder:            embedder,
        index:               index,
        rasterize:           rasterizePDF,
        logger:              logger,
        ocrTimeout:          ocrTimeout,
        extractionAttempts:  extractionAttempts,
        confidenceThreshold: confidenceThreshold,
    }
}

// Ingest normalizes the file into a document, persists its lifecycle
// transitions and indexes its chunks. A page below the confidence threshold
// is flagged, never dropped: degraded ingestion beats silent data loss. When
// embedding or indexing is unavailable after retries, the document survives
// in extracted-but-degraded form and the error is surfaced to the caller.
func (ing *Ingestor) Ingest(ctx context.Context, data []byte, mimeType, sourceRef string) (*agent_type.Document, error) {
    if !supportedMime(mimeType) {
        return nil, fmt.Errorf("%w: %s", agent_type.ErrUnsupportedFormat, mimeType)
    }

    doc := &agent_type.Document{
        ID:        uuid.New().String(),
        SourceRef: sourceRef,
        MimeType:  mimeType,
        State:     agent_type.DocumentUploaded,
        CreatedAt: time.Now(),
    }
    if err := ing.store.SaveDocument(ctx, doc); err != nil {
        return nil, fmt.Errorf("failed to persist document: %w", err)
    }
    return ing.process(ctx, doc, data, mimeType)
}

// Reingest re-extracts an existing document and replaces its chunk set
// under a fresh version tag. The superseded version stays queryable until
// the pointer swap completes, then gets garbage collected.
func (ing *Ingestor) Reingest(ctx context.Context, documentID string, data []byte, mimeType string) (*agent_type.Document, error) {
    if !supportedMime(mimeType) {
        return nil, fmt.Errorf("%w: %s", agent_type.ErrUnsupportedFormat, mimeType)
    }
    doc, err := ing.store.GetDocument(ctx, documentID)
    if err != nil {
        return nil, err
    }
    doc.MimeType = mimeType
    doc.Degraded = false
    return ing.process(ctx, doc, data, mimeType)
}

func (ing *Ingestor) process(ctx context.Context, doc *agent_type.Document, data []byte, mimeType string) (*agent_type.Document, error) {
    doc.State = agent_type.DocumentExtracting
    if err := ing.store.SaveDocument(ctx, doc); err != nil {
        return nil, fmt.Errorf("failed to persist document: %w", err)
    }

    pages, err := ing.extractWithRetry(ctx, data, mimeType)
    if err == nil && !hasUsableText(pages) {
        err = errors.New("no usable text in any page")
    }
    if err != nil {
        doc.State = agent_type.DocumentFailed
        if saveErr := ing.store.SaveDocument(ctx, doc); saveErr != nil {
            ing.logger.Error("Failed to persist failed document state",
                slog.String("document_id", doc.ID),
                slog.String("error", saveErr.Error()))
        }
        return nil, fmt.Errorf("%w: %v", agent_type.ErrExtractionFailed, err)
    }

    for i := range pages {
        if pages[i].Confidence < ing.confidenceThreshold {
            pages[i].LowConfidence = true
            doc.Degraded = true
            ing.logger.Warn("Page extracted with low confidence",
                slog.String("document_id", doc.ID),
                slog.Int("page_number", pages[i].Number),
                slog.Float64("confidence", pages[i].Confidence))
        }
    }
    doc.Pages = pages
    doc.State = agent_type.DocumentExtracted
    if err := ing.store.SaveDocument(ctx, doc); err != nil {
        return nil, fmt.Errorf("failed to persist extracted document: %w", err)
    }

    ing.logger.Info("Document extracted",
        slog.String("document_id", doc.ID),
        slog.Int("page_count", len(pages)),
        slog.Bool("degraded", doc.Degraded))

    if err := ing.indexDocument(ctx, doc); err != nil {
        doc.Degraded = true
        if saveErr := ing.store.SaveDocument(ctx, doc); saveErr != nil {
            ing.logger.Error("Failed to persist degraded document state",
                slog.String("document_id", doc.ID),
                slog.String("error", saveErr.Error()))
        }
        return doc, err
    }
    return doc, nil
}

// indexDocument chunks, embeds and upserts under a fresh version tag.
// Re-ingesting the same content yields identical chunk text; the version
// swap keeps the old chunk set visible until the new one is complete.
func (ing *Ingestor) indexDocument(ctx context.Context, doc *agent_type.Document) error {
    version := uuid.New().String()
    chunks := ing.chunker.Chunk(doc, version)
    if len(chunks) == 0 {
        return nil
    }

    texts := make([]string, len(chunks))
    for i, ch := range chunks {
        texts[i] = ch.Text
    }
    vectors, err := ing.embedder.Embed(ctx, texts)
    if err != nil {
        return fmt.Errorf("embedding document %s: %w", doc.ID, err)
    }
    for i := range chunks {
        chunks[i].Embedding = vectors[i]
    }

    if err := ing.index.Upsert(ctx, doc.ID, version, chunks); err != nil {
        return fmt.Errorf("indexing document %s: %w", doc.ID, err)
    }
    doc.ActiveVersion = version
    return ing.store.SaveDocument(ctx, doc)
}

// extractWithRetry retries transient extraction failures with bounded
// exponential backoff before giving up.
func (ing *Ingestor) extractWithRetry(ctx context.Context, data []byte, mimeType string) ([]agent_type.Page, error) {
    retryDelay := 500 * time.Millisecond

    var lastErr error
    for attempt := 1; attempt <= ing.extractionAttempts; attempt++ {
        pages, err := ing.extract(ctx, data, mimeType)
        if err == nil {
            return pages, nil
        }
        lastErr = err

        if attempt == ing.extractionAttempts {
            break
        }
        ing.logger.Warn("Extraction attempt failed, retrying",
            slog.Int("attempt", attempt),
            slog.String("mime_type", mimeType),
            slog.String("error", err.Error()))

        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(retryDelay):
        }
        retryDelay *= 2
    }
    return nil, fmt.Errorf("after %d attempts: %w", ing.extractionAttempts, lastErr)
}

func (ing *Ingestor) extract(ctx context.Context, data []byte, mimeType string) ([]agent_type.Page, error) {
    switch mimeType {
    case "application/pdf":
        return ing.extractPDF(ctx, data)
    case "image/png", "image/jpeg", "image/tiff":
        return ing.runOCR(ctx, data)
    case "text/html":
        return extractHTML(data)
    case mimeWord:
        return extractWord(data)
    case "text/plain":
        return []agent_type.Page{{Number: 1, Text: string(data), Confidence: 1.0}}, nil
    }
    return nil, fmt.Errorf("%w: %s", agent_type.ErrUnsupportedFormat, mimeType)
}

// extractPDF reads the text layer page by page. A scanned PDF has no text
// layer at all; those pages get rasterized to images and OCRed one by one.
func (ing *Ingestor) extractPDF(ctx context.Context, data []byte) ([]agent_type.Page, error) {
    reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
    if err != nil {
        // Scanner output sometimes trips the text-layer parser entirely;
        // the OCR path gets its own chance at the file.
        ing.logger.Warn("PDF text layer unreadable, falling back to OCR",
            slog.String("error", err.Error()))
        return ing.ocrScannedPDF(ctx, data)
    }

    totalPage := reader.NumPage()
    var pages []agent_type.Page
    textFound := false
    for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
        page := reader.Page(pageIndex)
        if page.V.IsNull() {
            pages = append(pages, agent_type.Page{Number: pageIndex})
            continue
        }
        text, err := page.GetPlainText(nil)
        if err != nil {
            return nil, fmt.Errorf("failed to extract text from page %d: %v", pageIndex, err)
        }
        text = strings.TrimSpace(text)
        if text != "" {
            textFound = true
        }
        // The text layer is authoritative when present.
        pages = append(pages, agent_type.Page{Number: pageIndex, Text: text, Confidence: 1.0})
    }

    if !textFound {
        return ing.ocrScannedPDF(ctx, data)
    }
    return pages, nil
}

// ocrScannedPDF renders each page to an image and OCRs them individually,
// so page numbering and per-page confidence survive the fallback.
func (ing *Ingestor) ocrScannedPDF(ctx context.Context, data []byte) ([]agent_type.Page, error) {
    images, err := ing.rasterize(data)
    if err != nil {
        return nil, fmt.Errorf("failed to rasterize PDF: %v", err)
    }
    if len(images) == 0 {
        return nil, errors.New("PDF has no renderable pages")
    }

    pages := make([]agent_type.Page, 0, len(images))
    for i, img := range images {
        extracted, err := ing.runOCR(ctx, img)
        if err != nil {
            return nil, fmt.Errorf("OCR on page %d: %w", i+1, err)
        }
        page := agent_type.Page{Number: i + 1}
        for _, p := range extracted {
            if page.Text != "" {
                page.Text += "\n"
            }
            page.Text += p.Text
            page.Confidence += p.Confidence
        }
        if len(extracted) > 0 {
            page.Confidence /= float64(len(extracted))
        }
        pages = append(pages, page)
    }
    return pages, nil
}

func (ing *Ingestor) runOCR(ctx context.Context, data []byte) ([]agent_type.Page, error) {
    ocrCtx, cancel := context.WithTimeout(ctx, ing.ocrTimeout)
    defer cancel()

    extracted, err := ing.ocr.ExtractPages(ocrCtx, data)
    if err != nil {
        return nil, fmt.Errorf("OCR extraction failed: %w", err)
    }

    pages := make([]agent_type.Page, 0, len(extracted))
    for _, p := range extracted {
        pages = append(pages, agent_type.Page{
            Number:     p.Number,
            Text:       strings.TrimSpace(p.Text),
            Confidence: p.Confidence,
        })
    }
    return pages, nil
}

func extractHTML(data []byte) ([]agent_type.Page, error) {
    document, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
    if err != nil {
        return nil, fmt.Errorf("failed to parse HTML: %v", err)
    }
    document.Find("script, style").Remove()
    text := strings.TrimSpace(document.Find("body").Text())
    if text == "" {
        text = strings.TrimSpace(document.Text())
    }
    return []agent_type.Page{{Number: 1, Text: text, Confidence: 1.0}}, nil
}

func extractWord(data []byte) ([]agent_type.Page, error) {
    result, err := docconv.Convert(bytes.NewReader(data), mimeWord, false)
    if err != nil {
        return nil, fmt.Errorf("failed to convert Word document: %v", err)
    }
    return []agent_type.Page{{Number: 1, Text: strings.TrimSpace(result.Body), Confidence: 1.0}}, nil
}

func supportedMime(mimeType string) bool {
    switch mimeType {
    case "application/pdf", "image/png", "image/jpeg", "image/tiff", "text/html", "text/plain", mimeWord:
        return true
    }
    return false
}

func hasUsableText(pages []agent_type.Page) bool {
    for _, p := range pages {
        if strings.TrimSpace(p.Text) != "" {
            return true
        }
    }
    return false
}
