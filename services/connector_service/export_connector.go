package connector_service

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "os"
    "path/filepath"

    "github.com/go-pdf/fpdf"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/services/ingest_service"
)

// ExportConnector renders an ingested document back out as a PDF, one
// section per extracted page. Low-confidence pages are marked in the output
// so a reader knows which text to double-check.
type ExportConnector struct {
    store     ingest_service.DocumentStore
    exportDir string
    logger    *slog.Logger
}

func NewExportConnector(store ingest_service.DocumentStore, exportDir string, logger *slog.Logger) *ExportConnector {
    return &ExportConnector{store: store, exportDir: exportDir, logger: logger}
}

func (c *ExportConnector) Name() string {
    return ExportConnectorName
}

func (c *ExportConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    var export struct {
        DocumentID string `json:"document_id"`
        Title      string `json:"title"`
    }
    if err := json.Unmarshal(req.Payload, &export); err != nil {
        return agent_type.ConnectorPermanent("invalid export payload: %v", err)
    }
    if export.DocumentID == "" {
        return agent_type.ConnectorPermanent("export payload requires document_id")
    }

    doc, err := c.store.GetDocument(ctx, export.DocumentID)
    if err != nil {
        if errors.Is(err, ingest_service.ErrDocumentNotFound) {
            return agent_type.ConnectorPermanent("document %s not found", export.DocumentID)
        }
        return agent_type.ConnectorRetryable("failed to load document: %v", err)
    }
    if doc.State != agent_type.DocumentExtracted {
        return agent_type.ConnectorPermanent("document %s is %s, only extracted documents can be exported",
            doc.ID, doc.State)
    }

    title := export.Title
    if title == "" {
        title = doc.SourceRef
    }

    if err := os.MkdirAll(c.exportDir, 0o755); err != nil {
        return agent_type.ConnectorRetryable("failed to create export directory: %v", err)
    }
    outPath := filepath.Join(c.exportDir, fmt.Sprintf("%s.pdf", doc.ID))

    if err := renderPDF(outPath, title, doc); err != nil {
        return agent_type.ConnectorRetryable("failed to render PDF: %v", err)
    }

    c.logger.Info("Document exported",
        slog.String("document_id", doc.ID),
        slog.String("path", outPath))

    payload, err := json.Marshal(map[string]string{
        "document_id": doc.ID,
        "path":        outPath,
    })
    if err != nil {
        return agent_type.ConnectorPermanent("error marshaling result: %v", err)
    }
    return agent_type.ConnectorOK(payload)
}

func renderPDF(path, title string, doc *agent_type.Document) error {
    pdf := fpdf.New("P", "mm", "A4", "")
    pdf.SetTitle(title, true)
    tr := pdf.UnicodeTranslatorFromDescriptor("")

    for _, page := range doc.Pages {
        pdf.AddPage()
        pdf.SetFont("Helvetica", "B", 14)
        header := fmt.Sprintf("%s, page %d", title, page.Number)
        if page.LowConfidence {
            header += " (low-confidence extraction)"
        }
        pdf.MultiCell(0, 8, tr(header), "", "L", false)
        pdf.Ln(4)
        pdf.SetFont("Helvetica", "", 11)
        pdf.MultiCell(0, 6, tr(page.Text), "", "L", false)
    }

    return pdf.OutputFileAndClose(path)
}
