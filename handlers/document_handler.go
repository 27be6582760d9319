package handlers

import (
    "bytes"
    "encoding/json"
    "errors"
    "io"
    "log/slog"
    "net/http"
    "path/filepath"
    "strings"

    "github.com/gorilla/mux"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/services/ingest_service"
    "github.com/amsaid/docpilot/vector_index"
)

const maxUploadBytes = 32 << 20

type DocumentHandler struct {
    ingestor *ingest_service.Ingestor
    store    ingest_service.DocumentStore
    index    *vector_index.Gateway
    topK     int
    logger   *slog.Logger
}

func NewDocumentHandler(ingestor *ingest_service.Ingestor, store ingest_service.DocumentStore,
    index *vector_index.Gateway, topK int, logger *slog.Logger) *DocumentHandler {
    return &DocumentHandler{
        ingestor: ingestor,
        store:    store,
        index:    index,
        topK:     topK,
        logger:   logger,
    }
}

// Upload accepts a multipart file and runs it through ingestion. A degraded
// ingestion still returns the document; the response carries the degradation
// flag so clients can warn the user.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
    h.logger.Info("Received file upload request")

    if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
        writeJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
        return
    }

    file, header, err := r.FormFile("file")
    if err != nil {
        writeJSONError(w, "Failed to get file from form", http.StatusBadRequest)
        return
    }
    defer file.Close()

    var buf bytes.Buffer
    if _, err := io.Copy(&buf, file); err != nil {
        writeJSONError(w, "Failed to read file", http.StatusInternalServerError)
        return
    }

    mimeType := header.Header.Get("Content-Type")
    if mimeType == "" {
        mimeType = mimeFromExtension(header.Filename)
    }

    doc, err := h.ingestor.Ingest(r.Context(), buf.Bytes(), mimeType, header.Filename)
    if err != nil {
        switch {
        case errors.Is(err, agent_type.ErrUnsupportedFormat):
            writeJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
            return
        case errors.Is(err, agent_type.ErrExtractionFailed):
            writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
            return
        case doc != nil:
            // Extracted but not indexed. The upload is accepted; retrieval
            // will not see it until re-ingestion succeeds.
            h.logger.Warn("Document ingested degraded",
                slog.String("document_id", doc.ID),
                slog.String("error", err.Error()))
        default:
            writeJSONError(w, "Ingestion failed", http.StatusInternalServerError)
            return
        }
    }

    writeJSON(w, http.StatusCreated, documentResponse(doc))
}

// Get returns the document without its page bodies.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
    id := mux.Vars(r)["id"]
    doc, err := h.store.GetDocument(r.Context(), id)
    if err != nil {
        if errors.Is(err, ingest_service.ErrDocumentNotFound) {
            writeJSONError(w, "Document not found", http.StatusNotFound)
            return
        }
        writeJSONError(w, "Failed to load document", http.StatusInternalServerError)
        return
    }
    writeJSON(w, http.StatusOK, documentResponse(doc))
}

// Search runs a semantic query over the active chunk versions.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
    var req struct {
        Query string `json:"query"`
        TopK  int    `json:"top_k"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeJSONError(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if strings.TrimSpace(req.Query) == "" {
        writeJSONError(w, "Query is required", http.StatusBadRequest)
        return
    }
    topK := req.TopK
    if topK <= 0 {
        topK = h.topK
    }

    result, err := h.index.Query(r.Context(), req.Query, topK)
    if err != nil {
        h.logger.Error("Document search failed",
            slog.String("query", req.Query),
            slog.String("error", err.Error()))
        writeJSONError(w, "Search is temporarily unavailable", http.StatusServiceUnavailable)
        return
    }

    type match struct {
        DocumentID string  `json:"document_id"`
        Text       string  `json:"text"`
        FirstPage  int     `json:"first_page"`
        LastPage   int     `json:"last_page"`
        Score      float64 `json:"score"`
    }
    matches := make([]match, 0, len(result.Matches))
    for _, m := range result.Matches {
        matches = append(matches, match{
            DocumentID: m.Chunk.DocumentID,
            Text:       m.Chunk.Text,
            FirstPage:  m.Chunk.FirstPage,
            LastPage:   m.Chunk.LastPage,
            Score:      m.Score,
        })
    }
    writeJSON(w, http.StatusOK, map[string]interface{}{
        "query":   result.Query,
        "matches": matches,
    })
}

func documentResponse(doc *agent_type.Document) map[string]interface{} {
    pages := make([]map[string]interface{}, 0, len(doc.Pages))
    for _, p := range doc.Pages {
        pages = append(pages, map[string]interface{}{
            "number":         p.Number,
            "confidence":     p.Confidence,
            "low_confidence": p.LowConfidence,
        })
    }
    return map[string]interface{}{
        "id":         doc.ID,
        "source_ref": doc.SourceRef,
        "mime_type":  doc.MimeType,
        "state":      doc.State,
        "degraded":   doc.Degraded,
        "page_count": len(doc.Pages),
        "pages":      pages,
        "created_at": doc.CreatedAt,
    }
}

func mimeFromExtension(filename string) string {
    switch strings.ToLower(filepath.Ext(filename)) {
    case ".pdf":
        return "application/pdf"
    case ".png":
        return "image/png"
    case ".jpg", ".jpeg":
        return "image/jpeg"
    case ".tif", ".tiff":
        return "image/tiff"
    case ".html", ".htm":
        return "text/html"
    case ".docx":
        return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
    case ".txt":
        return "text/plain"
    }
    return "application/octet-stream"
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    if err := json.NewEncoder(w).Encode(payload); err != nil {
        slog.Error("Failed to encode response", slog.String("error", err.Error()))
    }
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
    writeJSON(w, status, map[string]string{"error": message})
}
