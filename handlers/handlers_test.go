package handlers

import (
    "bytes"
    "context"
    "encoding/json"
    "io"
    "log/slog"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/mux"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/chunker"
    "github.com/amsaid/docpilot/connector_registry"
    "github.com/amsaid/docpilot/orchestrator"
    "github.com/amsaid/docpilot/services/embedding_service"
    "github.com/amsaid/docpilot/services/ingest_service"
    "github.com/amsaid/docpilot/services/llm_service"
    "github.com/amsaid/docpilot/services/ocr_service"
    "github.com/amsaid/docpilot/vector_index"
)

func testLogger() *slog.Logger {
    return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, planner llm_service.LLMService) (*mux.Router, *ingest_service.MemoryDocumentStore) {
    t.Helper()
    embedder := &embedding_service.MockEmbedder{Dim: 32}
    gateway := vector_index.NewGateway(vector_index.NewMemoryStore(32), embedder,
        time.Second, 1, testLogger())
    store := ingest_service.NewMemoryDocumentStore()

    ocr := &ocr_service.MockOCRService{
        ExtractPagesFunc: func(ctx context.Context, data []byte) ([]ocr_service.PageText, error) {
            return []ocr_service.PageText{{Number: 1, Text: "scanned page content for testing", Confidence: 0.9}}, nil
        },
    }
    ingestor := ingest_service.NewIngestor(ocr, store, chunker.New(200, 50), embedder, gateway,
        time.Second, 1, 0.60, testLogger())

    registry := connector_registry.NewConnectorRegistry(connector_registry.NewMemoryKeyStore(), testLogger())
    decision := llm_service.NewDecisionService(planner, llm_service.DefaultTools(), testLogger())
    sessions := orchestrator.NewSessionStore(30*time.Minute, testLogger())
    orch := orchestrator.NewOrchestrator(sessions, decision, gateway, registry,
        4, 8, 5, 2, time.Millisecond, testLogger())

    r := mux.NewRouter()
    documentHandler := NewDocumentHandler(ingestor, store, gateway, 5, testLogger())
    r.HandleFunc("/documents", documentHandler.Upload).Methods("POST")
    r.HandleFunc("/documents/{id}", documentHandler.Get).Methods("GET")
    r.HandleFunc("/documents/search", documentHandler.Search).Methods("POST")

    sessionHandler := NewSessionHandler(orch, testLogger())
    r.HandleFunc("/sessions/{id}/message", sessionHandler.Message).Methods("POST")
    r.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET")
    r.HandleFunc("/sessions/{id}", sessionHandler.Close).Methods("DELETE")
    return r, store
}

func multipartUpload(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
    t.Helper()
    var body bytes.Buffer
    w := multipart.NewWriter(&body)
    header := make(map[string][]string)
    header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
    header["Content-Type"] = []string{contentType}
    part, err := w.CreatePart(header)
    if err != nil {
        t.Fatal(err)
    }
    if _, err := part.Write(data); err != nil {
        t.Fatal(err)
    }
    w.Close()
    return &body, w.FormDataContentType()
}

func respondPlanner(text string) llm_service.LLMService {
    return &llm_service.MockLLMService{
        CallLLMFunc: func(ctx context.Context, prompt string) (string, error) {
            return `{"action": "respond", "text": "` + text + `"}`, nil
        },
    }
}

func TestUploadAndFetchDocument(t *testing.T) {
    router, _ := newTestRouter(t, respondPlanner("ok"))

    body, contentType := multipartUpload(t, "scan.png", "image/png", []byte("png-bytes"))
    req := httptest.NewRequest("POST", "/documents", body)
    req.Header.Set("Content-Type", contentType)
    rec := httptest.NewRecorder()
    router.ServeHTTP(rec, req)

    if rec.Code != http.StatusCreated {
        t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
    }
    var created struct {
        ID    string `json:"id"`
        State string `json:"state"`
    }
    if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
        t.Fatal(err)
    }
    if created.State != string(agent_type.DocumentExtracted) {
        t.Errorf("expected extracted, got %s", created.State)
    }

    req = httptest.NewRequest("GET", "/documents/"+created.ID, nil)
    rec = httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    if rec.Code != http.StatusOK {
        t.Errorf("expected 200 on fetch, got %d", rec.Code)
    }
}

func TestUploadUnsupportedFormat(t *testing.T) {
    router, _ := newTestRouter(t, respondPlanner("ok"))

    body, contentType := multipartUpload(t, "anim.gif", "image/gif", []byte("GIF89a"))
    req := httptest.NewRequest("POST", "/documents", body)
    req.Header.Set("Content-Type", contentType)
    rec := httptest.NewRecorder()
    router.ServeHTTP(rec, req)

    if rec.Code != http.StatusUnsupportedMediaType {
        t.Errorf("expected 415, got %d", rec.Code)
    }
}

func TestSearchAfterUpload(t *testing.T) {
    router, _ := newTestRouter(t, respondPlanner("ok"))

    body, contentType := multipartUpload(t, "scan.png", "image/png", []byte("png-bytes"))
    req := httptest.NewRequest("POST", "/documents", body)
    req.Header.Set("Content-Type", contentType)
    rec := httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    if rec.Code != http.StatusCreated {
        t.Fatalf("upload failed: %d", rec.Code)
    }

    req = httptest.NewRequest("POST", "/documents/search",
        strings.NewReader(`{"query": "scanned page content for testing"}`))
    rec = httptest.NewRecorder()
    router.ServeHTTP(rec, req)

    if rec.Code != http.StatusOK {
        t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
    }
    var result struct {
        Matches []struct {
            DocumentID string `json:"document_id"`
        } `json:"matches"`
    }
    if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
        t.Fatal(err)
    }
    if len(result.Matches) == 0 {
        t.Error("expected at least one match")
    }
}

func TestSearchRequiresQuery(t *testing.T) {
    router, _ := newTestRouter(t, respondPlanner("ok"))

    req := httptest.NewRequest("POST", "/documents/search", strings.NewReader(`{"query": "  "}`))
    rec := httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    if rec.Code != http.StatusBadRequest {
        t.Errorf("expected 400, got %d", rec.Code)
    }
}

func TestGetUnknownDocument(t *testing.T) {
    router, _ := newTestRouter(t, respondPlanner("ok"))

    req := httptest.NewRequest("GET", "/documents/does-not-exist", nil)
    rec := httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    if rec.Code != http.StatusNotFound {
        t.Errorf("expected 404, got %d", rec.Code)
    }
}

func TestSessionMessageAndClose(t *testing.T) {
    router, _ := newTestRouter(t, respondPlanner("hello there"))

    req := httptest.NewRequest("POST", "/sessions/s1/message",
        strings.NewReader(`{"message": "hi"}`))
    rec := httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    if rec.Code != http.StatusOK {
        t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
    }
    var reply struct {
        Reply string `json:"reply"`
    }
    if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
        t.Fatal(err)
    }
    if reply.Reply != "hello there" {
        t.Errorf("unexpected reply: %q", reply.Reply)
    }

    req = httptest.NewRequest("DELETE", "/sessions/s1", nil)
    rec = httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    if rec.Code != http.StatusOK {
        t.Fatalf("close failed: %d", rec.Code)
    }

    req = httptest.NewRequest("POST", "/sessions/s1/message",
        strings.NewReader(`{"message": "still there?"}`))
    rec = httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    if rec.Code != http.StatusGone {
        t.Errorf("expected 410 on closed session, got %d", rec.Code)
    }
}

func TestSessionMessageRequiresBody(t *testing.T) {
    router, _ := newTestRouter(t, respondPlanner("ok"))

    req := httptest.NewRequest("POST", "/sessions/s1/message", strings.NewReader(`{"message": ""}`))
    rec := httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    if rec.Code != http.StatusBadRequest {
        t.Errorf("expected 400, got %d", rec.Code)
    }
}
