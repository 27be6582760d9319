package agent_type

import "time"

type DocumentState string

const (
    DocumentUploaded   DocumentState = "uploaded"
    DocumentExtracting DocumentState = "extracting"
    DocumentExtracted  DocumentState = "extracted"
    DocumentFailed     DocumentState = "failed"
)

// Page holds the extracted text of a single document page. A page whose
// extraction confidence falls below the configured threshold is flagged
// low-confidence but kept, so a partially blurry scan still produces a
// usable document.
type Page struct {
    Number        int     `json:"number"`
    Text          string  `json:"text"`
    Confidence    float64 `json:"confidence"`
    LowConfidence bool    `json:"low_confidence"`
}

// Document is created on upload and mutated only by the ingestor. Once the
// state reaches "extracted" the pages are immutable; re-ingestion produces a
// new chunk version instead of rewriting pages in place.
type Document struct {
    ID            string        `json:"id"`
    SourceRef     string        `json:"source_ref"`
    MimeType      string        `json:"mime_type"`
    Pages         []Page        `json:"pages"`
    State         DocumentState `json:"state"`
    Degraded      bool          `json:"degraded"`
    ActiveVersion string        `json:"active_version,omitempty"`
    CreatedAt     time.Time     `json:"created_at"`
}

// Chunk is a retrievable unit of document text. Chunks are never mutated
// after creation; a re-ingested document gets a fresh version tag and the
// superseded version is garbage collected after the active-version pointer
// flips.
type Chunk struct {
    ID         string    `json:"id"`
    DocumentID string    `json:"document_id"`
    Version    string    `json:"version"`
    Text       string    `json:"text"`
    FirstPage  int       `json:"first_page"`
    LastPage   int       `json:"last_page"`
    Embedding  []float32 `json:"embedding,omitempty"`
    CreatedAt  time.Time `json:"created_at"`
}

type ScoredChunk struct {
    Chunk Chunk   `json:"chunk"`
    Score float64 `json:"score"`
}

// RetrievalResult is produced transiently per query and not persisted.
type RetrievalResult struct {
    Query   string        `json:"query"`
    Matches []ScoredChunk `json:"matches"`
}

type SessionState string

const (
    SessionIdle    SessionState = "idle"
    SessionRunning SessionState = "running"
    SessionClosed  SessionState = "closed"
)

// TraceEntry records one orchestrator step and its observed outcome. The
// trace is append-only and owned by exactly one session.
type TraceEntry struct {
    Index       int       `json:"index"`
    Step        AgentStep `json:"step"`
    Observation string    `json:"observation,omitempty"`
    Error       string    `json:"error,omitempty"`
    At          time.Time `json:"at"`
}

type AgentTrace []TraceEntry

// Session owns its trace. Turns within a session execute strictly
// sequentially; the session store serializes them.
type Session struct {
    ID           string       `json:"id"`
    Trace        AgentTrace   `json:"trace"`
    State        SessionState `json:"state"`
    CreatedAt    time.Time    `json:"created_at"`
    LastActiveAt time.Time    `json:"last_active_at"`
}
