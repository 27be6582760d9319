package handlers

import (
    "encoding/json"
    "errors"
    "log/slog"
    "net/http"
    "strings"

    "github.com/gorilla/mux"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/orchestrator"
)

type SessionHandler struct {
    orch   *orchestrator.Orchestrator
    logger *slog.Logger
}

func NewSessionHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *SessionHandler {
    return &SessionHandler{orch: orch, logger: logger}
}

// Message runs one agent turn. Turns on the same session are serialized by
// the orchestrator, so concurrent posts simply queue.
func (h *SessionHandler) Message(w http.ResponseWriter, r *http.Request) {
    sessionID := mux.Vars(r)["id"]

    var req struct {
        Message string `json:"message"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeJSONError(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if strings.TrimSpace(req.Message) == "" {
        writeJSONError(w, "Message is required", http.StatusBadRequest)
        return
    }

    reply, err := h.orch.HandleUserTurn(r.Context(), sessionID, req.Message)
    if err != nil {
        if errors.Is(err, agent_type.ErrSessionClosed) {
            writeJSONError(w, "Session is closed", http.StatusGone)
            return
        }
        h.logger.Error("Turn failed",
            slog.String("session_id", sessionID),
            slog.String("error", err.Error()))
        writeJSONError(w, "Turn could not be completed", http.StatusInternalServerError)
        return
    }

    writeJSON(w, http.StatusOK, map[string]string{
        "session_id": sessionID,
        "reply":      reply,
    })
}

// Get returns the session trace.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
    sessionID := mux.Vars(r)["id"]
    session, ok := h.orch.Sessions().Snapshot(sessionID)
    if !ok {
        writeJSONError(w, "Session not found", http.StatusNotFound)
        return
    }
    writeJSON(w, http.StatusOK, session)
}

// Close ends the session and cancels any in-flight turn.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
    sessionID := mux.Vars(r)["id"]
    h.orch.Sessions().CloseSession(sessionID)
    writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "state": "closed"})
}
