// Package orchestrator runs the agent loop: plan a step, execute it, record
// the observation, and repeat until the planner responds or a bound forces
// one. A turn never errors out to the transport layer; every failure mode
// ends in a respond step so the session stays usable.
package orchestrator

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "strings"
    "time"

    "github.com/amsaid/docpilot/agent_type"
    "github.com/amsaid/docpilot/connector_registry"
    "github.com/amsaid/docpilot/services/llm_service"
    "github.com/amsaid/docpilot/vector_index"
)

const (
    planningFallback  = "I could not work out how to handle that request. Could you rephrase it?"
    retrievalFallback = "I could not search the documents right now. Please try again in a moment."
    connectorFallback = "I could not complete the requested action right now. Please try again in a moment."
    stepFallback      = "I was not able to finish handling this request. Please try again or break it into smaller requests."
)

// errConnectorExhausted marks a retryable connector failure that outlived
// its retry budget, as opposed to a permanent one the planner can explain.
var errConnectorExhausted = errors.New("connector retries exhausted")

type Orchestrator struct {
    sessions *SessionStore
    decision *llm_service.DecisionService
    index    *vector_index.Gateway
    registry *connector_registry.ConnectorRegistry
    logger   *slog.Logger

    maxHops          int
    maxSteps         int
    topK             int
    connectorRetries int
    connectorBackoff time.Duration
}

func NewOrchestrator(sessions *SessionStore, decision *llm_service.DecisionService,
    index *vector_index.Gateway, registry *connector_registry.ConnectorRegistry,
    maxHops, maxSteps, topK, connectorRetries int, connectorBackoff time.Duration,
    logger *slog.Logger) *Orchestrator {

    if maxHops <= 0 {
        maxHops = 4
    }
    if maxSteps <= 0 {
        maxSteps = 8
    }
    if topK <= 0 {
        topK = 5
    }
    return &Orchestrator{
        sessions:         sessions,
        decision:         decision,
        index:            index,
        registry:         registry,
        logger:           logger,
        maxHops:          maxHops,
        maxSteps:         maxSteps,
        topK:             topK,
        connectorRetries: connectorRetries,
        connectorBackoff: connectorBackoff,
    }
}

func (o *Orchestrator) Sessions() *SessionStore {
    return o.sessions
}

// HandleUserTurn runs one full turn for the session and returns the final
// response text. Turns on the same session are serialized; a turn on a
// closed session fails immediately with ErrSessionClosed.
func (o *Orchestrator) HandleUserTurn(ctx context.Context, sessionID, message string) (string, error) {
    ms := o.sessions.acquire(sessionID)

    ms.mu.Lock()
    defer ms.mu.Unlock()

    if o.sessions.isClosed(ms) {
        return "", agent_type.ErrSessionClosed
    }

    turnCtx, cancel := context.WithCancel(ctx)
    defer cancel()
    o.sessions.beginTurn(ms, cancel)
    defer o.sessions.endTurn(ms)

    return o.runTurn(turnCtx, ms, message)
}

func (o *Orchestrator) runTurn(ctx context.Context, ms *managedSession, message string) (string, error) {
    session := ms.session
    hops := 0

    for stepNum := 0; stepNum < o.maxSteps; stepNum++ {
        if err := ctx.Err(); err != nil {
            return "", err
        }

        step, err := o.decision.NextStep(ctx, message, session.Trace)
        if err != nil {
            if ctx.Err() != nil {
                return "", ctx.Err()
            }
            o.logger.Error("Planning failed, responding degraded",
                slog.String("session_id", session.ID),
                slog.String("error_kind", agent_type.Classify(err).String()),
                slog.String("error", err.Error()))
            o.appendEntry(session, agent_type.AgentStep{
                Kind: agent_type.StepRespond, Text: planningFallback,
            }, "", err.Error())
            return planningFallback, nil
        }

        // The hop bound keeps a planner that retrieves forever from
        // spinning; once reached, the step is downgraded to a forced
        // respond.
        if step.Kind == agent_type.StepRetrieve && hops >= o.maxHops {
            o.logger.Warn("Retrieval hop bound reached, forcing respond",
                slog.String("session_id", session.ID),
                slog.Int("hops", hops))
            o.appendEntry(session, agent_type.AgentStep{
                Kind: agent_type.StepRespond, Text: stepFallback,
            }, "hop bound reached", "")
            return stepFallback, nil
        }

        switch step.Kind {
        case agent_type.StepRespond:
            o.appendEntry(session, step, "", "")
            return step.Text, nil

        case agent_type.StepRetrieve:
            hops++
            observation, err := o.retrieve(ctx, step.Query)
            if err != nil {
                if ctx.Err() != nil {
                    return "", ctx.Err()
                }
                o.logger.Error("Retrieval failed, responding degraded",
                    slog.String("session_id", session.ID),
                    slog.String("query", step.Query),
                    slog.String("error_kind", agent_type.Classify(err).String()),
                    slog.String("error", err.Error()))
                o.appendEntry(session, step, "", err.Error())
                o.appendEntry(session, agent_type.AgentStep{
                    Kind: agent_type.StepRespond, Text: retrievalFallback,
                }, "", "")
                return retrievalFallback, nil
            }
            o.appendEntry(session, step, observation, "")

        case agent_type.StepAct:
            observation, actErr := o.act(ctx, session, step)
            if ctx.Err() != nil {
                return "", ctx.Err()
            }
            if actErr != nil {
                o.appendEntry(session, step, "", actErr.Error())
                if errors.Is(actErr, errConnectorExhausted) {
                    o.logger.Error("Connector retries exhausted, responding degraded",
                        slog.String("session_id", session.ID),
                        slog.String("connector", step.Connector),
                        slog.String("error", actErr.Error()))
                    o.appendEntry(session, agent_type.AgentStep{
                        Kind: agent_type.StepRespond, Text: connectorFallback,
                    }, "", "")
                    return connectorFallback, nil
                }
                // A permanent failure goes into the trace so the planner
                // can tell the user what happened or pick another tool.
            } else {
                o.appendEntry(session, step, observation, "")
            }
        }
    }

    o.logger.Warn("Step bound reached, forcing respond",
        slog.String("session_id", ms.session.ID))
    o.appendEntry(session, agent_type.AgentStep{
        Kind: agent_type.StepRespond, Text: stepFallback,
    }, "step bound reached", "")
    return stepFallback, nil
}

// retrieve queries the index and compacts the matches into an observation
// for the planner.
func (o *Orchestrator) retrieve(ctx context.Context, query string) (string, error) {
    result, err := o.index.Query(ctx, query, o.topK)
    if err != nil {
        return "", err
    }
    if len(result.Matches) == 0 {
        return "no matching document passages found", nil
    }

    var b strings.Builder
    fmt.Fprintf(&b, "%d passages:", len(result.Matches))
    for _, m := range result.Matches {
        text := m.Chunk.Text
        if len(text) > 300 {
            text = text[:300] + "..."
        }
        fmt.Fprintf(&b, "\n[doc %s p.%d-%d score %.2f] %s",
            m.Chunk.DocumentID, m.Chunk.FirstPage, m.Chunk.LastPage, m.Score, text)
    }
    return b.String(), nil
}

// act dispatches the connector with an idempotency key tied to this trace
// position, retrying retryable failures with backoff. The key is stable
// across a retried turn, so a re-dispatch replays the recorded result
// instead of repeating the side effect.
func (o *Orchestrator) act(ctx context.Context, session *agent_type.Session, step agent_type.AgentStep) (string, error) {
    connector, ok := o.registry.GetConnector(step.Connector)
    if !ok {
        return "", fmt.Errorf("connector %q is not registered", step.Connector)
    }

    req := agent_type.ConnectorRequest{
        Connector:      step.Connector,
        Payload:        step.Payload,
        IdempotencyKey: agent_type.IdempotencyKey(session.ID, len(session.Trace)),
    }

    backoff := o.connectorBackoff
    var result agent_type.ConnectorResult
    for attempt := 0; ; attempt++ {
        result = connector.Execute(ctx, req)
        if result.Status != agent_type.ConnectorRetryableFailure {
            break
        }
        if attempt >= o.connectorRetries {
            return "", fmt.Errorf("%w: %s failed after %d attempts: %s",
                errConnectorExhausted, step.Connector, attempt+1, result.Reason)
        }
        o.logger.Warn("Connector attempt failed, retrying",
            slog.String("connector", step.Connector),
            slog.Int("attempt", attempt+1),
            slog.String("reason", result.Reason))
        select {
        case <-ctx.Done():
            return "", ctx.Err()
        case <-time.After(backoff):
        }
        backoff *= 2
    }

    if result.Status == agent_type.ConnectorPermanentFailure {
        return "", fmt.Errorf("connector %s failed: %s", step.Connector, result.Reason)
    }

    if len(result.Payload) > 0 {
        return fmt.Sprintf("%s succeeded: %s", step.Connector, compactJSON(result.Payload)), nil
    }
    return fmt.Sprintf("%s succeeded", step.Connector), nil
}

func (o *Orchestrator) appendEntry(session *agent_type.Session, step agent_type.AgentStep, observation, errText string) {
    session.Trace = append(session.Trace, agent_type.TraceEntry{
        Index:       len(session.Trace),
        Step:        step,
        Observation: observation,
        Error:       errText,
        At:          time.Now(),
    })
}

func compactJSON(raw json.RawMessage) string {
    var buf bytes.Buffer
    if err := json.Compact(&buf, raw); err != nil {
        return string(raw)
    }
    return buf.String()
}
