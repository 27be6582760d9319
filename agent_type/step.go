package agent_type

import (
    "encoding/json"
    "fmt"
    "strings"
)

type StepKind string

const (
    StepRetrieve StepKind = "retrieve"
    StepAct      StepKind = "act"
    StepRespond  StepKind = "respond"
)

// AgentStep is the tagged union the planner emits, one per orchestrator
// turn. Exactly one variant is populated, selected by Kind.
type AgentStep struct {
    Kind      StepKind        `json:"action"`
    Query     string          `json:"query,omitempty"`
    Connector string          `json:"connector,omitempty"`
    Payload   json.RawMessage `json:"payload,omitempty"`
    Text      string          `json:"text,omitempty"`
}

// ParseAgentStep is the parse-and-validate boundary between the LLM and the
// orchestrator. LLM output is untrusted: anything that does not decode into
// one of the three recognized variants, with its required fields present, is
// rejected rather than executed.
func ParseAgentStep(raw string) (AgentStep, error) {
    cleaned := stripCodeFence(raw)

    var step AgentStep
    decoder := json.NewDecoder(strings.NewReader(cleaned))
    if err := decoder.Decode(&step); err != nil {
        return AgentStep{}, fmt.Errorf("planner output is not a JSON object: %w", err)
    }

    switch step.Kind {
    case StepRetrieve:
        if strings.TrimSpace(step.Query) == "" {
            return AgentStep{}, fmt.Errorf("retrieve step is missing the 'query' field")
        }
    case StepAct:
        if strings.TrimSpace(step.Connector) == "" {
            return AgentStep{}, fmt.Errorf("act step is missing the 'connector' field")
        }
        if len(step.Payload) == 0 {
            return AgentStep{}, fmt.Errorf("act step is missing the 'payload' field")
        }
        if !json.Valid(step.Payload) {
            return AgentStep{}, fmt.Errorf("act step payload is not valid JSON")
        }
    case StepRespond:
        if strings.TrimSpace(step.Text) == "" {
            return AgentStep{}, fmt.Errorf("respond step is missing the 'text' field")
        }
    default:
        return AgentStep{}, fmt.Errorf("unrecognized step action: %q", step.Kind)
    }

    return step, nil
}

// stripCodeFence removes a surrounding markdown code fence, which several
// models wrap around JSON output regardless of prompting.
func stripCodeFence(s string) string {
    s = strings.TrimSpace(s)
    if !strings.HasPrefix(s, "```") {
        return s
    }
    s = strings.TrimPrefix(s, "```json")
    s = strings.TrimPrefix(s, "```")
    s = strings.TrimSuffix(strings.TrimSpace(s), "```")
    return strings.TrimSpace(s)
}

func (s AgentStep) String() string {
    switch s.Kind {
    case StepRetrieve:
        return fmt.Sprintf("retrieve(%q)", s.Query)
    case StepAct:
        return fmt.Sprintf("act(%s)", s.Connector)
    case StepRespond:
        return "respond"
    }
    return string(s.Kind)
}
