package llm_service

import (
    "context"
    "fmt"
    "log/slog"
    "strings"

    "github.com/amsaid/docpilot/agent_type"
)

// DecisionService asks the model for the next agent step and validates the
// answer before the orchestrator acts on it. A malformed completion gets one
// reformulation attempt with a stricter prompt; a second failure is a
// planning error the orchestrator turns into a degraded response.
type DecisionService struct {
    llm    LLMService
    tools  []Tool
    logger *slog.Logger
}

func NewDecisionService(llm LLMService, tools []Tool, logger *slog.Logger) *DecisionService {
    return &DecisionService{llm: llm, tools: tools, logger: logger}
}

func (d *DecisionService) Tools() []Tool {
    return d.tools
}

// NextStep plans the next step for the session given the user message and
// the trace so far.
func (d *DecisionService) NextStep(ctx context.Context, userMessage string, trace agent_type.AgentTrace) (agent_type.AgentStep, error) {
    prompt := d.buildPrompt(userMessage, trace, "")

    raw, err := d.llm.CallLLM(ctx, prompt)
    if err != nil {
        return agent_type.AgentStep{}, fmt.Errorf("%w: %v", agent_type.ErrPlanning, err)
    }

    step, parseErr := d.parseAndCheck(raw)
    if parseErr == nil {
        return step, nil
    }

    d.logger.Warn("Planner output rejected, requesting reformulation",
        slog.String("error", parseErr.Error()))

    strictPrompt := d.buildPrompt(userMessage, trace, parseErr.Error())
    raw, err = d.llm.CallLLM(ctx, strictPrompt)
    if err != nil {
        return agent_type.AgentStep{}, fmt.Errorf("%w: %v", agent_type.ErrPlanning, err)
    }
    step, parseErr = d.parseAndCheck(raw)
    if parseErr != nil {
        return agent_type.AgentStep{}, fmt.Errorf("%w: %v", agent_type.ErrPlanning, parseErr)
    }
    return step, nil
}

func (d *DecisionService) parseAndCheck(raw string) (agent_type.AgentStep, error) {
    step, err := agent_type.ParseAgentStep(raw)
    if err != nil {
        return agent_type.AgentStep{}, err
    }
    if step.Kind == agent_type.StepAct && !d.knownTool(step.Connector) {
        return agent_type.AgentStep{}, fmt.Errorf("unknown connector %q", step.Connector)
    }
    return step, nil
}

func (d *DecisionService) knownTool(name string) bool {
    for _, t := range d.tools {
        if t.Name == name {
            return true
        }
    }
    return false
}

func (d *DecisionService) buildPrompt(userMessage string, trace agent_type.AgentTrace, rejection string) string {
    var b strings.Builder

    b.WriteString("You are an assistant that answers questions about ingested documents ")
    b.WriteString("and performs actions through connectors.\n\n")
    b.WriteString("Available connectors:\n")
    b.WriteString(RenderToolSchema(d.tools))
    b.WriteString("\nRespond with a single JSON object and nothing else. One of:\n")
    b.WriteString(`  {"action": "retrieve", "query": "<search query>"}` + "\n")
    b.WriteString(`  {"action": "act", "connector": "<name>", "payload": {...}}` + "\n")
    b.WriteString(`  {"action": "respond", "text": "<final answer for the user>"}` + "\n\n")

    fmt.Fprintf(&b, "User message: %s\n", userMessage)

    if len(trace) > 0 {
        b.WriteString("\nSteps taken so far in this conversation, oldest first:\n")
        for _, entry := range trace {
            fmt.Fprintf(&b, "%d. %s", entry.Index, entry.Step)
            if entry.Error != "" {
                fmt.Fprintf(&b, " failed: %s", entry.Error)
            } else if entry.Observation != "" {
                fmt.Fprintf(&b, " observed: %s", entry.Observation)
            }
            b.WriteString("\n")
        }
    }

    if rejection != "" {
        fmt.Fprintf(&b, "\nYour previous answer was rejected: %s\n", rejection)
        b.WriteString("Output exactly one valid JSON object in one of the three forms above, ")
        b.WriteString("with no surrounding prose or code fences.\n")
    }

    return b.String()
}
