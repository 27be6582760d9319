package llm_service

import (
    "fmt"
    "os"
    "strings"

    "gopkg.in/yaml.v3"
)

// Tool describes one connector the planner may call: its registry name, what
// it does, and the JSON payload shape it expects.
type Tool struct {
    Name        string `yaml:"name"`
    Description string `yaml:"description"`
    PayloadDoc  string `yaml:"payload"`
}

type toolCatalog struct {
    Tools []Tool `yaml:"tools"`
}

// LoadTools reads the tool catalog from a YAML file. An empty path falls
// back to the built-in catalog.
func LoadTools(path string) ([]Tool, error) {
    if path == "" {
        return DefaultTools(), nil
    }
    data, err := os.ReadFile(path)
    if err != nil {
        return nil, fmt.Errorf("failed to read tool catalog: %w", err)
    }
    var catalog toolCatalog
    if err := yaml.Unmarshal(data, &catalog); err != nil {
        return nil, fmt.Errorf("failed to parse tool catalog: %w", err)
    }
    if len(catalog.Tools) == 0 {
        return nil, fmt.Errorf("tool catalog %s defines no tools", path)
    }
    for _, t := range catalog.Tools {
        if t.Name == "" || t.Description == "" {
            return nil, fmt.Errorf("tool catalog %s has an entry missing name or description", path)
        }
    }
    return catalog.Tools, nil
}

func DefaultTools() []Tool {
    return []Tool{
        {
            Name:        "calendar",
            Description: "Schedule a calendar event.",
            PayloadDoc:  `{"title": string, "start": RFC3339 datetime, "end": RFC3339 datetime, "timezone": string, "attendees": [email], "description": string}`,
        },
        {
            Name:        "messaging",
            Description: "Post a message to a team channel.",
            PayloadDoc:  `{"channel": string (optional), "text": string}`,
        },
        {
            Name:        "sms",
            Description: "Send a text message to a phone number.",
            PayloadDoc:  `{"to": E.164 phone number, "message": string}`,
        },
        {
            Name:        "email",
            Description: "Send an email notification.",
            PayloadDoc:  `{"to": email address, "subject": string, "body": string}`,
        },
        {
            Name:        "taskboard",
            Description: "Create a card on the task board.",
            PayloadDoc:  `{"list_id": string (optional), "name": string, "description": string, "due": RFC3339 datetime (optional)}`,
        },
        {
            Name:        "document_export",
            Description: "Export an ingested document as a PDF file.",
            PayloadDoc:  `{"document_id": string, "title": string (optional)}`,
        },
    }
}

// RenderToolSchema formats the catalog for inclusion in the planner prompt.
func RenderToolSchema(tools []Tool) string {
    var b strings.Builder
    for _, t := range tools {
        fmt.Fprintf(&b, "- %s: %s\n  payload: %s\n", t.Name, t.Description, t.PayloadDoc)
    }
    return b.String()
}

// ToolNames returns the connector names the planner is allowed to call.
func ToolNames(tools []Tool) []string {
    names := make([]string, len(tools))
    for i, t := range tools {
        names[i] = t.Name
    }
    return names
}
