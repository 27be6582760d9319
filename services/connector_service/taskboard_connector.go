package connector_service

import (
    "context"
    "encoding/json"
    "io"
    "log/slog"
    "net/http"
    "net/url"
    "strings"

    "github.com/dghubble/oauth1"

    "github.com/amsaid/docpilot/agent_type"
)

const trelloCardsURL = "https://api.trello.com/1/cards"

type TrelloCredentials struct {
    APIKey        string
    APISecret     string
    AccessToken   string
    AccessSecret  string
    DefaultListID string
}

// TaskBoardConnector creates cards on a Trello board.
type TaskBoardConnector struct {
    httpClient    *http.Client
    defaultListID string
    logger        *slog.Logger
}

func NewTaskBoardConnector(creds TrelloCredentials, logger *slog.Logger) *TaskBoardConnector {
    config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
    token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
    return &TaskBoardConnector{
        httpClient:    config.Client(oauth1.NoContext, token),
        defaultListID: creds.DefaultListID,
        logger:        logger,
    }
}

func (c *TaskBoardConnector) Name() string {
    return TaskBoardConnectorName
}

func (c *TaskBoardConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    var card struct {
        ListID      string `json:"list_id"`
        Name        string `json:"name"`
        Description string `json:"description"`
        Due         string `json:"due"`
    }
    if err := json.Unmarshal(req.Payload, &card); err != nil {
        return agent_type.ConnectorPermanent("invalid task board payload: %v", err)
    }
    if card.Name == "" {
        return agent_type.ConnectorPermanent("task board payload requires name")
    }
    listID := card.ListID
    if listID == "" {
        listID = c.defaultListID
    }
    if listID == "" {
        return agent_type.ConnectorPermanent("no list_id given and no default list configured")
    }

    form := url.Values{}
    form.Set("idList", listID)
    form.Set("name", card.Name)
    form.Set("desc", card.Description)
    if card.Due != "" {
        form.Set("due", card.Due)
    }

    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, trelloCardsURL,
        strings.NewReader(form.Encode()))
    if err != nil {
        return agent_type.ConnectorPermanent("error creating request: %v", err)
    }
    httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

    resp, err := c.httpClient.Do(httpReq)
    if err != nil {
        return agent_type.ConnectorRetryable("task board request failed: %v", err)
    }
    defer resp.Body.Close()

    body, err := io.ReadAll(resp.Body)
    if err != nil {
        return agent_type.ConnectorRetryable("error reading response: %v", err)
    }

    switch {
    case resp.StatusCode == http.StatusOK:
    case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
        return agent_type.ConnectorRetryable("task board API returned %d: %s", resp.StatusCode, string(body))
    default:
        return agent_type.ConnectorPermanent("task board API returned %d: %s", resp.StatusCode, string(body))
    }

    var created struct {
        ID       string `json:"id"`
        ShortURL string `json:"shortUrl"`
    }
    if err := json.Unmarshal(body, &created); err != nil {
        return agent_type.ConnectorPermanent("error parsing response: %v", err)
    }

    c.logger.Info("Task board card created",
        slog.String("card_id", created.ID),
        slog.String("list_id", listID))

    payload, err := json.Marshal(map[string]string{
        "card_id": created.ID,
        "url":     created.ShortURL,
    })
    if err != nil {
        return agent_type.ConnectorPermanent("error marshaling result: %v", err)
    }
    return agent_type.ConnectorOK(payload)
}
