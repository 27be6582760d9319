package connector_service

import (
    "context"
    "crypto/sha256"
    "encoding/json"
    "fmt"
    "log/slog"

    "golang.org/x/oauth2"
    "golang.org/x/oauth2/google"
    "google.golang.org/api/calendar/v3"
    "google.golang.org/api/googleapi"
    "google.golang.org/api/option"

    "github.com/amsaid/docpilot/agent_type"
)

type CalendarConnector struct {
    service    *calendar.Service
    calendarID string
    logger     *slog.Logger
}

type CalendarCredentials struct {
    ClientID     string
    ClientSecret string
    RefreshToken string
    CalendarID   string
}

func NewCalendarConnector(ctx context.Context, creds CalendarCredentials, logger *slog.Logger) (*CalendarConnector, error) {
    if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
        return nil, fmt.Errorf("missing Google Calendar credentials")
    }

    conf := &oauth2.Config{
        ClientID:     creds.ClientID,
        ClientSecret: creds.ClientSecret,
        Endpoint:     google.Endpoint,
        Scopes:       []string{calendar.CalendarScope},
    }
    tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})

    service, err := calendar.NewService(ctx, option.WithTokenSource(tokenSource))
    if err != nil {
        return nil, fmt.Errorf("failed to create calendar service: %w", err)
    }

    calendarID := creds.CalendarID
    if calendarID == "" {
        calendarID = "primary"
    }
    return &CalendarConnector{service: service, calendarID: calendarID, logger: logger}, nil
}

func (c *CalendarConnector) Name() string {
    return CalendarConnectorName
}

func (c *CalendarConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    var event struct {
        Title       string   `json:"title"`
        Description string   `json:"description"`
        Start       string   `json:"start"`
        End         string   `json:"end"`
        Timezone    string   `json:"timezone"`
        Attendees   []string `json:"attendees"`
    }
    if err := json.Unmarshal(req.Payload, &event); err != nil {
        return agent_type.ConnectorPermanent("invalid calendar payload: %v", err)
    }
    if event.Title == "" || event.Start == "" || event.End == "" {
        return agent_type.ConnectorPermanent("calendar payload requires title, start and end")
    }

    entry := &calendar.Event{
        // The event ID is derived from the idempotency key, so replaying
        // the same request cannot create a second event: Google rejects
        // the duplicate ID and we treat that as already-created.
        Id:          eventID(req.IdempotencyKey),
        Summary:     event.Title,
        Description: event.Description,
        Start:       &calendar.EventDateTime{DateTime: event.Start, TimeZone: event.Timezone},
        End:         &calendar.EventDateTime{DateTime: event.End, TimeZone: event.Timezone},
    }
    for _, email := range event.Attendees {
        entry.Attendees = append(entry.Attendees, &calendar.EventAttendee{Email: email})
    }

    created, err := c.service.Events.Insert(c.calendarID, entry).Context(ctx).Do()
    if err != nil {
        if apiErr, ok := err.(*googleapi.Error); ok {
            switch {
            case apiErr.Code == 409:
                // Already created by a prior attempt with this key.
                existing, getErr := c.service.Events.Get(c.calendarID, entry.Id).Context(ctx).Do()
                if getErr != nil {
                    return agent_type.ConnectorRetryable("event exists but could not be fetched: %v", getErr)
                }
                created = existing
            case apiErr.Code == 429 || apiErr.Code >= 500:
                return agent_type.ConnectorRetryable("calendar API returned %d: %v", apiErr.Code, apiErr)
            default:
                return agent_type.ConnectorPermanent("calendar API returned %d: %v", apiErr.Code, apiErr)
            }
        } else if isTransport(err) || ctx.Err() != nil {
            return agent_type.ConnectorRetryable("calendar request failed: %v", err)
        } else {
            return agent_type.ConnectorPermanent("calendar request failed: %v", err)
        }
    }

    c.logger.Info("Calendar event scheduled",
        slog.String("event_id", created.Id),
        slog.String("summary", created.Summary))

    payload, err := json.Marshal(map[string]interface{}{
        "event_id":  created.Id,
        "html_link": created.HtmlLink,
        "start":     event.Start,
        "end":       event.End,
    })
    if err != nil {
        return agent_type.ConnectorPermanent("error marshaling result: %v", err)
    }
    return agent_type.ConnectorOK(payload)
}

// eventID maps the idempotency key into Google's event ID alphabet
// (base32hex, lowercase).
func eventID(key string) string {
    const alphabet = "abcdefghijklmnopqrstuv0123456789"
    sum := sha256.Sum256([]byte(key))
    id := make([]byte, 26)
    for i := range id {
        id[i] = alphabet[int(sum[i])%len(alphabet)]
    }
    return string(id)
}
