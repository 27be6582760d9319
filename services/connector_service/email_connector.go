package connector_service

import (
    "context"
    "encoding/json"
    "log/slog"

    "github.com/sendgrid/rest"
    "github.com/sendgrid/sendgrid-go"
    "github.com/sendgrid/sendgrid-go/helpers/mail"

    "github.com/amsaid/docpilot/agent_type"
)

type SendGridCredentials struct {
    APIKey    string
    FromEmail string
    FromName  string
}

// mailSender is the subset of the SendGrid client the connector uses.
type mailSender interface {
    SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailConnector sends notification emails through SendGrid. The sender
// address must be verified with SendGrid or every send is rejected.
type EmailConnector struct {
    client mailSender
    from   *mail.Email
    logger *slog.Logger
}

func NewEmailConnector(creds SendGridCredentials, logger *slog.Logger) *EmailConnector {
    return &EmailConnector{
        client: sendgrid.NewSendClient(creds.APIKey),
        from:   mail.NewEmail(creds.FromName, creds.FromEmail),
        logger: logger,
    }
}

func (c *EmailConnector) Name() string {
    return EmailConnectorName
}

func (c *EmailConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    var msg struct {
        To      string `json:"to"`
        Subject string `json:"subject"`
        Body    string `json:"body"`
    }
    if err := json.Unmarshal(req.Payload, &msg); err != nil {
        return agent_type.ConnectorPermanent("invalid email payload: %v", err)
    }
    if msg.To == "" || msg.Subject == "" || msg.Body == "" {
        return agent_type.ConnectorPermanent("email payload requires to, subject and body")
    }

    email := mail.NewSingleEmail(c.from, msg.Subject, mail.NewEmail("", msg.To), msg.Body, "")
    resp, err := c.client.SendWithContext(ctx, email)
    if err != nil {
        if isTransport(err) || ctx.Err() != nil {
            return agent_type.ConnectorRetryable("email delivery failed: %v", err)
        }
        return agent_type.ConnectorPermanent("email delivery failed: %v", err)
    }

    switch {
    case resp.StatusCode >= 200 && resp.StatusCode < 300:
        c.logger.Info("Email sent",
            slog.String("to", msg.To),
            slog.Int("status_code", resp.StatusCode))
        payload, err := json.Marshal(map[string]interface{}{
            "to":          msg.To,
            "subject":     msg.Subject,
            "status_code": resp.StatusCode,
        })
        if err != nil {
            return agent_type.ConnectorPermanent("error marshaling result: %v", err)
        }
        return agent_type.ConnectorOK(payload)
    case resp.StatusCode == 429 || resp.StatusCode >= 500:
        return agent_type.ConnectorRetryable("email delivery failed with status %d", resp.StatusCode)
    default:
        return agent_type.ConnectorPermanent("email rejected with status %d: %s", resp.StatusCode, resp.Body)
    }
}
