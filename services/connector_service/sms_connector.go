package connector_service

import (
    "context"
    "encoding/json"
    "log/slog"

    "github.com/twilio/twilio-go"
    twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

    "github.com/amsaid/docpilot/agent_type"
)

type TwilioCredentials struct {
    AccountSid string
    AuthToken  string
    FromNumber string
}

// SMSConnector sends text messages through Twilio.
type SMSConnector struct {
    client     *twilio.RestClient
    fromNumber string
    logger     *slog.Logger
}

func NewSMSConnector(creds TwilioCredentials, logger *slog.Logger) *SMSConnector {
    client := twilio.NewRestClientWithParams(twilio.ClientParams{
        Username: creds.AccountSid,
        Password: creds.AuthToken,
    })
    return &SMSConnector{client: client, fromNumber: creds.FromNumber, logger: logger}
}

func (c *SMSConnector) Name() string {
    return SMSConnectorName
}

func (c *SMSConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    var sms struct {
        To      string `json:"to"`
        Message string `json:"message"`
    }
    if err := json.Unmarshal(req.Payload, &sms); err != nil {
        return agent_type.ConnectorPermanent("invalid SMS payload: %v", err)
    }
    if sms.To == "" || sms.Message == "" {
        return agent_type.ConnectorPermanent("SMS payload requires to and message")
    }

    params := &twilioApi.CreateMessageParams{
        To:   &sms.To,
        From: &c.fromNumber,
        Body: &sms.Message,
    }

    message, err := c.client.Api.CreateMessage(params)
    if err != nil {
        c.logger.Error("Failed to send SMS",
            slog.String("error", err.Error()),
            slog.String("to", sms.To))
        if isTransport(err) || ctx.Err() != nil {
            return agent_type.ConnectorRetryable("failed to send SMS: %v", err)
        }
        return agent_type.ConnectorPermanent("failed to send SMS: %v", err)
    }

    result := map[string]interface{}{
        "message_sid": *message.Sid,
        "status":      *message.Status,
    }
    payload, err := json.Marshal(result)
    if err != nil {
        return agent_type.ConnectorPermanent("error marshaling result: %v", err)
    }
    return agent_type.ConnectorOK(payload)
}
