package connector_service

import (
    "context"
    "encoding/json"
    "errors"
    "log/slog"

    "github.com/slack-go/slack"

    "github.com/amsaid/docpilot/agent_type"
)

// slackClient is the subset of the Slack API the connector uses.
type slackClient interface {
    PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// MessagingConnector posts messages to a team channel.
type MessagingConnector struct {
    client         slackClient
    defaultChannel string
    logger         *slog.Logger
}

func NewMessagingConnector(botToken, defaultChannel string, logger *slog.Logger) *MessagingConnector {
    return &MessagingConnector{
        client:         slack.New(botToken),
        defaultChannel: defaultChannel,
        logger:         logger,
    }
}

func (c *MessagingConnector) Name() string {
    return MessagingConnectorName
}

func (c *MessagingConnector) Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult {
    var msg struct {
        Channel string `json:"channel"`
        Text    string `json:"text"`
    }
    if err := json.Unmarshal(req.Payload, &msg); err != nil {
        return agent_type.ConnectorPermanent("invalid messaging payload: %v", err)
    }
    if msg.Text == "" {
        return agent_type.ConnectorPermanent("messaging payload requires text")
    }
    channel := msg.Channel
    if channel == "" {
        channel = c.defaultChannel
    }
    if channel == "" {
        return agent_type.ConnectorPermanent("no channel given and no default channel configured")
    }

    channelID, timestamp, err := c.client.PostMessageContext(ctx, channel,
        slack.MsgOptionText(msg.Text, false))
    if err != nil {
        var rateErr *slack.RateLimitedError
        if errors.As(err, &rateErr) {
            return agent_type.ConnectorRetryable("rate limited, retry after %s", rateErr.RetryAfter)
        }
        if isTransport(err) || ctx.Err() != nil {
            return agent_type.ConnectorRetryable("message delivery failed: %v", err)
        }
        return agent_type.ConnectorPermanent("message delivery failed: %v", err)
    }

    c.logger.Info("Message posted",
        slog.String("channel", channelID),
        slog.String("timestamp", timestamp))

    payload, err := json.Marshal(map[string]string{
        "channel":   channelID,
        "timestamp": timestamp,
    })
    if err != nil {
        return agent_type.ConnectorPermanent("error marshaling result: %v", err)
    }
    return agent_type.ConnectorOK(payload)
}
