package llm_service

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "net/http"
    "time"
)

const anthropicAPIURL = "https://api.anthropic.com/v1/messages"

type AnthropicService struct {
    httpClient *http.Client
    apiKey     string
    modelName  string
    maxTokens  int
    logger     *slog.Logger
}

func NewAnthropicService(apiKey, modelName string, maxTokens int, timeout time.Duration, logger *slog.Logger) *AnthropicService {
    if maxTokens <= 0 {
        maxTokens = 1024
    }
    return &AnthropicService{
        httpClient: &http.Client{Timeout: timeout},
        apiKey:     apiKey,
        modelName:  modelName,
        maxTokens:  maxTokens,
        logger:     logger,
    }
}

func (s *AnthropicService) CallLLM(ctx context.Context, prompt string) (string, error) {
    maxRetries := 3
    retryDelay := 5 * time.Second

    for attempt := 1; attempt <= maxRetries; attempt++ {
        response, err := s.callAnthropic(ctx, prompt)
        if err == nil {
            return response, nil
        }

        if attempt == maxRetries {
            s.logger.Error("Error calling Anthropic API after multiple attempts",
                slog.Int("attempts", maxRetries),
                slog.String("error", err.Error()))
            return "", fmt.Errorf("failed to call Anthropic API after %d attempts: %w", maxRetries, err)
        }

        s.logger.Warn("Attempt failed, retrying",
            slog.Int("attempt", attempt),
            slog.Duration("retryDelay", retryDelay),
            slog.String("error", err.Error()))

        select {
        case <-ctx.Done():
            return "", ctx.Err()
        case <-time.After(retryDelay):
        }
    }

    return "", fmt.Errorf("failed to call Anthropic API after exhausting all retry attempts")
}

func (s *AnthropicService) callAnthropic(ctx context.Context, prompt string) (string, error) {
    requestBody, err := json.Marshal(map[string]interface{}{
        "model": s.modelName,
        "messages": []map[string]string{
            {"role": "user", "content": prompt},
        },
        "max_tokens": s.maxTokens,
    })
    if err != nil {
        return "", fmt.Errorf("error marshaling request body: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, "POST", anthropicAPIURL, bytes.NewBuffer(requestBody))
    if err != nil {
        return "", fmt.Errorf("error creating request: %w", err)
    }

    req.Header.Set("x-api-key", s.apiKey)
    req.Header.Set("anthropic-version", "2023-06-01")
    req.Header.Set("Content-Type", "application/json")

    resp, err := s.httpClient.Do(req)
    if err != nil {
        return "", fmt.Errorf("error making request: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        return "", fmt.Errorf("Anthropic API returned status %d", resp.StatusCode)
    }

    var result map[string]interface{}
    if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
        return "", fmt.Errorf("error decoding response: %w", err)
    }

    content, ok := result["content"].([]interface{})
    if !ok || len(content) == 0 {
        return "", fmt.Errorf("unexpected response format from Anthropic API")
    }

    message, ok := content[0].(map[string]interface{})
    if !ok {
        return "", fmt.Errorf("unexpected message format in Anthropic API response")
    }

    text, ok := message["text"].(string)
    if !ok {
        return "", fmt.Errorf("text not found in Anthropic API response")
    }

    return text, nil
}
