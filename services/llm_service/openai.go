package llm_service

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "log/slog"
    "net/http"
    "time"
)

type OpenAIService struct {
    httpClient *http.Client
    apiURL     string
    apiKey     string
    modelName  string
    logger     *slog.Logger
}

func NewOpenAIService(apiURL, apiKey, modelName string, timeout time.Duration, logger *slog.Logger) *OpenAIService {
    return &OpenAIService{
        httpClient: &http.Client{Timeout: timeout},
        apiURL:     apiURL,
        apiKey:     apiKey,
        modelName:  modelName,
        logger:     logger,
    }
}

type OpenAIHttpError struct {
    StatusCode int
    ErrorType  string
    Message    string
    RawBody    string
}

func (e *OpenAIHttpError) Error() string {
    return fmt.Sprintf("OpenAI API error (status %d, type %s): %s", e.StatusCode, e.ErrorType, e.Message)
}

func (s *OpenAIService) CallLLM(ctx context.Context, prompt string) (string, error) {
    maxRetries := 3
    retryDelay := 5 * time.Second

    for attempt := 1; attempt <= maxRetries; attempt++ {
        response, err := s.callOpenAI(ctx, prompt)
        if err == nil {
            return response, nil
        }

        if httpErr, ok := err.(*OpenAIHttpError); ok {
            if httpErr.StatusCode == 429 {
                s.logger.Error("OpenAI API quota exceeded",
                    slog.String("error_type", httpErr.ErrorType),
                    slog.String("error_message", httpErr.Message),
                    slog.String("model", s.modelName),
                    slog.Int("status_code", httpErr.StatusCode))
                return "", fmt.Errorf("OpenAI quota exceeded: %s (Type: %s)", httpErr.Message, httpErr.ErrorType)
            }

            s.logger.Error("OpenAI API error",
                slog.Int("attempt", attempt),
                slog.Int("status_code", httpErr.StatusCode),
                slog.String("error_type", httpErr.ErrorType),
                slog.String("error_message", httpErr.Message))
        }

        if attempt == maxRetries {
            s.logger.Error("Error calling OpenAI API after multiple attempts",
                slog.Int("attempts", maxRetries),
                slog.String("error", err.Error()),
                slog.String("model", s.modelName))
            return "", fmt.Errorf("failed to call OpenAI API after %d attempts: %w", maxRetries, err)
        }

        s.logger.Warn("Attempt failed, retrying",
            slog.Int("attempt", attempt),
            slog.Duration("retry_delay", retryDelay),
            slog.String("error", err.Error()))

        select {
        case <-ctx.Done():
            return "", ctx.Err()
        case <-time.After(retryDelay):
        }
    }

    return "", fmt.Errorf("failed to call OpenAI API after exhausting all retry attempts")
}

func (s *OpenAIService) callOpenAI(ctx context.Context, prompt string) (string, error) {
    messages := []map[string]string{
        {"role": "system", "content": "You are a helpful assistant."},
        {"role": "user", "content": prompt},
    }

    requestBody, err := json.Marshal(map[string]interface{}{
        "model":    s.modelName,
        "messages": messages,
    })
    if err != nil {
        return "", fmt.Errorf("error marshaling request body: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewBuffer(requestBody))
    if err != nil {
        return "", fmt.Errorf("error creating request: %w", err)
    }

    req.Header.Set("Authorization", "Bearer "+s.apiKey)
    req.Header.Set("Content-Type", "application/json")

    resp, err := s.httpClient.Do(req)
    if err != nil {
        return "", fmt.Errorf("error making request: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        rawBody, apiErr := extractOpenAIErrorDetails(resp)
        httpErr := &OpenAIHttpError{
            StatusCode: resp.StatusCode,
            RawBody:    rawBody,
        }
        if apiErr != nil {
            httpErr.Message = apiErr.Error.Message
            httpErr.ErrorType = apiErr.Error.Type
        } else {
            httpErr.Message = "Unknown error"
            httpErr.ErrorType = "unknown"
        }
        return "", httpErr
    }

    var result struct {
        Choices []struct {
            Message struct {
                Content string `json:"content"`
            } `json:"message"`
        } `json:"choices"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
        return "", fmt.Errorf("error decoding response: %w", err)
    }
    if len(result.Choices) == 0 {
        return "", fmt.Errorf("no choices in OpenAI API response")
    }
    return result.Choices[0].Message.Content, nil
}

type openAIErrorResponse struct {
    Error struct {
        Message string `json:"message"`
        Type    string `json:"type"`
    } `json:"error"`
}

func extractOpenAIErrorDetails(resp *http.Response) (string, *openAIErrorResponse) {
    body, err := io.ReadAll(resp.Body)
    if err != nil {
        return "", nil
    }
    var apiErr openAIErrorResponse
    if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
        return string(body), nil
    }
    return string(body), &apiErr
}
