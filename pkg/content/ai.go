package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
)

// Generation error kinds, mirroring what the upstream text service can do
// to us.
const (
	ErrKindTimeout     = "timeout"
	ErrKindRateLimited = "rate_limited"
	ErrKindUnavailable = "unavailable"
	ErrKindMalformed   = "malformed"
	ErrKindValidation  = "validation"
)

// GenerationError tags an AI-service failure with its kind so callers can
// decide which pairs are worth retrying.
type GenerationError struct {
	Kind string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func GenerationKindOf(err error) string {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindUnavailable
}

// Completion is the raw output of the text service. The text is untrusted
// for format and is always re-validated against channel rules.
type Completion struct {
	Text       string
	Confidence float64
}

// TextGenerator abstracts the external AI text-completion service.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string, maxLength int, language models.Language) (Completion, error)
}

// AIClient talks to an OpenAI-compatible chat completion endpoint.
type AIClient struct {
	apiKey    string
	baseURL   string
	modelName string
	client    *http.Client
}

func NewAIClient(apiKey, baseURL, modelName string, timeout time.Duration) *AIClient {
	return &AIClient{
		apiKey:    apiKey,
		baseURL:   baseURL,
		modelName: modelName,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *AIClient) GenerateContent(ctx context.Context, prompt string, maxLength int, language models.Language) (Completion, error) {
	payload := map[string]interface{}{
		"model": c.modelName,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.7,
	}
	if maxLength > 0 {
		// Rough character-to-token budget; the response is length-checked
		// against channel rules afterwards regardless.
		payload["max_tokens"] = maxLength/3 + 256
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, &GenerationError{Kind: ErrKindMalformed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return Completion{}, &GenerationError{Kind: ErrKindMalformed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		kind := ErrKindUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrKindTimeout
		}
		return Completion{}, &GenerationError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, &GenerationError{Kind: ErrKindUnavailable, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return Completion{}, &GenerationError{Kind: ErrKindRateLimited, Err: fmt.Errorf("ai service status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return Completion{}, &GenerationError{Kind: ErrKindUnavailable, Err: fmt.Errorf("ai service status %d", resp.StatusCode)}
	default:
		return Completion{}, &GenerationError{Kind: ErrKindMalformed, Err: fmt.Errorf("ai service status %d: %s", resp.StatusCode, body)}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Completion{}, &GenerationError{Kind: ErrKindMalformed, Err: err}
	}
	if len(result.Choices) == 0 {
		return Completion{}, &GenerationError{Kind: ErrKindMalformed, Err: errors.New("no choices in ai response")}
	}

	confidence := 1.0
	if result.Choices[0].FinishReason != "stop" {
		confidence = 0.5
	}

	return Completion{Text: result.Choices[0].Message.Content, Confidence: confidence}, nil
}
