package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
)

// WebsitePublisher pushes listings to the public website's feed API.
type WebsitePublisher struct {
	baseURL string
	client  *http.Client
}

func NewWebsitePublisher(baseURL string, timeout time.Duration) *WebsitePublisher {
	return &WebsitePublisher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *WebsitePublisher) Channel() models.Channel {
	return models.ChannelWebsite
}

func (p *WebsitePublisher) Publish(ctx context.Context, draft models.ContentDraft, cred models.ChannelCredential, idempotencyKey string) (string, error) {
	payload := map[string]interface{}{
		"title":    draft.Title,
		"body":     draft.Body,
		"language": draft.Language,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/listings/posts", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", Transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Transient(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", AuthRequired(fmt.Errorf("website api status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", Transient(fmt.Errorf("website api status %d", resp.StatusCode))
	default:
		return "", Permanent(fmt.Errorf("website api status %d: %s", resp.StatusCode, truncateForLog(body)))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.ID == "" {
		return "", Permanent(fmt.Errorf("malformed website response: %s", truncateForLog(body)))
	}

	return result.ID, nil
}
