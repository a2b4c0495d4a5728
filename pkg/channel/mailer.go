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

// MailerPublisher creates and dispatches a campaign in the email marketing
// system. The campaign subject is the draft title, the body becomes the
// campaign content, and the external reference is the campaign id.
type MailerPublisher struct {
	baseURL string
	client  *http.Client
}

func NewMailerPublisher(baseURL string, timeout time.Duration) *MailerPublisher {
	return &MailerPublisher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *MailerPublisher) Channel() models.Channel {
	return models.ChannelMailer
}

func (p *MailerPublisher) Publish(ctx context.Context, draft models.ContentDraft, cred models.ChannelCredential, idempotencyKey string) (string, error) {
	payload := map[string]interface{}{
		"subject":  draft.Title,
		"content":  draft.Body,
		"language": draft.Language,
		"list_id":  cred.ExternalAccountID,
		"send_now": true,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/campaigns", bytes.NewBuffer(payloadBytes))
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
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusAccepted:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", AuthRequired(fmt.Errorf("mailer api status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusConflict:
		// The idempotency key was already consumed: the campaign exists.
		// Fall through and read the id from the response.
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", Transient(fmt.Errorf("mailer api status %d", resp.StatusCode))
	default:
		return "", Permanent(fmt.Errorf("mailer api status %d: %s", resp.StatusCode, truncateForLog(body)))
	}

	var result struct {
		CampaignID string `json:"campaign_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.CampaignID == "" {
		return "", Permanent(fmt.Errorf("malformed mailer response: %s", truncateForLog(body)))
	}

	return result.CampaignID, nil
}
