package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
)

const facebookGraphURL = "https://graph.facebook.com/v19.0"

// FacebookPublisher posts to a page feed through the Graph API.
type FacebookPublisher struct {
	baseURL string
	client  *http.Client
}

func NewFacebookPublisher(baseURL string, timeout time.Duration) *FacebookPublisher {
	if baseURL == "" {
		baseURL = facebookGraphURL
	}
	return &FacebookPublisher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *FacebookPublisher) Channel() models.Channel {
	return models.ChannelFacebook
}

func (p *FacebookPublisher) Publish(ctx context.Context, draft models.ContentDraft, cred models.ChannelCredential, idempotencyKey string) (string, error) {
	if cred.ExternalAccountID == "" {
		return "", AuthRequired(fmt.Errorf("no page bound to credential"))
	}

	message := RenderBodyWithHashtags(draft.Body, draft.Hashtags)

	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", cred.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/feed", p.baseURL, cred.ExternalAccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", Transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Transient(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyGraphError(resp.StatusCode, body)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.ID == "" {
		return "", Permanent(fmt.Errorf("malformed graph response: %s", truncateForLog(body)))
	}

	return result.ID, nil
}

func classifyGraphError(status int, body []byte) error {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	err := fmt.Errorf("graph api status %d code %d: %s", status, payload.Error.Code, payload.Error.Message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthRequired(err)
	// Graph error 190 is an expired or invalidated token regardless of the
	// HTTP status it rides on.
	case payload.Error.Code == 190:
		return AuthRequired(err)
	case status == http.StatusTooManyRequests || payload.Error.Code == 4 || payload.Error.Code == 32:
		return Transient(err)
	case status >= 500:
		return Transient(err)
	default:
		return Permanent(err)
	}
}

func truncateForLog(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
