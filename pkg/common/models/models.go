package models

import (
	"time"
)

// Channel is an external publishing destination.
type Channel string

const (
	ChannelFacebook Channel = "facebook"
	ChannelWebsite  Channel = "website"
	ChannelMailer   Channel = "mailer"
)

// Language is an ISO 639-1 content language code.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
	LanguageSpanish Language = "es"
)

// Pair identifies one (language, channel) rendering of a campaign.
type Pair struct {
	Language Language `json:"language"`
	Channel  Channel  `json:"channel"`
}

// PropertySummary is the listing snapshot handed over by the CRM layer.
type PropertySummary struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Location    string            `json:"location"`
	Price       string            `json:"price"`
	Bedrooms    int               `json:"bedrooms,omitempty"`
	Bathrooms   int               `json:"bathrooms,omitempty"`
	AreaSqft    int               `json:"area_sqft,omitempty"`
	Features    []string          `json:"features,omitempty"`
	ListingURL  string            `json:"listing_url,omitempty"`
	AgentName   string            `json:"agent_name,omitempty"`
	AgentPhone  string            `json:"agent_phone,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// ContentDraft is the channel-facing view of a content item.
type ContentDraft struct {
	Language Language `json:"language"`
	Channel  Channel  `json:"channel"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// ChannelCredential is the decrypted credential handed to a publisher for
// the duration of a single call. It is never persisted in this form.
type ChannelCredential struct {
	AccessToken       string
	ExternalAccountID string
	Scopes            []string
}

// Command requests consumed from the CRM layer.

type CreatePostRequest struct {
	PropertyID string          `json:"property_id"`
	OwnerID    string          `json:"owner_id"`
	Property   PropertySummary `json:"property"`
	Pairs      []Pair          `json:"pairs"`
}

type EditContentItemRequest struct {
	Title    *string   `json:"title,omitempty"`
	Body     *string   `json:"body,omitempty"`
	Hashtags *[]string `json:"hashtags,omitempty"`
	Version  int64     `json:"version"`
}

type MarkReadyRequest struct {
	Version int64 `json:"version"`
}

type PublishRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

type ConnectChannelRequest struct {
	OwnerID string  `json:"owner_id"`
	Channel Channel `json:"channel"`
}

// GenerationResult reports the per-pair outcome of one generation batch.
type GenerationResult struct {
	Pair      Pair   `json:"pair"`
	ItemID    string `json:"item_id,omitempty"`
	Generated bool   `json:"generated"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// ItemOutcome is the per-item entry in a PublishSummary.
type ItemOutcome struct {
	ItemID            string   `json:"item_id"`
	Language          Language `json:"language"`
	Channel           Channel  `json:"channel"`
	Status            string   `json:"status"` // published, failed, skipped
	ErrorKind         string   `json:"error_kind,omitempty"`
	Error             string   `json:"error,omitempty"`
	ExternalReference string   `json:"external_reference,omitempty"`
	Attempts          int      `json:"attempts"`
}

// PublishSummary enumerates what happened to every item of a publish run.
// A mix of published and failed entries is a valid terminal result, not an
// error.
type PublishSummary struct {
	PostID        string        `json:"post_id"`
	OverallStatus string        `json:"overall_status"`
	Items         []ItemOutcome `json:"items"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Event is the envelope for kafka traffic in and out of the service.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
