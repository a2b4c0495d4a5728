package post

import (
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
	"gorm.io/datatypes"
)

// ContentItem statuses.
const (
	StatusDraft      = "draft"
	StatusReady      = "ready"
	StatusPublishing = "publishing"
	StatusPublished  = "published"
	StatusFailed     = "failed"
)

// Derived post statuses.
const (
	OverallDraft              = "draft"
	OverallReady              = "ready"
	OverallPublishing         = "publishing"
	OverallPublished          = "published"
	OverallPartiallyPublished = "partially_published"
	OverallFailed             = "failed"
	OverallArchived           = "archived"
)

// Attempt outcomes recorded per content item.
const (
	OutcomePublishing = "publishing"
	OutcomePublished  = "published"
	OutcomeFailed     = "failed"
)

// Attempt is one entry of an item's append-only attempt log.
type Attempt struct {
	Sequence          int       `json:"sequence"`
	Timestamp         time.Time `json:"timestamp"`
	Outcome           string    `json:"outcome"`
	ErrorKind         string    `json:"error_kind,omitempty"`
	Error             string    `json:"error,omitempty"`
	ExternalReference string    `json:"external_reference,omitempty"`
}

// Post is the marketing campaign aggregate for one property.
type Post struct {
	ID          string                                       `json:"id" gorm:"primaryKey;column:id"`
	PropertyID  string                                       `json:"property_id" gorm:"column:property_id;index"`
	OwnerID     string                                       `json:"owner_id" gorm:"column:owner_id;index"`
	Property    datatypes.JSONType[models.PropertySummary]   `json:"property" gorm:"column:property"`
	Items       []ContentItem                                `json:"content_items" gorm:"foreignKey:PostID;references:ID"`
	ScheduledAt *time.Time                                   `json:"scheduled_at,omitempty" gorm:"column:scheduled_at;index"`
	Archived    bool                                         `json:"archived" gorm:"column:archived"`
	Version     int64                                        `json:"version" gorm:"column:version"`
	CreatedAt   time.Time                                    `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time                                    `json:"updated_at" gorm:"column:updated_at"`
}

func (Post) TableName() string {
	return "marketing_posts"
}

// ContentItem is one (language, channel) rendering of the campaign copy.
type ContentItem struct {
	ID                string                         `json:"id" gorm:"primaryKey;column:id"`
	PostID            string                         `json:"post_id" gorm:"column:post_id;index:idx_content_items_pair,unique"`
	Language          models.Language                `json:"language" gorm:"column:language;index:idx_content_items_pair,unique"`
	Channel           models.Channel                 `json:"channel" gorm:"column:channel;index:idx_content_items_pair,unique"`
	Title             string                         `json:"title" gorm:"column:title"`
	Body              string                         `json:"body" gorm:"column:body"`
	Hashtags          datatypes.JSONSlice[string]    `json:"hashtags,omitempty" gorm:"column:hashtags"`
	AIGenerated       bool                           `json:"ai_generated" gorm:"column:ai_generated"`
	AIPrompt          string                         `json:"ai_prompt,omitempty" gorm:"column:ai_prompt"`
	Status            string                         `json:"status" gorm:"column:status"`
	ExternalReference string                         `json:"external_reference,omitempty" gorm:"column:external_reference"`
	Attempts          datatypes.JSONSlice[Attempt]   `json:"attempts" gorm:"column:attempts"`
	CreatedAt         time.Time                      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt         time.Time                      `json:"updated_at" gorm:"column:updated_at"`
}

func (ContentItem) TableName() string {
	return "marketing_content_items"
}

// Pair returns the item's (language, channel) identity.
func (c *ContentItem) Pair() models.Pair {
	return models.Pair{Language: c.Language, Channel: c.Channel}
}

// Draft returns the channel-facing view of the item.
func (c *ContentItem) Draft() models.ContentDraft {
	return models.ContentDraft{
		Language: c.Language,
		Channel:  c.Channel,
		Title:    c.Title,
		Body:     c.Body,
		Hashtags: []string(c.Hashtags),
	}
}

// NextAttemptSequence returns the sequence number the next attempt must use.
func (c *ContentItem) NextAttemptSequence() int {
	max := 0
	for _, a := range c.Attempts {
		if a.Sequence > max {
			max = a.Sequence
		}
	}
	return max + 1
}
