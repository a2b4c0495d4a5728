package post

import (
	"fmt"
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
)

// Aggregate behaviour lives on the Post struct itself so the transition
// rules can be enforced (and tested) without a database round trip. The
// repository persists whatever these methods produce under the optimistic
// version check.

func (p *Post) ItemByID(itemID string) *ContentItem {
	for i := range p.Items {
		if p.Items[i].ID == itemID {
			return &p.Items[i]
		}
	}
	return nil
}

func (p *Post) ItemByPair(pair models.Pair) *ContentItem {
	for i := range p.Items {
		if p.Items[i].Language == pair.Language && p.Items[i].Channel == pair.Channel {
			return &p.Items[i]
		}
	}
	return nil
}

// UpsertItem adds a new item for a pair or replaces the content of the
// existing one, preserving its identity. Replacement clears the external
// reference and resets the item to draft. Items that are publishing or
// published cannot be replaced.
func (p *Post) UpsertItem(pair models.Pair, title, body string, hashtags []string, aiGenerated bool, aiPrompt string, newID func() string) (*ContentItem, error) {
	if p.Archived {
		return nil, ErrArchived
	}

	now := time.Now().UTC()
	existing := p.ItemByPair(pair)
	if existing == nil {
		p.Items = append(p.Items, ContentItem{
			ID:          newID(),
			PostID:      p.ID,
			Language:    pair.Language,
			Channel:     pair.Channel,
			Title:       title,
			Body:        body,
			Hashtags:    hashtags,
			AIGenerated: aiGenerated,
			AIPrompt:    aiPrompt,
			Status:      StatusDraft,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		return p.ItemByPair(pair), nil
	}

	switch existing.Status {
	case StatusDraft, StatusReady, StatusFailed:
	default:
		return nil, fmt.Errorf("item %s is %s: %w", existing.ID, existing.Status, ErrInvalidTransition)
	}

	existing.Title = title
	existing.Body = body
	existing.Hashtags = hashtags
	existing.AIGenerated = aiGenerated
	existing.AIPrompt = aiPrompt
	existing.ExternalReference = ""
	existing.Status = StatusDraft
	existing.UpdatedAt = now
	return existing, nil
}

// EditItem applies a human edit to an item's content. Edits are allowed in
// draft, ready and failed; an edited ready item drops back to draft so it is
// re-reviewed before the next publish.
func (p *Post) EditItem(itemID string, title, body *string, hashtags *[]string) (*ContentItem, error) {
	if p.Archived {
		return nil, ErrArchived
	}
	item := p.ItemByID(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}

	switch item.Status {
	case StatusDraft, StatusReady, StatusFailed:
	default:
		return nil, fmt.Errorf("item %s is %s: %w", item.ID, item.Status, ErrInvalidTransition)
	}

	if title != nil {
		item.Title = *title
	}
	if body != nil {
		item.Body = *body
	}
	if hashtags != nil {
		item.Hashtags = *hashtags
	}
	item.AIGenerated = false
	item.Status = StatusDraft
	item.UpdatedAt = time.Now().UTC()
	return item, nil
}

// MarkItemReady moves an item from draft or failed to ready. Content
// validation is the caller's responsibility and must happen at call time.
func (p *Post) MarkItemReady(itemID string) (*ContentItem, error) {
	if p.Archived {
		return nil, ErrArchived
	}
	item := p.ItemByID(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}

	switch item.Status {
	case StatusDraft, StatusFailed:
		item.Status = StatusReady
		item.UpdatedAt = time.Now().UTC()
		return item, nil
	default:
		return nil, fmt.Errorf("item %s is %s: %w", item.ID, item.Status, ErrInvalidTransition)
	}
}

// ApplyAttempt folds a publish attempt outcome into the item. It is the
// only path by which an item reaches publishing, published or failed.
// Replaying an already-seen sequence is a no-op.
func (p *Post) ApplyAttempt(itemID string, attempt Attempt) (*ContentItem, bool, error) {
	item := p.ItemByID(itemID)
	if item == nil {
		return nil, false, ErrItemNotFound
	}

	for _, seen := range item.Attempts {
		if seen.Sequence == attempt.Sequence {
			return item, false, nil
		}
	}

	switch attempt.Outcome {
	case OutcomePublishing:
		// ready is the normal entry; failed re-enters publishing when the
		// coordinator auto-retries a transient outcome within one run.
		if item.Status != StatusReady && item.Status != StatusFailed {
			return nil, false, fmt.Errorf("item %s is %s: %w", item.ID, item.Status, ErrInvalidTransition)
		}
		item.Status = StatusPublishing
	case OutcomePublished:
		if item.Status != StatusPublishing && item.Status != StatusReady {
			return nil, false, fmt.Errorf("item %s is %s: %w", item.ID, item.Status, ErrInvalidTransition)
		}
		item.Status = StatusPublished
		item.ExternalReference = attempt.ExternalReference
	case OutcomeFailed:
		if item.Status != StatusPublishing && item.Status != StatusReady {
			return nil, false, fmt.Errorf("item %s is %s: %w", item.ID, item.Status, ErrInvalidTransition)
		}
		item.Status = StatusFailed
	default:
		return nil, false, fmt.Errorf("unknown attempt outcome %q: %w", attempt.Outcome, ErrInvalidTransition)
	}

	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now().UTC()
	}
	item.Attempts = append(item.Attempts, attempt)
	item.UpdatedAt = time.Now().UTC()
	return item, true, nil
}

// OverallStatus derives the post status from its items. It is never stored
// authoritatively.
func (p *Post) OverallStatus() string {
	if p.Archived {
		return OverallArchived
	}
	if len(p.Items) == 0 {
		return OverallDraft
	}

	var draft, ready, publishing, published, failed int
	for i := range p.Items {
		switch p.Items[i].Status {
		case StatusDraft:
			draft++
		case StatusReady:
			ready++
		case StatusPublishing:
			publishing++
		case StatusPublished:
			published++
		case StatusFailed:
			failed++
		}
	}

	switch {
	case publishing > 0:
		return OverallPublishing
	case draft > 0:
		return OverallDraft
	case failed == 0 && ready > 0:
		return OverallReady
	case failed == 0:
		return OverallPublished
	case published > 0:
		return OverallPartiallyPublished
	default:
		return OverallFailed
	}
}

// Terminal reports whether every item is in a terminal per-item state, the
// precondition for archival.
func (p *Post) Terminal() bool {
	for i := range p.Items {
		switch p.Items[i].Status {
		case StatusPublished, StatusFailed:
		default:
			return false
		}
	}
	return true
}
