package post

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// casRetries bounds the internal compare-and-swap loop used when folding
// attempt outcomes into the aggregate. Caller-supplied versions are never
// retried; this only covers the coordinator's own concurrent per-item
// writes.
const casRetries = 5

// Store is the persistence surface the service needs; *Repository is the
// production implementation. Update must enforce the optimistic version
// check and return ErrConcurrentModification on a stale write.
type Store interface {
	Create(ctx context.Context, p *Post) error
	Get(ctx context.Context, id string) (*Post, error)
	Update(ctx context.Context, p *Post) error
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]Post, error)
}

type Service struct {
	repo      Store
	validator *channel.Validator
}

func NewService(repo Store, validator *channel.Validator) *Service {
	return &Service{repo: repo, validator: validator}
}

func (s *Service) Create(ctx context.Context, req models.CreatePostRequest) (*Post, error) {
	if req.PropertyID == "" || req.OwnerID == "" {
		return nil, fmt.Errorf("property_id and owner_id are required")
	}

	p := &Post{
		ID:         uuid.New().String(),
		PropertyID: req.PropertyID,
		OwnerID:    req.OwnerID,
		Property:   datatypes.NewJSONType(req.Property),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating post: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Post, error) {
	return s.repo.Get(ctx, id)
}

// UpsertContentItem adds or replaces the item for a pair. A zero
// expectedVersion means "current version" and is used by the orchestrator;
// CRM callers always supply the version they read.
func (s *Service) UpsertContentItem(ctx context.Context, postID string, expectedVersion int64, pair models.Pair, title, body string, hashtags []string, aiGenerated bool, aiPrompt string) (*Post, *ContentItem, error) {
	p, err := s.repo.Get(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if expectedVersion != 0 && p.Version != expectedVersion {
		return nil, nil, ErrConcurrentModification
	}

	item, err := p.UpsertItem(pair, title, body, hashtags, aiGenerated, aiPrompt, func() string { return uuid.New().String() })
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, item, nil
}

func (s *Service) EditContentItem(ctx context.Context, postID, itemID string, req models.EditContentItemRequest) (*Post, *ContentItem, error) {
	p, err := s.repo.Get(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if req.Version != 0 && p.Version != req.Version {
		return nil, nil, ErrConcurrentModification
	}

	item, err := p.EditItem(itemID, req.Title, req.Body, req.Hashtags)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, item, nil
}

// MarkReady promotes a draft or failed item after re-validating its content
// against the channel rules at call time. Content that was valid when
// drafted may have gone stale relative to platform rules.
func (s *Service) MarkReady(ctx context.Context, postID, itemID string, expectedVersion int64) (*Post, *ContentItem, error) {
	p, err := s.repo.Get(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if expectedVersion != 0 && p.Version != expectedVersion {
		return nil, nil, ErrConcurrentModification
	}

	item := p.ItemByID(itemID)
	if item == nil {
		return nil, nil, ErrItemNotFound
	}
	if item.Status != StatusDraft && item.Status != StatusFailed {
		return nil, nil, fmt.Errorf("item %s is %s: %w", item.ID, item.Status, ErrInvalidTransition)
	}
	if err := s.validator.Validate(item.Draft()); err != nil {
		return nil, nil, err
	}

	if _, err := p.MarkItemReady(itemID); err != nil {
		return nil, nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, item, nil
}

// RecordAttempt folds an attempt outcome into the aggregate. Concurrent
// per-item writes from the publish fan-out are resolved by re-reading and
// re-applying under the version check; an already-seen sequence is a no-op.
func (s *Service) RecordAttempt(ctx context.Context, postID, itemID string, attempt Attempt) (*Post, error) {
	var lastErr error
	for i := 0; i < casRetries; i++ {
		p, err := s.repo.Get(ctx, postID)
		if err != nil {
			return nil, err
		}

		_, applied, err := p.ApplyAttempt(itemID, attempt)
		if err != nil {
			return nil, err
		}
		if !applied {
			return p, nil
		}

		err = s.repo.Update(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("recording attempt for item %s: %w", itemID, lastErr)
}

// Schedule stores a future publish time on the post.
func (s *Service) Schedule(ctx context.Context, postID string, at time.Time, expectedVersion int64) (*Post, error) {
	p, err := s.repo.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && p.Version != expectedVersion {
		return nil, ErrConcurrentModification
	}
	if p.Archived {
		return nil, ErrArchived
	}

	scheduled := at.UTC()
	p.ScheduledAt = &scheduled
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ClearSchedule removes a pending schedule. Used both by cancellation and
// by the scheduler once dispatch begins.
func (s *Service) ClearSchedule(ctx context.Context, postID string) (*Post, error) {
	p, err := s.repo.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.ScheduledAt == nil {
		return p, nil
	}
	p.ScheduledAt = nil
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]Post, error) {
	return s.repo.ListDueScheduled(ctx, now, limit)
}

// Archive is permitted only once every item is terminal.
func (s *Service) Archive(ctx context.Context, postID string, expectedVersion int64) (*Post, error) {
	p, err := s.repo.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && p.Version != expectedVersion {
		return nil, ErrConcurrentModification
	}
	if !p.Terminal() {
		return nil, ErrNotTerminal
	}

	p.Archived = true
	p.ScheduledAt = nil
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
