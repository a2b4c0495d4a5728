package post

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Post{}, &ContentItem{})
}

func (r *Repository) Create(ctx context.Context, p *Post) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*Post, error) {
	var p Post
	result := r.db.WithContext(ctx).Preload("Items").First(&p, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &p, result.Error
}

// Update persists the aggregate under the optimistic version check. The
// caller's in-memory version must match the stored one; on success the
// stored version is bumped and reflected back into p. A stale version
// yields ErrConcurrentModification without touching any row.
func (r *Repository) Update(ctx context.Context, p *Post) error {
	expected := p.Version
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Post{}).
			Where("id = ? AND version = ?", p.ID, expected).
			Updates(map[string]interface{}{
				"version":      expected + 1,
				"scheduled_at": p.ScheduledAt,
				"archived":     p.Archived,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConcurrentModification
		}

		for i := range p.Items {
			if err := tx.Save(&p.Items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Version = expected + 1
	p.UpdatedAt = now
	return nil
}

// ListDueScheduled returns posts whose scheduled_at has passed and that are
// not archived.
func (r *Repository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]Post, error) {
	var posts []Post
	query := r.db.WithContext(ctx).Preload("Items").
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ? AND archived = ?", now, false).
		Order("scheduled_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&posts).Error
	return posts, err
}
