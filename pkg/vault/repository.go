package vault

import (
	"context"
	"errors"
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence surface the vault service needs.
type Store interface {
	Upsert(ctx context.Context, cred *CredentialModel) error
	Get(ctx context.Context, ownerID string, ch models.Channel) (*CredentialModel, error)
	UpdateStatus(ctx context.Context, ownerID string, ch models.Channel, status string) error
	List(ctx context.Context, ownerID string) ([]CredentialModel, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&CredentialModel{})
}

func (r *Repository) Upsert(ctx context.Context, cred *CredentialModel) error {
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "channel"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_ciphertext", "refresh_ciphertext", "expires_at",
			"scopes", "external_account_id", "status", "updated_at",
		}),
	}).Create(cred).Error
}

func (r *Repository) Get(ctx context.Context, ownerID string, ch models.Channel) (*CredentialModel, error) {
	var cred CredentialModel
	result := r.db.WithContext(ctx).First(&cred, "owner_id = ? AND channel = ?", ownerID, ch)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &cred, result.Error
}

func (r *Repository) UpdateStatus(ctx context.Context, ownerID string, ch models.Channel, status string) error {
	return r.db.WithContext(ctx).Model(&CredentialModel{}).
		Where("owner_id = ? AND channel = ?", ownerID, ch).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) List(ctx context.Context, ownerID string) ([]CredentialModel, error) {
	var creds []CredentialModel
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("channel asc").Find(&creds).Error
	return creds, err
}
