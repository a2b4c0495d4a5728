package vault

import (
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
	"gorm.io/datatypes"
)

// Credential statuses.
const (
	StatusActive   = "active"
	StatusExpiring = "expiring"
	StatusRevoked  = "revoked"
	StatusInvalid  = "invalid"
)

// CredentialModel is the persisted credential row. Token material is stored
// only as AEAD ciphertext.
type CredentialModel struct {
	ID                string                      `json:"id" gorm:"primaryKey;column:id"`
	OwnerID           string                      `json:"owner_id" gorm:"column:owner_id;index:idx_credentials_owner_channel,unique"`
	Channel           models.Channel              `json:"channel" gorm:"column:channel;index:idx_credentials_owner_channel,unique"`
	AccessCiphertext  []byte                      `json:"-" gorm:"column:access_ciphertext;type:bytea"`
	RefreshCiphertext []byte                      `json:"-" gorm:"column:refresh_ciphertext;type:bytea"`
	ExpiresAt         *time.Time                  `json:"expires_at,omitempty" gorm:"column:expires_at"`
	Scopes            datatypes.JSONSlice[string] `json:"scopes,omitempty" gorm:"column:scopes"`
	ExternalAccountID string                      `json:"external_account_id,omitempty" gorm:"column:external_account_id"`
	Status            string                      `json:"status" gorm:"column:status"`
	CreatedAt         time.Time                   `json:"created_at" gorm:"column:created_at"`
	UpdatedAt         time.Time                   `json:"updated_at" gorm:"column:updated_at"`
}

func (CredentialModel) TableName() string {
	return "channel_credentials"
}
