package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/observability/metrics"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Service owns the credential lifecycle. Decrypted token material exists
// only inside a single call's scope and is never logged or cached.
type Service struct {
	store    Store
	cipher   *Cipher
	nonces   NonceStore
	oauth    map[models.Channel]*oauth2.Config
	skew     time.Duration
	stateTTL time.Duration

	now     func() time.Time
	refresh func(ctx context.Context, ch models.Channel, refreshToken string) (*oauth2.Token, error)
}

func NewService(store Store, cipher *Cipher, nonces NonceStore, oauthConfigs map[models.Channel]*oauth2.Config, skew, stateTTL time.Duration) *Service {
	s := &Service{
		store:    store,
		cipher:   cipher,
		nonces:   nonces,
		oauth:    oauthConfigs,
		skew:     skew,
		stateTTL: stateTTL,
		now:      time.Now,
	}
	s.refresh = s.refreshUpstream
	return s
}

// Store encrypts and persists a freshly obtained credential.
func (s *Service) Store(ctx context.Context, ownerID string, ch models.Channel, token *oauth2.Token, externalAccountID string, scopes []string) error {
	if token == nil || token.AccessToken == "" {
		return errors.New("token with access_token is required")
	}

	accessCiphertext, err := s.cipher.Seal(token.AccessToken)
	if err != nil {
		return fmt.Errorf("sealing access token: %w", err)
	}

	var refreshCiphertext []byte
	if token.RefreshToken != "" {
		refreshCiphertext, err = s.cipher.Seal(token.RefreshToken)
		if err != nil {
			return fmt.Errorf("sealing refresh token: %w", err)
		}
	}

	cred := &CredentialModel{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Channel:           ch,
		AccessCiphertext:  accessCiphertext,
		RefreshCiphertext: refreshCiphertext,
		Scopes:            scopes,
		ExternalAccountID: externalAccountID,
		Status:            StatusActive,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		cred.ExpiresAt = &expiry
	}

	if err := s.store.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"owner_id": ownerID,
		"channel":  ch,
	}).Info("credential stored")
	return nil
}

// GetValid returns a decrypted credential fit for immediate use. Revoked
// and invalid credentials are filtered out; a credential expiring inside
// the skew window is refreshed first. A failed refresh marks the
// credential invalid — the caller must not blind-retry.
func (s *Service) GetValid(ctx context.Context, ownerID string, ch models.Channel) (models.ChannelCredential, error) {
	cred, err := s.store.Get(ctx, ownerID, ch)
	if errors.Is(err, ErrNotFound) {
		return models.ChannelCredential{}, ErrNoValidCredential
	}
	if err != nil {
		return models.ChannelCredential{}, err
	}

	if cred.Status == StatusRevoked || cred.Status == StatusInvalid {
		return models.ChannelCredential{}, ErrNoValidCredential
	}

	if s.expiresWithinSkew(cred) {
		cred, err = s.doRefresh(ctx, cred)
		if err != nil {
			return models.ChannelCredential{}, err
		}
	}

	accessToken, err := s.cipher.Open(cred.AccessCiphertext)
	if err != nil {
		return models.ChannelCredential{}, fmt.Errorf("decrypting access token: %w", err)
	}

	return models.ChannelCredential{
		AccessToken:       accessToken,
		ExternalAccountID: cred.ExternalAccountID,
		Scopes:            []string(cred.Scopes),
	}, nil
}

// Refresh forces a token refresh regardless of the skew window.
func (s *Service) Refresh(ctx context.Context, ownerID string, ch models.Channel) error {
	cred, err := s.store.Get(ctx, ownerID, ch)
	if err != nil {
		return err
	}
	if cred.Status == StatusRevoked || cred.Status == StatusInvalid {
		return ErrNoValidCredential
	}
	_, err = s.doRefresh(ctx, cred)
	return err
}

// Revoke marks the credential unusable and destroys its ciphertexts.
func (s *Service) Revoke(ctx context.Context, ownerID string, ch models.Channel) error {
	cred, err := s.store.Get(ctx, ownerID, ch)
	if err != nil {
		return err
	}
	cred.AccessCiphertext = nil
	cred.RefreshCiphertext = nil
	cred.Status = StatusRevoked
	if err := s.store.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("revoking credential: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"owner_id": ownerID,
		"channel":  ch,
	}).Info("credential revoked")
	return nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]CredentialModel, error) {
	return s.store.List(ctx, ownerID)
}

func (s *Service) expiresWithinSkew(cred *CredentialModel) bool {
	if cred.ExpiresAt == nil {
		return false
	}
	return cred.ExpiresAt.Before(s.now().Add(s.skew))
}

func (s *Service) doRefresh(ctx context.Context, cred *CredentialModel) (*CredentialModel, error) {
	if len(cred.RefreshCiphertext) == 0 {
		return nil, s.invalidate(ctx, cred, errors.New("credential expiring with no refresh token"))
	}

	refreshToken, err := s.cipher.Open(cred.RefreshCiphertext)
	if err != nil {
		return nil, s.invalidate(ctx, cred, fmt.Errorf("decrypting refresh token: %w", err))
	}

	token, err := s.refresh(ctx, cred.Channel, refreshToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The authorization server rejected the refresh token:
			// revoked upstream or invalid. Not retryable.
			return nil, s.invalidate(ctx, cred, err)
		}
		// Transport-level failure; the credential itself may be fine.
		// Flag it as expiring so the pending refresh is visible in
		// listings until a later attempt lands.
		if cred.Status != StatusExpiring {
			if statusErr := s.store.UpdateStatus(ctx, cred.OwnerID, cred.Channel, StatusExpiring); statusErr != nil {
				logger.Log.WithError(statusErr).Error("failed to mark credential expiring")
			}
		}
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	accessCiphertext, err := s.cipher.Seal(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("sealing refreshed access token: %w", err)
	}
	cred.AccessCiphertext = accessCiphertext
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		refreshCiphertext, err := s.cipher.Seal(token.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("sealing rotated refresh token: %w", err)
		}
		cred.RefreshCiphertext = refreshCiphertext
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		cred.ExpiresAt = &expiry
	}
	cred.Status = StatusActive

	if err := s.store.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("persisting refreshed credential: %w", err)
	}

	metrics.IncCredentialRefresh()
	logger.Log.WithFields(map[string]interface{}{
		"owner_id": cred.OwnerID,
		"channel":  cred.Channel,
	}).Info("credential refreshed")
	return cred, nil
}

func (s *Service) invalidate(ctx context.Context, cred *CredentialModel, cause error) error {
	logger.Log.WithError(cause).WithFields(map[string]interface{}{
		"owner_id": cred.OwnerID,
		"channel":  cred.Channel,
	}).Warn("credential invalidated")

	if err := s.store.UpdateStatus(ctx, cred.OwnerID, cred.Channel, StatusInvalid); err != nil {
		logger.Log.WithError(err).Error("failed to mark credential invalid")
	}
	metrics.IncCredentialInvalid()
	return ErrNoValidCredential
}

func (s *Service) refreshUpstream(ctx context.Context, ch models.Channel, refreshToken string) (*oauth2.Token, error) {
	cfg, ok := s.oauth[ch]
	if !ok {
		return nil, ErrChannelNotConfigured
	}
	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return source.Token()
}
