package vault

import (
	"context"
	"fmt"

	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// BeginAuthorization issues a single-use state nonce bound to
// (owner, channel) and returns the external authorization URL the agent's
// browser should be redirected to.
func (s *Service) BeginAuthorization(ctx context.Context, ownerID string, ch models.Channel) (string, error) {
	cfg, ok := s.oauth[ch]
	if !ok {
		return "", ErrChannelNotConfigured
	}

	state := uuid.New().String()
	if err := s.nonces.Issue(ctx, state, ownerID, ch, s.stateTTL); err != nil {
		return "", err
	}

	logger.Log.WithFields(map[string]interface{}{
		"owner_id": ownerID,
		"channel":  ch,
	}).Info("oauth authorization started")

	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteAuthorization handles the OAuth callback. The state nonce must
// match an issued, unexpired, unconsumed one before any token exchange is
// attempted; everything else is rejected as a CSRF attempt.
func (s *Service) CompleteAuthorization(ctx context.Context, state, code string) (string, models.Channel, error) {
	ownerID, ch, err := s.nonces.Consume(ctx, state)
	if err != nil {
		return "", "", err
	}

	cfg, ok := s.oauth[ch]
	if !ok {
		return "", "", ErrChannelNotConfigured
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("exchanging authorization code: %w", err)
	}

	externalAccountID := ""
	if v, ok := token.Extra("account_id").(string); ok {
		externalAccountID = v
	}

	if err := s.Store(ctx, ownerID, ch, token, externalAccountID, cfg.Scopes); err != nil {
		return "", "", err
	}

	logger.Log.WithFields(map[string]interface{}{
		"owner_id": ownerID,
		"channel":  ch,
	}).Info("oauth authorization completed")

	return ownerID, ch, nil
}
