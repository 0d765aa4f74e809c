package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chatmeter/chatmeter/internal/model"
)

// cachedAuthContext is the JSON stored under <AuthKeyPrefix><digest>.
type cachedAuthContext struct {
	AccountID    string `json:"account_id"`
	Username     string `json:"username"`
	CredentialID string `json:"credential_id"`
	Prefix       string `json:"prefix"`
}

// GetAuthContext retrieves a cached auth context by credential digest.
// Returns nil, nil on a miss or a corrupted entry.
func (c *Cache) GetAuthContext(ctx context.Context, digest string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, c.authKey+digest).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var cached cachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil || cached.AccountID == "" {
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		AccountID:        cached.AccountID,
		Username:         cached.Username,
		CredentialID:     cached.CredentialID,
		CredentialPrefix: cached.Prefix,
	}, nil
}

// SetAuthContext caches an auth context under the credential digest.
func (c *Cache) SetAuthContext(ctx context.Context, digest string, auth *model.AuthContext) error {
	data, err := json.Marshal(cachedAuthContext{
		AccountID:    auth.AccountID,
		Username:     auth.Username,
		CredentialID: auth.CredentialID,
		Prefix:       auth.CredentialPrefix,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	return c.client.Set(ctx, c.authKey+digest, data, c.authTTL).Err()
}

// DeleteAuthContext removes a cached auth context.
// Used when a credential is revoked.
func (c *Cache) DeleteAuthContext(ctx context.Context, digest string) error {
	return c.client.Del(ctx, c.authKey+digest).Err()
}
