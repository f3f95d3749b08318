package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "taskplanner/internal/errors"
	"taskplanner/internal/model"
	"taskplanner/internal/repository"
)

const (
	apiKeyPrefix     = "mcp_"
	apiKeyPrefixLen  = 12
	maxActiveAPIKeys = 5
)

// APIKeyService issues and validates the bearer keys used by programmatic
// clients. Only a sha256 of each key is stored.
type APIKeyService struct {
	repo *repository.APIKeyRepository
	now  func() time.Time
}

func NewAPIKeyService(repo *repository.APIKeyRepository) *APIKeyService {
	return &APIKeyService{repo: repo, now: time.Now}
}

// PermissionsInput is a partial permission set. Nil fields keep their
// current (or default) value.
type PermissionsInput struct {
	Read   *bool `json:"read"`
	Create *bool `json:"create"`
	Update *bool `json:"update"`
	Delete *bool `json:"delete"`
}

func (p PermissionsInput) applyTo(base model.APIKeyPermissions) model.APIKeyPermissions {
	if p.Read != nil {
		base.Read = *p.Read
	}
	if p.Create != nil {
		base.Create = *p.Create
	}
	if p.Update != nil {
		base.Update = *p.Update
	}
	if p.Delete != nil {
		base.Delete = *p.Delete
	}
	return base
}

type CreateAPIKeyInput struct {
	Name        string            `json:"name"`
	Permissions *PermissionsInput `json:"permissions"`
	ExpiresAt   *time.Time        `json:"expiresAt"`
}

// CreatedAPIKey carries the plaintext key. It is returned exactly once.
type CreatedAPIKey struct {
	model.APIKey
	Key string `json:"key"`
}

func (s *APIKeyService) Create(ctx context.Context, userID string, input CreateAPIKeyInput) (*CreatedAPIKey, *apperrors.APIError) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.BadRequest("invalid_name", "name is required")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, apperrors.BadRequest("invalid_expiry", "expiresAt must be in the future")
	}

	keys, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list api keys")
	}
	active := 0
	for _, key := range keys {
		if key.IsActive {
			active++
		}
	}
	if active >= maxActiveAPIKeys {
		return nil, apperrors.BadRequest("api_key_limit", "maximum of 5 API keys allowed per user")
	}

	plaintext, err := generateAPIKey()
	if err != nil {
		return nil, apperrors.Internal("failed to generate api key")
	}

	permissions := model.DefaultAPIKeyPermissions()
	if input.Permissions != nil {
		permissions = input.Permissions.applyTo(permissions)
	}

	key := model.APIKey{
		ID:          uuid.NewString(),
		Name:        name,
		KeyHash:     hashAPIKey(plaintext),
		KeyPrefix:   plaintext[:apiKeyPrefixLen],
		UserID:      userID,
		Permissions: permissions,
		IsActive:    true,
		ExpiresAt:   input.ExpiresAt,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, &key); err != nil {
		return nil, apperrors.Internal("failed to store api key")
	}
	return &CreatedAPIKey{APIKey: key, Key: plaintext}, nil
}

// Validate resolves a plaintext key to its owner and permissions and stamps
// its last use. Unknown, revoked and expired keys are all unauthorized.
func (s *APIKeyService) Validate(ctx context.Context, plaintext string) (*model.Credential, *apperrors.APIError) {
	if !strings.HasPrefix(plaintext, apiKeyPrefix) {
		return nil, apperrors.Unauthorized("invalid api key")
	}

	key, err := s.repo.GetActiveByHash(ctx, hashAPIKey(plaintext))
	if err == repository.ErrNotFound {
		return nil, apperrors.Unauthorized("invalid api key")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to look up api key")
	}

	now := s.now()
	if key.ExpiresAt != nil && now.After(*key.ExpiresAt) {
		return nil, apperrors.Unauthorized("api key expired")
	}

	if err := s.repo.TouchLastUsed(ctx, key.ID, now.UTC()); err != nil {
		log.Printf("touch api key %s: %v", key.ID, err)
	}

	return &model.Credential{
		UserID:      key.UserID,
		APIKeyID:    key.ID,
		Permissions: key.Permissions,
	}, nil
}

func (s *APIKeyService) List(ctx context.Context, userID string) ([]model.APIKey, *apperrors.APIError) {
	keys, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list api keys")
	}
	return keys, nil
}

func (s *APIKeyService) Revoke(ctx context.Context, userID, keyID string) *apperrors.APIError {
	err := s.repo.Revoke(ctx, userID, keyID)
	if err == repository.ErrNotFound {
		return apperrors.NotFound(apperrors.CodeAPIKeyNotFound, "api key not found")
	}
	if err != nil {
		return apperrors.Internal("failed to revoke api key")
	}
	return nil
}

func (s *APIKeyService) UpdatePermissions(ctx context.Context, userID, keyID string, input PermissionsInput) (*model.APIKey, *apperrors.APIError) {
	key, err := s.repo.GetByID(ctx, userID, keyID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound(apperrors.CodeAPIKeyNotFound, "api key not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load api key")
	}

	key.Permissions = input.applyTo(key.Permissions)
	if err := s.repo.UpdatePermissions(ctx, userID, keyID, key.Permissions); err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound(apperrors.CodeAPIKeyNotFound, "api key not found")
		}
		return nil, apperrors.Internal("failed to update api key")
	}
	return key, nil
}

// Purge deletes revoked and expired keys.
func (s *APIKeyService) Purge(ctx context.Context) (int64, error) {
	return s.repo.PurgeInactive(ctx, s.now().UTC())
}

func generateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(raw), nil
}

func hashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
