package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskplanner/internal/model"
)

const apiKeyColumns = `id, name, key_hash, key_prefix, user_id, permissions, is_active,
		        last_used_at, expires_at, created_at`

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *model.APIKey) error {
	permissions, err := json.Marshal(key.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}

	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO api_keys (
			id, name, key_hash, key_prefix, user_id, permissions, is_active,
			last_used_at, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.Name,
		key.KeyHash,
		key.KeyPrefix,
		key.UserID,
		string(permissions),
		key.IsActive,
		nullableTime(key.LastUsedAt),
		nullableTime(key.ExpiresAt),
		formatTime(key.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// GetActiveByHash returns an active key by its hash. Expiry is left to the
// caller.
func (r *APIKeyRepository) GetActiveByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ? AND is_active = 1`,
		keyHash,
	)
	return scanAPIKey(row)
}

func (r *APIKeyRepository) GetByID(ctx context.Context, userID, keyID string) (*model.APIKey, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ? AND user_id = ?`,
		keyID,
		userID,
	)
	return scanAPIKey(row)
}

func (r *APIKeyRepository) ListByUser(ctx context.Context, userID string) ([]model.APIKey, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = ? ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]model.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, formatTime(at), keyID); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, userID, keyID string) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE api_keys SET is_active = 0 WHERE id = ? AND user_id = ?`,
		keyID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return requireAffected(result)
}

func (r *APIKeyRepository) UpdatePermissions(ctx context.Context, userID, keyID string, permissions model.APIKeyPermissions) error {
	raw, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE api_keys SET permissions = ? WHERE id = ? AND user_id = ?`,
		string(raw),
		keyID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("update api key permissions: %w", err)
	}
	return requireAffected(result)
}

// PurgeInactive deletes revoked keys and keys that expired before cutoff.
func (r *APIKeyRepository) PurgeInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(
		ctx,
		`DELETE FROM api_keys
		 WHERE is_active = 0
		    OR (expires_at IS NOT NULL AND expires_at < ?)`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge api keys: %w", err)
	}
	return result.RowsAffected()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKey(s scanner) (*model.APIKey, error) {
	key := model.APIKey{}
	var permissions, createdAt string
	var lastUsedAt, expiresAt sql.NullString
	err := s.Scan(
		&key.ID,
		&key.Name,
		&key.KeyHash,
		&key.KeyPrefix,
		&key.UserID,
		&permissions,
		&key.IsActive,
		&lastUsedAt,
		&expiresAt,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}

	if err := json.Unmarshal([]byte(permissions), &key.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if key.LastUsedAt, err = parseNullTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("parse api key last_used_at: %w", err)
	}
	if key.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse api key expires_at: %w", err)
	}
	if key.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse api key created_at: %w", err)
	}
	return &key, nil
}
