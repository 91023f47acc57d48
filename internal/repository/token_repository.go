package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"signage-fleet-server/internal/domain"
)

type TokenRepository interface {
	Create(ctx context.Context, record *domain.TokenRecord) error
	// ConsumeRefresh atomically revokes the live record holding the refresh
	// digest and returns it. ErrNotFound means no live record matched,
	// including the case where a concurrent caller won the race.
	ConsumeRefresh(ctx context.Context, refreshHash string, at time.Time) (*domain.TokenRecord, error)
	RevokeAllForDevice(ctx context.Context, deviceID string, at time.Time) (int64, error)
	HasActiveSession(ctx context.Context, deviceID string, now time.Time) (bool, error)
	// DevicesWithSession returns the ids of devices holding a live record.
	DevicesWithSession(ctx context.Context, now time.Time) (map[string]bool, error)
	CountLive(ctx context.Context, deviceID string) (int64, error)
	ListByDevice(ctx context.Context, deviceID string) ([]*domain.TokenRecord, error)
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, record *domain.TokenRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create token record: %w", err)
	}
	return nil
}

func (r *tokenRepository) ConsumeRefresh(ctx context.Context, refreshHash string, at time.Time) (*domain.TokenRecord, error) {
	var record domain.TokenRecord
	err := r.db.WithContext(ctx).
		Where("refresh_token_hash = ? AND is_revoked = ?", refreshHash, false).
		First(&record).Error
	if err != nil {
		return nil, notFound(err, "token record")
	}

	revokedAt := at.UTC()
	res := r.db.WithContext(ctx).Model(&domain.TokenRecord{}).
		Where("id = ? AND is_revoked = ?", record.ID, false).
		Updates(map[string]interface{}{"is_revoked": true, "revoked_at": revokedAt})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to revoke token record: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("token record: %w", domain.ErrNotFound)
	}

	record.IsRevoked = true
	record.RevokedAt = &revokedAt
	return &record, nil
}

func (r *tokenRepository) RevokeAllForDevice(ctx context.Context, deviceID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.TokenRecord{}).
		Where("device_id = ? AND is_revoked = ?", deviceID, false).
		Updates(map[string]interface{}{"is_revoked": true, "revoked_at": at.UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to revoke device tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *tokenRepository) HasActiveSession(ctx context.Context, deviceID string, now time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.TokenRecord{}).
		Where("device_id = ? AND is_revoked = ? AND expires_at > ?", deviceID, false, now.UTC()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return n > 0, nil
}

func (r *tokenRepository) DevicesWithSession(ctx context.Context, now time.Time) (map[string]bool, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.TokenRecord{}).
		Where("is_revoked = ? AND expires_at > ?", false, now.UTC()).
		Distinct().
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *tokenRepository) CountLive(ctx context.Context, deviceID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.TokenRecord{}).
		Where("device_id = ? AND is_revoked = ?", deviceID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return n, nil
}

func (r *tokenRepository) ListByDevice(ctx context.Context, deviceID string) ([]*domain.TokenRecord, error) {
	var records []*domain.TokenRecord
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return records, nil
}

// PurgeStale deletes records that were revoked or expired before the cutoff.
func (r *tokenRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC()
	res := r.db.WithContext(ctx).
		Where("(is_revoked = ? AND revoked_at < ?) OR expires_at < ?", true, cutoff, cutoff).
		Delete(&domain.TokenRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
