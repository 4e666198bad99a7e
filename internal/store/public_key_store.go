package store

import (
	"context"
	"time"

	"e2ee-channels/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type PublicKeyStore struct{ db *gorm.DB }

func (s *Store) PublicKeys() *PublicKeyStore { return &PublicKeyStore{db: s.DB} }

func (p *PublicKeyStore) Create(ctx context.Context, key domain.UserPublicKey) error {
	if err := p.db.WithContext(ctx).Create(&key).Error; err != nil {
		return errors.Wrap(err, "publicKeyStore.Create")
	}
	return nil
}

func (p *PublicKeyStore) FingerprintExists(ctx context.Context, fingerprint string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&domain.UserPublicKey{}).
		Where("fingerprint = ?", fingerprint).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "publicKeyStore.FingerprintExists")
	}
	return count > 0, nil
}

// LatestByUser returns the most recent non-revoked key for a user.
func (p *PublicKeyStore) LatestByUser(ctx context.Context, userID uuid.UUID) (*domain.UserPublicKey, error) {
	var key domain.UserPublicKey
	err := p.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Order("created_at DESC, id DESC").
		First(&key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrap(err, "publicKeyStore.LatestByUser")
	}
	return &key, nil
}

// LatestByUsers returns at most one key per user id, the most recent
// non-revoked record each.
func (p *PublicKeyStore) LatestByUsers(ctx context.Context, userIDs []uuid.UUID) ([]domain.UserPublicKey, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var keys []domain.UserPublicKey
	err := p.db.WithContext(ctx).
		Where("user_id IN ? AND revoked_at IS NULL", userIDs).
		Order("user_id ASC, created_at DESC, id DESC").
		Find(&keys).Error
	if err != nil {
		return nil, errors.Wrap(err, "publicKeyStore.LatestByUsers")
	}

	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	latest := make([]domain.UserPublicKey, 0, len(userIDs))
	for _, key := range keys {
		if _, ok := seen[key.UserID]; ok {
			continue
		}
		seen[key.UserID] = struct{}{}
		latest = append(latest, key)
	}
	return latest, nil
}

// UserIDsWithKeys filters userIDs down to those holding a current key.
func (p *PublicKeyStore) UserIDsWithKeys(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Model(&domain.UserPublicKey{}).
		Distinct("user_id").
		Where("user_id IN ? AND revoked_at IS NULL", userIDs).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "publicKeyStore.UserIDsWithKeys")
	}
	return ids, nil
}

// RevokeByUser soft-revokes every currently active key of a user and returns
// how many records were touched.
func (p *PublicKeyStore) RevokeByUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := p.db.WithContext(ctx).
		Model(&domain.UserPublicKey{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "publicKeyStore.RevokeByUser")
	}
	return res.RowsAffected, nil
}
