package store

import (
	"context"

	"e2ee-channels/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionKeyStore struct{ db *gorm.DB }

func (s *Store) SessionKeys() *SessionKeyStore { return &SessionKeyStore{db: s.DB} }

// Upsert writes an envelope keyed by (channel, user, version); the last write
// for that exact triple wins.
func (k *SessionKeyStore) Upsert(ctx context.Context, key domain.ChannelSessionKey) error {
	err := k.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "channel_id"}, {Name: "user_id"}, {Name: "key_version"}},
			DoUpdates: clause.Assignments(map[string]any{
				"encrypted_session_key": key.EncryptedSessionKey,
			}),
		}).
		Create(&key).Error
	if err != nil {
		return errors.Wrap(err, "sessionKeyStore.Upsert")
	}
	return nil
}

// CreateBatch bulk-inserts envelopes, all at the same new version. Rotation
// relies on the caller serializing per channel.
func (k *SessionKeyStore) CreateBatch(ctx context.Context, keys []domain.ChannelSessionKey) error {
	if len(keys) == 0 {
		return nil
	}
	if err := k.db.WithContext(ctx).Create(&keys).Error; err != nil {
		return errors.Wrap(err, "sessionKeyStore.CreateBatch")
	}
	return nil
}

// Get returns the envelope at the requested version, or the highest version
// on record when version is nil.
func (k *SessionKeyStore) Get(ctx context.Context, channelID, userID uuid.UUID, version *int) (*domain.ChannelSessionKey, error) {
	tx := k.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID)
	if version != nil {
		tx = tx.Where("key_version = ?", *version)
	}
	var key domain.ChannelSessionKey
	if err := tx.Order("key_version DESC").First(&key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrap(err, "sessionKeyStore.Get")
	}
	return &key, nil
}

func (k *SessionKeyStore) ForChannel(ctx context.Context, channelID uuid.UUID, version *int) ([]domain.ChannelSessionKey, error) {
	tx := k.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if version != nil {
		tx = tx.Where("key_version = ?", *version)
	}
	var keys []domain.ChannelSessionKey
	if err := tx.Order("user_id ASC, key_version ASC").Find(&keys).Error; err != nil {
		return nil, errors.Wrap(err, "sessionKeyStore.ForChannel")
	}
	return keys, nil
}

// MaxVersion returns the highest key version stored for a channel, 0 if none.
func (k *SessionKeyStore) MaxVersion(ctx context.Context, channelID uuid.UUID) (int, error) {
	var version int
	err := k.db.WithContext(ctx).
		Model(&domain.ChannelSessionKey{}).
		Where("channel_id = ?", channelID).
		Select("COALESCE(MAX(key_version), 0)").
		Scan(&version).Error
	if err != nil {
		return 0, errors.Wrap(err, "sessionKeyStore.MaxVersion")
	}
	return version, nil
}
