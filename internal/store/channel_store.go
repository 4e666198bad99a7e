package store

import (
	"context"
	"time"

	"e2ee-channels/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ChannelStore struct{ db *gorm.DB }

func (s *Store) Channels() *ChannelStore { return &ChannelStore{db: s.DB} }

func (c *ChannelStore) Create(ctx context.Context, channel domain.Channel) error {
	if err := c.db.WithContext(ctx).Create(&channel).Error; err != nil {
		return errors.Wrap(err, "channelStore.Create")
	}
	return nil
}

func (c *ChannelStore) Get(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	var channel domain.Channel
	if err := c.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrap(err, "channelStore.Get")
	}
	return &channel, nil
}

// EnableEncryption flips the channel to encrypted with an optimistic guard:
// the update only lands if encryption_enabled is still false, so a concurrent
// enable (or a membership change racing the coverage check inside the same
// transaction) cannot double-apply. Returns false when the guard lost.
func (c *ChannelStore) EnableEncryption(ctx context.Context, id, actorID uuid.UUID, at time.Time) (bool, error) {
	res := c.db.WithContext(ctx).
		Model(&domain.Channel{}).
		Where("id = ? AND encryption_enabled = ?", id, false).
		Updates(map[string]any{
			"encryption_enabled":    true,
			"encryption_enabled_at": at,
			"encryption_enabled_by": actorID,
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "channelStore.EnableEncryption")
	}
	return res.RowsAffected == 1, nil
}

// Touch writes the channel row inside the current transaction, taking its
// row-level write lock. Encryption enable, key rotation and membership
// changes all call this first, so the four mutators serialize per channel
// without dialect-specific locking clauses.
func (c *ChannelStore) Touch(ctx context.Context, id uuid.UUID) error {
	res := c.db.WithContext(ctx).
		Model(&domain.Channel{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC())
	if res.Error != nil {
		return errors.Wrap(res.Error, "channelStore.Touch")
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
