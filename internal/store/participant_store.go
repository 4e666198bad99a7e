package store

import (
	"context"

	"e2ee-channels/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ParticipantStore struct{ db *gorm.DB }

func (s *Store) Participants() *ParticipantStore { return &ParticipantStore{db: s.DB} }

func (p *ParticipantStore) Add(ctx context.Context, participant domain.ChannelParticipant) error {
	if err := p.db.WithContext(ctx).Create(&participant).Error; err != nil {
		return errors.Wrap(err, "participantStore.Add")
	}
	return nil
}

func (p *ParticipantStore) Remove(ctx context.Context, channelID, userID uuid.UUID) (int64, error) {
	res := p.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Delete(&domain.ChannelParticipant{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "participantStore.Remove")
	}
	return res.RowsAffected, nil
}

func (p *ParticipantStore) Exists(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&domain.ChannelParticipant{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "participantStore.Exists")
	}
	return count > 0, nil
}

// UserIDs returns the live participant set for a channel.
func (p *ParticipantStore) UserIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Model(&domain.ChannelParticipant{}).
		Where("channel_id = ?", channelID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "participantStore.UserIDs")
	}
	return ids, nil
}
