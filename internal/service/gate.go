package service

import (
	"context"
	"errors"
	"time"

	"e2ee-channels/internal/dto"
	"e2ee-channels/internal/store"
	"e2ee-channels/pkg/apperrors"

	"github.com/google/uuid"
)

// EnableChannelEncryption flips a channel to encrypted. The transition is
// one-way: once enabled, no operation turns it back off. The transaction
// takes the channel row's write lock before reading the participant set, so
// a membership change can never interleave with the coverage check; the
// optimistic enabled-flag guard on the final update backstops a racing
// enable.
func (s *Service) EnableChannelEncryption(ctx context.Context, channelID, actorID uuid.UUID) (dto.EnableEncryptionResponse, error) {
	enabledAt := time.Now().UTC()

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Channels().Touch(ctx, channelID); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return apperrors.ErrChannelNotFound
			}
			return err
		}
		channel, err := tx.Channels().Get(ctx, channelID)
		if err != nil {
			return err
		}
		if channel.EncryptionEnabled {
			return apperrors.ErrAlreadyEnabled
		}

		isMember, err := tx.Participants().Exists(ctx, channelID, actorID)
		if err != nil {
			return err
		}
		if !isMember {
			return apperrors.ErrNotParticipant
		}

		participantIDs, err := tx.Participants().UserIDs(ctx, channelID)
		if err != nil {
			return err
		}
		missing, err := missingKeyIDs(ctx, tx, participantIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return apperrors.MissingKeys("some participants do not have encryption keys", missing)
		}

		flipped, err := tx.Channels().EnableEncryption(ctx, channelID, actorID, enabledAt)
		if err != nil {
			return err
		}
		if !flipped {
			return apperrors.ErrAlreadyEnabled
		}
		return nil
	})
	if err != nil {
		return dto.EnableEncryptionResponse{}, err
	}

	return dto.EnableEncryptionResponse{
		ChannelID:           channelID.String(),
		EncryptionEnabled:   true,
		EncryptionEnabledAt: enabledAt,
		EncryptionEnabledBy: actorID.String(),
	}, nil
}

// ChannelEncryptionStatus recomputes key coverage on every call rather than
// caching it, so a participant added after enablement shows up as missing
// keys immediately.
func (s *Service) ChannelEncryptionStatus(ctx context.Context, channelID uuid.UUID) (dto.ChannelEncryptionStatusResponse, error) {
	channel, err := s.store.Channels().Get(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return dto.ChannelEncryptionStatusResponse{}, apperrors.ErrChannelNotFound
		}
		return dto.ChannelEncryptionStatusResponse{}, err
	}

	participantIDs, err := s.store.Participants().UserIDs(ctx, channelID)
	if err != nil {
		return dto.ChannelEncryptionStatusResponse{}, err
	}
	withKeys, err := s.store.PublicKeys().UserIDsWithKeys(ctx, participantIDs)
	if err != nil {
		return dto.ChannelEncryptionStatusResponse{}, err
	}

	covered := make(map[uuid.UUID]struct{}, len(withKeys))
	for _, id := range withKeys {
		covered[id] = struct{}{}
	}
	withKeyIDs := make([]string, 0, len(withKeys))
	missingKeyIDs := make([]string, 0)
	for _, id := range participantIDs {
		if _, ok := covered[id]; ok {
			withKeyIDs = append(withKeyIDs, id.String())
		} else {
			missingKeyIDs = append(missingKeyIDs, id.String())
		}
	}

	resp := dto.ChannelEncryptionStatusResponse{
		Enabled:                 channel.EncryptionEnabled,
		EnabledAt:               channel.EncryptionEnabledAt,
		ParticipantsWithKeys:    withKeyIDs,
		ParticipantsMissingKeys: missingKeyIDs,
	}
	if channel.EncryptionEnabledBy != nil {
		enabledBy := channel.EncryptionEnabledBy.String()
		resp.EnabledBy = &enabledBy
	}
	return resp, nil
}

// missingKeyIDs returns, in participant order, the ids lacking a current key.
func missingKeyIDs(ctx context.Context, tx *store.Store, participantIDs []uuid.UUID) ([]string, error) {
	withKeys, err := tx.PublicKeys().UserIDsWithKeys(ctx, participantIDs)
	if err != nil {
		return nil, err
	}
	covered := make(map[uuid.UUID]struct{}, len(withKeys))
	for _, id := range withKeys {
		covered[id] = struct{}{}
	}
	var missing []string
	for _, id := range participantIDs {
		if _, ok := covered[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	return missing, nil
}
