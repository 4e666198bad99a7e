package service

import (
	"context"
	"errors"

	"e2ee-channels/internal/domain"
	"e2ee-channels/internal/dto"
	"e2ee-channels/internal/store"
	"e2ee-channels/pkg/apperrors"

	"github.com/google/uuid"
)

// CreateChannel creates a channel with the actor as its first participant.
func (s *Service) CreateChannel(ctx context.Context, actorID uuid.UUID, req dto.CreateChannelRequest) (dto.CreateChannelResponse, error) {
	participantIDs := make([]uuid.UUID, 0, len(req.ParticipantIDs)+1)
	participantIDs = append(participantIDs, actorID)
	for _, raw := range req.ParticipantIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return dto.CreateChannelResponse{}, apperrors.InvalidInput("invalid participant id")
		}
		if id != actorID {
			participantIDs = append(participantIDs, id)
		}
	}

	channel := domain.Channel{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedBy: actorID,
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		for _, id := range participantIDs {
			if err := tx.Users().Ensure(ctx, id); err != nil {
				return err
			}
		}
		if err := tx.Channels().Create(ctx, channel); err != nil {
			return err
		}
		for _, id := range participantIDs {
			if err := tx.Participants().Add(ctx, domain.ChannelParticipant{ChannelID: channel.ID, UserID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dto.CreateChannelResponse{}, err
	}

	created, err := s.store.Channels().Get(ctx, channel.ID)
	if err != nil {
		return dto.CreateChannelResponse{}, err
	}
	return dto.CreateChannelResponse{
		ID:        created.ID.String(),
		Name:      created.Name,
		CreatedBy: created.CreatedBy.String(),
		CreatedAt: created.CreatedAt,
	}, nil
}

// AddParticipant adds a user to a channel. On an encrypted channel the
// response reports whether the newcomer has keys, so a remaining member knows
// to wrap the current session key for them.
func (s *Service) AddParticipant(ctx context.Context, channelID, userID, addedBy uuid.UUID) (dto.AddParticipantResponse, error) {
	var resp dto.AddParticipantResponse

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		// Takes the channel row's write lock so membership changes
		// serialize with encryption enable and key rotation.
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

		isMember, err := tx.Participants().Exists(ctx, channelID, addedBy)
		if err != nil {
			return err
		}
		if !isMember {
			return apperrors.ErrNotParticipant
		}

		userExists, err := tx.Users().Exists(ctx, userID)
		if err != nil {
			return err
		}
		if !userExists {
			return apperrors.ErrUserNotFound
		}

		already, err := tx.Participants().Exists(ctx, channelID, userID)
		if err != nil {
			return err
		}
		if already {
			return apperrors.ErrAlreadyParticipant
		}

		if err := tx.Participants().Add(ctx, domain.ChannelParticipant{ChannelID: channelID, UserID: userID}); err != nil {
			return err
		}

		resp = dto.AddParticipantResponse{Success: true, ChannelEncrypted: channel.EncryptionEnabled}
		if channel.EncryptionEnabled {
			withKeys, err := tx.PublicKeys().UserIDsWithKeys(ctx, []uuid.UUID{userID})
			if err != nil {
				return err
			}
			hasKeys := len(withKeys) == 1
			resp.ParticipantHasKeys = &hasKeys
			if hasKeys {
				resp.Message = "Participant added. Session key needs to be encrypted for them."
			} else {
				resp.Message = "Participant added but does not have encryption keys. They will need to generate keys to read encrypted messages."
			}
		} else {
			resp.Message = "Participant added successfully"
		}
		return nil
	})
	if err != nil {
		return dto.AddParticipantResponse{}, err
	}
	return resp, nil
}

// RemoveParticipant removes a user from a channel. Removal from an encrypted
// channel never rotates server-side: the server has never seen the session
// key in cleartext, so a remaining member must call RotateSessionKey with
// freshly wrapped envelopes.
func (s *Service) RemoveParticipant(ctx context.Context, channelID, userID, removedBy uuid.UUID) (dto.RemoveParticipantResponse, error) {
	var resp dto.RemoveParticipantResponse

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		// Same row lock as AddParticipant: removal must not interleave
		// with a coverage check or a rotation's completeness check.
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

		// Members can always leave; removing someone else requires membership.
		if removedBy != userID {
			isMember, err := tx.Participants().Exists(ctx, channelID, removedBy)
			if err != nil {
				return err
			}
			if !isMember {
				return apperrors.ErrNotParticipant
			}
		}

		removed, err := tx.Participants().Remove(ctx, channelID, userID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return apperrors.ErrNotParticipant
		}

		resp = dto.RemoveParticipantResponse{Success: true, ChannelEncrypted: channel.EncryptionEnabled}
		if channel.EncryptionEnabled {
			resp.RequiresKeyRotation = true
			resp.Message = "Participant removed. Session key rotation required for security."
		} else {
			resp.Message = "Participant removed successfully"
		}
		return nil
	})
	if err != nil {
		return dto.RemoveParticipantResponse{}, err
	}
	return resp, nil
}

// ParticipantPublicKeys returns the latest key of every covered participant.
func (s *Service) ParticipantPublicKeys(ctx context.Context, channelID uuid.UUID) ([]dto.PublicKeyResponse, error) {
	if _, err := s.store.Channels().Get(ctx, channelID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, apperrors.ErrChannelNotFound
		}
		return nil, err
	}
	participantIDs, err := s.store.Participants().UserIDs(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.GetPublicKeys(ctx, participantIDs)
}
