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

// StoreSessionKey saves a wrapped session-key envelope for one participant.
// Writes are upserts keyed by (channel, user, version): the last write for
// that exact triple wins, which keeps concurrent per-user writes race-safe.
func (s *Service) StoreSessionKey(ctx context.Context, channelID, userID uuid.UUID, encryptedKey string, version *int) (dto.StoreSessionKeyResponse, error) {
	if encryptedKey == "" {
		return dto.StoreSessionKeyResponse{}, apperrors.InvalidInput("encryptedKey is required")
	}
	keyVersion := 1
	if version != nil {
		if *version < 1 {
			return dto.StoreSessionKeyResponse{}, apperrors.InvalidInput("version must be >= 1")
		}
		keyVersion = *version
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.Channels().Get(ctx, channelID); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return apperrors.ErrChannelNotFound
			}
			return err
		}
		isMember, err := tx.Participants().Exists(ctx, channelID, userID)
		if err != nil {
			return err
		}
		if !isMember {
			return apperrors.ErrNotParticipant
		}
		return tx.SessionKeys().Upsert(ctx, domain.ChannelSessionKey{
			ID:                  uuid.New(),
			ChannelID:           channelID,
			UserID:              userID,
			EncryptedSessionKey: encryptedKey,
			KeyVersion:          keyVersion,
		})
	})
	if err != nil {
		return dto.StoreSessionKeyResponse{}, err
	}

	stored, err := s.store.SessionKeys().Get(ctx, channelID, userID, &keyVersion)
	if err != nil {
		return dto.StoreSessionKeyResponse{}, err
	}
	return dto.StoreSessionKeyResponse{
		ID:         stored.ID.String(),
		ChannelID:  stored.ChannelID.String(),
		UserID:     stored.UserID.String(),
		KeyVersion: stored.KeyVersion,
		CreatedAt:  stored.CreatedAt,
	}, nil
}

// GetSessionKey returns the envelope at the requested version, or the highest
// version on record when version is nil.
func (s *Service) GetSessionKey(ctx context.Context, channelID, userID uuid.UUID, version *int) (dto.SessionKeyResponse, error) {
	key, err := s.store.SessionKeys().Get(ctx, channelID, userID, version)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return dto.SessionKeyResponse{}, apperrors.ErrSessionKeyNotFound
		}
		return dto.SessionKeyResponse{}, err
	}
	return sessionKeyResponse(key), nil
}

// GetChannelSessionKeys returns every envelope for a channel, optionally
// filtered to one version.
func (s *Service) GetChannelSessionKeys(ctx context.Context, channelID uuid.UUID, version *int) ([]dto.SessionKeyResponse, error) {
	keys, err := s.store.SessionKeys().ForChannel(ctx, channelID, version)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SessionKeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, sessionKeyResponse(&keys[i]))
	}
	return out, nil
}

// AddSessionKeyForParticipant stores an envelope for a user joining an
// already-encrypted channel. The envelope lands at the currently active
// version, never a new one: a late joiner receives the live key, they do not
// trigger a rotation.
func (s *Service) AddSessionKeyForParticipant(ctx context.Context, channelID, userID uuid.UUID, encryptedKey string) (dto.StoreSessionKeyResponse, error) {
	if encryptedKey == "" {
		return dto.StoreSessionKeyResponse{}, apperrors.InvalidInput("encryptedSessionKey is required")
	}

	var keyVersion int
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		channel, err := tx.Channels().Get(ctx, channelID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return apperrors.ErrChannelNotFound
			}
			return err
		}
		if !channel.EncryptionEnabled {
			return apperrors.ErrChannelNotEncrypted
		}

		if _, err := tx.PublicKeys().LatestByUser(ctx, userID); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return apperrors.ErrParticipantWithoutKey
			}
			return err
		}

		maxVersion, err := tx.SessionKeys().MaxVersion(ctx, channelID)
		if err != nil {
			return err
		}
		keyVersion = maxVersion
		if keyVersion == 0 {
			keyVersion = 1
		}

		return tx.SessionKeys().Upsert(ctx, domain.ChannelSessionKey{
			ID:                  uuid.New(),
			ChannelID:           channelID,
			UserID:              userID,
			EncryptedSessionKey: encryptedKey,
			KeyVersion:          keyVersion,
		})
	})
	if err != nil {
		return dto.StoreSessionKeyResponse{}, err
	}

	stored, err := s.store.SessionKeys().Get(ctx, channelID, userID, &keyVersion)
	if err != nil {
		return dto.StoreSessionKeyResponse{}, err
	}
	return dto.StoreSessionKeyResponse{
		ID:         stored.ID.String(),
		ChannelID:  stored.ChannelID.String(),
		UserID:     stored.UserID.String(),
		KeyVersion: stored.KeyVersion,
		CreatedAt:  stored.CreatedAt,
	}, nil
}

// RotateSessionKey advances the channel to a new key version, all-or-nothing.
// Every current participant must have an envelope in the request: a partial
// write would strand a subset of clients unable to decrypt future messages
// while looking successful. The whole sequence runs in one transaction that
// first takes the channel row's write lock, so two concurrent rotations
// serialize and version numbers stay gap-free and strictly increasing.
func (s *Service) RotateSessionKey(ctx context.Context, channelID, actorID uuid.UUID, envelopes []dto.RotationEnvelope) (dto.RotateSessionKeyResponse, error) {
	if len(envelopes) == 0 {
		return dto.RotateSessionKeyResponse{}, apperrors.InvalidInput("encryptedSessionKeys array is required")
	}

	provided := make(map[uuid.UUID]string, len(envelopes))
	for _, env := range envelopes {
		id, err := uuid.Parse(env.UserID)
		if err != nil {
			return dto.RotateSessionKeyResponse{}, apperrors.InvalidInput("invalid userId in encryptedSessionKeys")
		}
		if env.EncryptedKey == "" {
			return dto.RotateSessionKeyResponse{}, apperrors.InvalidInput("encryptedKey is required for every participant")
		}
		provided[id] = env.EncryptedKey
	}

	var (
		newVersion       int
		participantCount int
	)
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		// Serializes rotations per channel before any version math.
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
		if !channel.EncryptionEnabled {
			return apperrors.ErrChannelNotEncrypted
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
		var missing []string
		for _, id := range participantIDs {
			if _, ok := provided[id]; !ok {
				missing = append(missing, id.String())
			}
		}
		if len(missing) > 0 {
			return apperrors.MissingKeys("missing encrypted session keys for users", missing)
		}

		maxVersion, err := tx.SessionKeys().MaxVersion(ctx, channelID)
		if err != nil {
			return err
		}
		newVersion = maxVersion + 1
		participantCount = len(participantIDs)

		records := make([]domain.ChannelSessionKey, 0, len(envelopes))
		for _, env := range envelopes {
			id, _ := uuid.Parse(env.UserID)
			records = append(records, domain.ChannelSessionKey{
				ID:                  uuid.New(),
				ChannelID:           channelID,
				UserID:              id,
				EncryptedSessionKey: env.EncryptedKey,
				KeyVersion:          newVersion,
			})
		}
		return tx.SessionKeys().CreateBatch(ctx, records)
	})
	if err != nil {
		return dto.RotateSessionKeyResponse{}, err
	}

	return dto.RotateSessionKeyResponse{
		ChannelID:        channelID.String(),
		KeyVersion:       newVersion,
		ParticipantCount: participantCount,
	}, nil
}

func sessionKeyResponse(key *domain.ChannelSessionKey) dto.SessionKeyResponse {
	return dto.SessionKeyResponse{
		ID:                  key.ID.String(),
		ChannelID:           key.ChannelID.String(),
		UserID:              key.UserID.String(),
		EncryptedSessionKey: key.EncryptedSessionKey,
		KeyVersion:          key.KeyVersion,
		CreatedAt:           key.CreatedAt,
	}
}
