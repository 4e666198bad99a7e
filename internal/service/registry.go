package service

import (
	"context"
	"errors"
	"time"

	"e2ee-channels/internal/domain"
	"e2ee-channels/internal/dto"
	"e2ee-channels/internal/store"
	"e2ee-channels/pkg/apperrors"

	"github.com/google/uuid"
)

// StorePublicKey registers a new public key record for a user. Prior keys of
// the same user stay active; a fingerprint already registered by anyone is a
// conflict.
func (s *Service) StorePublicKey(ctx context.Context, userID uuid.UUID, req dto.RegisterPublicKeyRequest) (dto.RegisterPublicKeyResponse, error) {
	if req.PublicKey == "" || req.Fingerprint == "" {
		return dto.RegisterPublicKeyResponse{}, apperrors.InvalidInput("publicKey and fingerprint are required")
	}
	keyType := req.Algorithm
	if keyType == "" {
		keyType = defaultKeyType
	}

	record := domain.UserPublicKey{
		ID:          uuid.New(),
		UserID:      userID,
		PublicKey:   req.PublicKey,
		KeyType:     keyType,
		Fingerprint: req.Fingerprint,
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Users().Ensure(ctx, userID); err != nil {
			return err
		}
		taken, err := tx.PublicKeys().FingerprintExists(ctx, req.Fingerprint)
		if err != nil {
			return err
		}
		if taken {
			return apperrors.ErrFingerprintTaken
		}
		return tx.PublicKeys().Create(ctx, record)
	})
	if err != nil {
		return dto.RegisterPublicKeyResponse{}, err
	}

	stored, err := s.store.PublicKeys().LatestByUser(ctx, userID)
	if err != nil {
		return dto.RegisterPublicKeyResponse{}, err
	}
	return dto.RegisterPublicKeyResponse{
		ID:          stored.ID.String(),
		UserID:      stored.UserID.String(),
		Fingerprint: stored.Fingerprint,
		KeyType:     stored.KeyType,
		CreatedAt:   stored.CreatedAt,
	}, nil
}

// GetPublicKey returns the most recent non-revoked key for a user.
func (s *Service) GetPublicKey(ctx context.Context, userID uuid.UUID) (dto.PublicKeyResponse, error) {
	key, err := s.store.PublicKeys().LatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return dto.PublicKeyResponse{}, apperrors.ErrPublicKeyNotFound
		}
		return dto.PublicKeyResponse{}, err
	}
	return publicKeyResponse(key), nil
}

// GetPublicKeys returns the latest key per user, one entry per covered user.
func (s *Service) GetPublicKeys(ctx context.Context, userIDs []uuid.UUID) ([]dto.PublicKeyResponse, error) {
	keys, err := s.store.PublicKeys().LatestByUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	out := make([]dto.PublicKeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, publicKeyResponse(&keys[i]))
	}
	return out, nil
}

// GetUsersWithKeys filters ids down to those holding a current key.
func (s *Service) GetUsersWithKeys(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	return s.store.PublicKeys().UserIDsWithKeys(ctx, userIDs)
}

// UserEncryptionStatus summarizes a user's own key material.
func (s *Service) UserEncryptionStatus(ctx context.Context, userID uuid.UUID) (dto.UserEncryptionStatusResponse, error) {
	key, err := s.store.PublicKeys().LatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return dto.UserEncryptionStatusResponse{HasKeys: false}, nil
		}
		return dto.UserEncryptionStatusResponse{}, err
	}
	fp := key.Fingerprint
	createdAt := key.CreatedAt
	return dto.UserEncryptionStatusResponse{
		HasKeys:              true,
		PublicKeyFingerprint: &fp,
		KeyCreatedAt:         &createdAt,
		KeyType:              key.KeyType,
	}, nil
}

// RevokePublicKeys soft-revokes all of a user's active keys. Records stay on
// file for history; none are deleted.
func (s *Service) RevokePublicKeys(ctx context.Context, userID uuid.UUID) (dto.RevokePublicKeysResponse, error) {
	revoked, err := s.store.PublicKeys().RevokeByUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return dto.RevokePublicKeysResponse{}, err
	}
	if revoked == 0 {
		return dto.RevokePublicKeysResponse{}, apperrors.ErrPublicKeyNotFound
	}
	return dto.RevokePublicKeysResponse{UserID: userID.String(), Revoked: revoked}, nil
}

func publicKeyResponse(key *domain.UserPublicKey) dto.PublicKeyResponse {
	return dto.PublicKeyResponse{
		ID:          key.ID.String(),
		UserID:      key.UserID.String(),
		PublicKey:   key.PublicKey,
		KeyType:     key.KeyType,
		Fingerprint: key.Fingerprint,
		CreatedAt:   key.CreatedAt,
	}
}
