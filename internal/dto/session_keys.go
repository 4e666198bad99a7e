package dto

import "time"

type StoreSessionKeyRequest struct {
	EncryptedKey string `json:"encryptedKey"`
	Version      *int   `json:"version,omitempty"`
}

type StoreSessionKeyResponse struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channelId"`
	UserID     string    `json:"userId"`
	KeyVersion int       `json:"keyVersion"`
	CreatedAt  time.Time `json:"createdAt"`
}

type SessionKeyResponse struct {
	ID                  string    `json:"id"`
	ChannelID           string    `json:"channelId"`
	UserID              string    `json:"userId"`
	EncryptedSessionKey string    `json:"encryptedSessionKey"`
	KeyVersion          int       `json:"keyVersion"`
	CreatedAt           time.Time `json:"createdAt"`
}

type AddParticipantSessionKeyRequest struct {
	EncryptedSessionKey string `json:"encryptedSessionKey"`
}

type RotationEnvelope struct {
	UserID       string `json:"userId"`
	EncryptedKey string `json:"encryptedKey"`
}

type RotateSessionKeyRequest struct {
	EncryptedSessionKeys []RotationEnvelope `json:"encryptedSessionKeys"`
}

type RotateSessionKeyResponse struct {
	ChannelID        string `json:"channelId"`
	KeyVersion       int    `json:"keyVersion"`
	ParticipantCount int    `json:"participantCount"`
}
