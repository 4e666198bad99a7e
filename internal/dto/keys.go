package dto

import "time"

type RegisterPublicKeyRequest struct {
	PublicKey   string `json:"publicKey"`
	Fingerprint string `json:"fingerprint"`
	Algorithm   string `json:"algorithm,omitempty"`
}

type RegisterPublicKeyResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Fingerprint string    `json:"fingerprint"`
	KeyType     string    `json:"keyType"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PublicKeyResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	PublicKey   string    `json:"publicKey"`
	KeyType     string    `json:"keyType"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"createdAt"`
}

type UserEncryptionStatusResponse struct {
	HasKeys              bool       `json:"hasKeys"`
	PublicKeyFingerprint *string    `json:"publicKeyFingerprint"`
	KeyCreatedAt         *time.Time `json:"keyCreatedAt"`
	KeyType              string     `json:"keyType,omitempty"`
}

type UsersWithKeysResponse struct {
	UserIDs []string `json:"userIds"`
}

type RevokePublicKeysResponse struct {
	UserID  string `json:"userId"`
	Revoked int64  `json:"revoked"`
}
