package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

type Channel struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name                string     `gorm:"type:text"`
	CreatedBy           uuid.UUID  `gorm:"type:uuid;not null"`
	EncryptionEnabled   bool       `gorm:"not null;default:false"`
	EncryptionEnabledAt *time.Time `gorm:"type:timestamptz"`
	EncryptionEnabledBy *uuid.UUID `gorm:"type:uuid"`
	CreatedAt           time.Time  `gorm:"not null;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"not null;autoUpdateTime"`
}

type ChannelParticipant struct {
	ChannelID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	JoinedAt  time.Time `gorm:"not null;autoCreateTime"`
}

// UserPublicKey rows are append-only: a new registration never mutates or
// deletes prior rows, and revocation only sets RevokedAt.
type UserPublicKey struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	PublicKey   string     `gorm:"type:text;not null"`
	KeyType     string     `gorm:"type:varchar(50);not null;default:'RSA-4096'"`
	Fingerprint string     `gorm:"type:varchar(128);not null;uniqueIndex"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"`
	RevokedAt   *time.Time `gorm:"type:timestamptz"`
}

// ChannelSessionKey holds one wrapped session-key envelope per
// (channel, user, version). The ciphertext is opaque to the server.
type ChannelSessionKey struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChannelID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_channel_session_keys_cuv,priority:1"`
	UserID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_channel_session_keys_cuv,priority:2"`
	EncryptedSessionKey string    `gorm:"type:text;not null"`
	KeyVersion          int       `gorm:"not null;default:1;uniqueIndex:idx_channel_session_keys_cuv,priority:3"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime"`
}
