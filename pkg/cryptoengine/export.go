package cryptoengine

import (
	"encoding/json"
	"time"
)

const backupFormatVersion = 1

// Backup is the cleartext key-backup document. The private key is carried as
// base64 PKCS#8 DER inside plain JSON; the file itself is NOT encrypted, so
// handling it safely is the holder's responsibility.
type Backup struct {
	Version    int       `json:"version"`
	UserID     string    `json:"userId"`
	PrivateKey []byte    `json:"privateKey"`
	ExportedAt time.Time `json:"exportedAt"`
}

// ExportKey reads the user's private key from the keystore and serializes it
// as a cleartext backup document.
func (s *Keystore) ExportKey(userID string) ([]byte, error) {
	priv, err := s.PrivateKey(userID)
	if err != nil {
		return nil, err
	}
	b := Backup{
		Version:    backupFormatVersion,
		UserID:     userID,
		PrivateKey: priv,
		ExportedAt: time.Now().UTC(),
	}
	return json.MarshalIndent(b, "", "  ")
}

// ImportKey parses a backup document, validates its shape, and stores the
// contained private key for the user. The key must parse as PKCS#8 RSA.
func (s *Keystore) ImportKey(userID string, data []byte) error {
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return ErrInvalidBackup
	}
	if b.Version != backupFormatVersion || len(b.PrivateKey) == 0 {
		return ErrInvalidBackup
	}
	if _, err := parsePrivateKey(b.PrivateKey); err != nil {
		return ErrInvalidBackup
	}
	return s.StorePrivateKey(userID, b.PrivateKey)
}
