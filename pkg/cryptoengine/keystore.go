package cryptoengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const keystoreFormatVersion = 1

// sealedKey is the on-disk JSON structure holding the sealed private key and
// the scrypt parameters used to derive its wrapping key.
type sealedKey struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }

// Keystore persists private keys on disk, one sealed file per user, encrypted
// under a passphrase-derived key.
type Keystore struct {
	dir        string
	passphrase string
	mu         sync.Mutex
}

// NewKeystore returns a keystore rooted at dir. The directory is created on
// first write.
func NewKeystore(dir, passphrase string) *Keystore {
	return &Keystore{dir: dir, passphrase: passphrase}
}

// StorePrivateKey seals privateKeyDER under the keystore passphrase and writes
// it to disk, replacing any previously stored key for the user.
func (s *Keystore) StorePrivateKey(userID string, privateKeyDER []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	blob, err := seal(s.passphrase, privateKeyDER)
	if err != nil {
		return err
	}
	return os.WriteFile(s.keyPath(userID), blob, 0o600)
}

// PrivateKey loads and unseals the stored private key for a user. Returns
// ErrKeyNotFound when no key has been stored.
func (s *Keystore) PrivateKey(userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(s.keyPath(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return open(s.passphrase, blob)
}

// HasKey reports whether a sealed private key exists for the user.
func (s *Keystore) HasKey(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(s.keyPath(userID))
	return err == nil
}

// DeleteKey removes the stored private key for a user. Deleting a key that
// does not exist is not an error.
func (s *Keystore) DeleteKey(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.keyPath(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Keystore) keyPath(userID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("key_%s.enc", userID))
}

// seal derives a key from the passphrase and seals raw into a JSON blob. The
// zero nonce is safe because each blob uses a fresh salt-bound key.
func seal(passphrase string, raw []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if err := readRandom(salt); err != nil {
		return nil, err
	}
	N, r, p := scryptParamsDefault()
	key, err := scrypt.Key([]byte(passphrase), salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], raw, salt)

	return json.Marshal(sealedKey{
		V:      keystoreFormatVersion,
		Salt:   salt,
		N:      N,
		R:      r,
		P:      p,
		Cipher: ct,
	})
}

// open unseals a JSON blob using a key derived from the passphrase. A wrong
// passphrase and a corrupted blob are indistinguishable.
func open(passphrase string, blob []byte) ([]byte, error) {
	var sk sealedKey
	if err := json.Unmarshal(blob, &sk); err != nil {
		return nil, err
	}
	if sk.V > keystoreFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", sk.V)
	}
	key, err := scrypt.Key([]byte(passphrase), sk.Salt, sk.N, sk.R, sk.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], sk.Cipher, sk.Salt)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}
