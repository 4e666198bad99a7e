// Package cryptoengine implements the client-side cryptography for
// end-to-end encrypted channels: RSA-OAEP key pairs, AES-256-GCM message
// envelopes with per-recipient key wrapping, and PKCS#1 v1.5 signatures.
//
// Keys cross the package boundary as DER bytes (SPKI for public keys,
// PKCS#8 for private keys) so they can be transported as base64 without
// any further conversion.
package cryptoengine

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
)

const (
	// KeyAlgorithm names the asymmetric scheme used for key pairs.
	KeyAlgorithm = "RSA-4096"
	// EnvelopeAlgorithm names the symmetric scheme used for message payloads.
	EnvelopeAlgorithm = "AES-256-GCM"

	modulusBits    = 4096
	sessionKeyLen  = 32
	ivLen          = 12
	fingerprintLen = 40
)

// KeyPair holds a freshly generated key pair in DER form together with the
// fingerprint of its public half.
type KeyPair struct {
	PublicKey   []byte
	PrivateKey  []byte
	Fingerprint string
	Algorithm   string
}

// GenerateKeyPair creates a 4096-bit RSA key pair and returns the public key
// as SPKI DER and the private key as PKCS#8 DER.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(randomSource(), modulusBits)
	if err != nil {
		return nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		PublicKey:   pubDER,
		PrivateKey:  privDER,
		Fingerprint: Fingerprint(pubDER),
		Algorithm:   KeyAlgorithm,
	}, nil
}

// Fingerprint computes the key fingerprint of a public key: the hex-encoded
// SHA-256 digest of the SPKI DER bytes, truncated to 40 characters.
func Fingerprint(publicKeyDER []byte) string {
	sum := sha256.Sum256(publicKeyDER)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// PublicKeyFromPrivate derives the SPKI DER public half of a PKCS#8 private
// key.
func PublicKeyFromPrivate(privateKeyDER []byte) ([]byte, error) {
	priv, err := parsePrivateKey(privateKeyDER)
	if err != nil {
		return nil, err
	}
	return x509.MarshalPKIXPublicKey(&priv.PublicKey)
}

// GenerateSessionKey returns 32 bytes of fresh randomness for use as an
// AES-256 key.
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, sessionKeyLen)
	if err := readRandom(key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptSessionKey wraps a session key for one recipient with RSA-OAEP
// (SHA-256).
func EncryptSessionKey(sessionKey, publicKeyDER []byte) ([]byte, error) {
	if len(sessionKey) != sessionKeyLen {
		return nil, ErrInvalidSessionKey
	}
	pub, err := parsePublicKey(publicKeyDER)
	if err != nil {
		return nil, err
	}
	return rsa.EncryptOAEP(sha256.New(), randomSource(), pub, sessionKey, nil)
}

// DecryptSessionKey unwraps a session key with the holder's private key.
// Any failure reports ErrDecryptionFailed.
func DecryptSessionKey(wrappedKey, privateKeyDER []byte) ([]byte, error) {
	priv, err := parsePrivateKey(privateKeyDER)
	if err != nil {
		return nil, err
	}
	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrappedKey, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(key) != sessionKeyLen {
		return nil, ErrDecryptionFailed
	}
	return key, nil
}

// WrappedKey carries one recipient's copy of the envelope session key.
type WrappedKey struct {
	EncryptedKey []byte `json:"encryptedKey"`
}

// Envelope is an encrypted message: the AES-GCM ciphertext, the IV used for
// this message, and the session key wrapped once per recipient.
type Envelope struct {
	Ciphertext    []byte       `json:"ciphertext"`
	IV            []byte       `json:"iv"`
	RecipientKeys []WrappedKey `json:"encryptedSessionKeys"`
	Algorithm     string       `json:"algorithm"`
}

// EncryptMessage seals plaintext for a set of recipients. When sessionKey is
// nil a fresh one is generated; either way a new 96-bit IV is drawn for the
// message. Recipient keys appear in the envelope in the order given.
func EncryptMessage(plaintext []byte, recipientPublicKeys [][]byte, sessionKey []byte) (*Envelope, error) {
	if len(recipientPublicKeys) == 0 {
		return nil, ErrNoRecipients
	}
	if sessionKey == nil {
		var err error
		sessionKey, err = GenerateSessionKey()
		if err != nil {
			return nil, err
		}
	} else if len(sessionKey) != sessionKeyLen {
		return nil, ErrInvalidSessionKey
	}

	iv := make([]byte, ivLen)
	if err := readRandom(iv); err != nil {
		return nil, err
	}
	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	wrapped := make([]WrappedKey, 0, len(recipientPublicKeys))
	for _, pubDER := range recipientPublicKeys {
		wk, err := EncryptSessionKey(sessionKey, pubDER)
		if err != nil {
			return nil, err
		}
		wrapped = append(wrapped, WrappedKey{EncryptedKey: wk})
	}

	return &Envelope{
		Ciphertext:    ciphertext,
		IV:            iv,
		RecipientKeys: wrapped,
		Algorithm:     EnvelopeAlgorithm,
	}, nil
}

// DecryptMessage opens an envelope using the recipient's wrapped session key
// and private key. All crypto failures report ErrDecryptionFailed without
// distinguishing the cause.
func DecryptMessage(env *Envelope, wrappedKey, privateKeyDER []byte) ([]byte, error) {
	if env == nil || len(env.IV) != ivLen {
		return nil, ErrInvalidEnvelope
	}
	sessionKey, err := DecryptSessionKey(wrappedKey, privateKeyDER)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := gcm.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SignMessage produces an RSASSA-PKCS1-v1_5 signature over the SHA-256 digest
// of data. Signatures are deterministic for a given key and input.
func SignMessage(data, privateKeyDER []byte) ([]byte, error) {
	priv, err := parsePrivateKey(privateKeyDER)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(nil, priv, crypto.SHA256, digest[:])
}

// VerifySignature reports whether signature is valid for data under the given
// public key. Malformed inputs verify as false rather than erroring.
func VerifySignature(data, signature, publicKeyDER []byte) bool {
	pub, err := parsePublicKey(publicKeyDER)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature) == nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func parsePublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidPrivateKey
	}
	return priv, nil
}
