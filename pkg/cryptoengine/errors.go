package cryptoengine

import "errors"

var (
	// ErrDecryptionFailed is returned for any failure while unwrapping a
	// session key or opening a message envelope. The cause is deliberately
	// not exposed: wrong key, tampered ciphertext and corrupted IV are
	// indistinguishable to the caller.
	ErrDecryptionFailed = errors.New("cryptoengine: decryption failed")

	ErrInvalidPublicKey  = errors.New("cryptoengine: invalid public key")
	ErrInvalidPrivateKey = errors.New("cryptoengine: invalid private key")
	ErrInvalidSessionKey = errors.New("cryptoengine: session key must be 32 bytes")
	ErrInvalidEnvelope   = errors.New("cryptoengine: malformed message envelope")
	ErrNoRecipients      = errors.New("cryptoengine: at least one recipient public key required")

	ErrKeyNotFound   = errors.New("cryptoengine: no private key stored for user")
	ErrInvalidBackup = errors.New("cryptoengine: invalid backup file format")
)
