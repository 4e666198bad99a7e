package cryptoengine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
)

// 4096-bit generation is slow, so the two test key pairs are shared across
// all tests in the package.
var (
	testKeysOnce sync.Once
	testKeysErr  error
	aliceKeys    *KeyPair
	bobKeys      *KeyPair
)

func testKeyPairs(t *testing.T) (alice, bob *KeyPair) {
	t.Helper()
	testKeysOnce.Do(func() {
		aliceKeys, testKeysErr = GenerateKeyPair()
		if testKeysErr == nil {
			bobKeys, testKeysErr = GenerateKeyPair()
		}
	})
	if testKeysErr != nil {
		t.Fatalf("generate test key pairs: %v", testKeysErr)
	}
	return aliceKeys, bobKeys
}

func deterministicReader(size int) *bytes.Reader {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return bytes.NewReader(buf)
}

func TestFingerprint(t *testing.T) {
	alice, bob := testKeyPairs(t)

	fp := Fingerprint(alice.PublicKey)
	if len(fp) != 40 {
		t.Fatalf("expected 40-char fingerprint, got %d chars: %s", len(fp), fp)
	}
	if _, err := hex.DecodeString(fp); err != nil {
		t.Fatalf("fingerprint is not hex: %v", err)
	}
	if fp != alice.Fingerprint {
		t.Fatalf("fingerprint mismatch: %s vs %s", fp, alice.Fingerprint)
	}
	if Fingerprint(alice.PublicKey) != fp {
		t.Fatalf("fingerprint not deterministic for same key")
	}
	if Fingerprint(bob.PublicKey) == fp {
		t.Fatalf("distinct keys produced the same fingerprint")
	}

	sum := sha256.Sum256(alice.PublicKey)
	if want := hex.EncodeToString(sum[:])[:40]; fp != want {
		t.Fatalf("fingerprint %s is not the truncated SPKI digest %s", fp, want)
	}
}

func TestPublicKeyFromPrivate(t *testing.T) {
	alice, _ := testKeyPairs(t)

	pub, err := PublicKeyFromPrivate(alice.PrivateKey)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	if !bytes.Equal(pub, alice.PublicKey) {
		t.Fatalf("derived public key differs from generated one")
	}
}

func TestSessionKeyWrapUnwrap(t *testing.T) {
	alice, bob := testKeyPairs(t)

	sessionKey, err := GenerateSessionKey()
	if err != nil {
		t.Fatalf("session key: %v", err)
	}
	if len(sessionKey) != 32 {
		t.Fatalf("expected 32-byte session key, got %d", len(sessionKey))
	}

	forAlice, err := EncryptSessionKey(sessionKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("wrap for alice: %v", err)
	}
	forBob, err := EncryptSessionKey(sessionKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("wrap for bob: %v", err)
	}
	if bytes.Equal(forAlice, forBob) {
		t.Fatalf("wrapped keys for different recipients should differ")
	}

	unwrapped, err := DecryptSessionKey(forAlice, alice.PrivateKey)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(unwrapped, sessionKey) {
		t.Fatalf("unwrap mismatch")
	}

	if _, err := DecryptSessionKey(forAlice, bob.PrivateKey); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed with wrong key, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, bob := testKeyPairs(t)

	plaintexts := [][]byte{
		{},
		[]byte("x"),
		[]byte("héllo wörld é世界 \U0001F512"),
		bytes.Repeat([]byte("lorem ipsum "), 512),
	}
	for _, plaintext := range plaintexts {
		env, err := EncryptMessage(plaintext, [][]byte{alice.PublicKey, bob.PublicKey}, nil)
		if err != nil {
			t.Fatalf("encrypt %d bytes: %v", len(plaintext), err)
		}
		if env.Algorithm != EnvelopeAlgorithm {
			t.Fatalf("unexpected envelope algorithm %s", env.Algorithm)
		}
		if len(env.IV) != 12 {
			t.Fatalf("expected 12-byte IV, got %d", len(env.IV))
		}
		if len(env.RecipientKeys) != 2 {
			t.Fatalf("expected 2 wrapped keys, got %d", len(env.RecipientKeys))
		}

		got, err := DecryptMessage(env, env.RecipientKeys[0].EncryptedKey, alice.PrivateKey)
		if err != nil {
			t.Fatalf("alice decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("alice plaintext mismatch for %d bytes", len(plaintext))
		}
		got, err = DecryptMessage(env, env.RecipientKeys[1].EncryptedKey, bob.PrivateKey)
		if err != nil {
			t.Fatalf("bob decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("bob plaintext mismatch for %d bytes", len(plaintext))
		}
	}
}

func TestDecryptFailuresAreIndistinguishable(t *testing.T) {
	alice, bob := testKeyPairs(t)

	env, err := EncryptMessage([]byte("secret"), [][]byte{alice.PublicKey}, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Wrong private key for the wrapped session key.
	if _, err := DecryptMessage(env, env.RecipientKeys[0].EncryptedKey, bob.PrivateKey); err != ErrDecryptionFailed {
		t.Fatalf("wrong key: expected ErrDecryptionFailed, got %v", err)
	}

	// Flipped bit in the ciphertext.
	tampered := *env
	tampered.Ciphertext = append([]byte(nil), env.Ciphertext...)
	tampered.Ciphertext[0] ^= 0x01
	if _, err := DecryptMessage(&tampered, env.RecipientKeys[0].EncryptedKey, alice.PrivateKey); err != ErrDecryptionFailed {
		t.Fatalf("tampered ciphertext: expected ErrDecryptionFailed, got %v", err)
	}

	// Flipped bit in the IV.
	tampered = *env
	tampered.IV = append([]byte(nil), env.IV...)
	tampered.IV[3] ^= 0x80
	if _, err := DecryptMessage(&tampered, env.RecipientKeys[0].EncryptedKey, alice.PrivateKey); err != ErrDecryptionFailed {
		t.Fatalf("tampered IV: expected ErrDecryptionFailed, got %v", err)
	}

	// Corrupted wrapped key.
	badWrap := append([]byte(nil), env.RecipientKeys[0].EncryptedKey...)
	badWrap[10] ^= 0xff
	if _, err := DecryptMessage(env, badWrap, alice.PrivateKey); err != ErrDecryptionFailed {
		t.Fatalf("corrupted wrapped key: expected ErrDecryptionFailed, got %v", err)
	}
}

func TestEnvelopeFreshness(t *testing.T) {
	alice, _ := testKeyPairs(t)

	plaintext := []byte("same message twice")
	first, err := EncryptMessage(plaintext, [][]byte{alice.PublicKey}, nil)
	if err != nil {
		t.Fatalf("first encrypt: %v", err)
	}
	second, err := EncryptMessage(plaintext, [][]byte{alice.PublicKey}, nil)
	if err != nil {
		t.Fatalf("second encrypt: %v", err)
	}
	if bytes.Equal(first.IV, second.IV) {
		t.Fatalf("IV reused across messages")
	}
	if bytes.Equal(first.Ciphertext, second.Ciphertext) {
		t.Fatalf("identical ciphertext for identical plaintext")
	}
}

func TestDeterministicRandomHook(t *testing.T) {
	restore := UseDeterministicRandom(deterministicReader(4096))
	defer restore()

	key, err := GenerateSessionKey()
	if err != nil {
		t.Fatalf("session key: %v", err)
	}
	want := make([]byte, 32)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if !bytes.Equal(key, want) {
		t.Fatalf("unexpected session key %s", hex.EncodeToString(key))
	}
}

func TestSignVerify(t *testing.T) {
	alice, bob := testKeyPairs(t)

	data := []byte("signed payload")
	sig, err := SignMessage(data, alice.PrivateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	again, err := SignMessage(data, alice.PrivateKey)
	if err != nil {
		t.Fatalf("sign again: %v", err)
	}
	if !bytes.Equal(sig, again) {
		t.Fatalf("signatures over identical input should be identical")
	}

	if !VerifySignature(data, sig, alice.PublicKey) {
		t.Fatalf("valid signature rejected")
	}
	if VerifySignature([]byte("signed payloaD"), sig, alice.PublicKey) {
		t.Fatalf("signature verified over altered data")
	}
	if VerifySignature(data, sig, bob.PublicKey) {
		t.Fatalf("signature verified under wrong key")
	}
	if VerifySignature(data, sig[:len(sig)-1], alice.PublicKey) {
		t.Fatalf("truncated signature verified")
	}
}

func TestInvalidInputs(t *testing.T) {
	alice, _ := testKeyPairs(t)

	if _, err := EncryptMessage([]byte("x"), nil, nil); err != ErrNoRecipients {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if _, err := EncryptMessage([]byte("x"), [][]byte{alice.PublicKey}, []byte("short")); err != ErrInvalidSessionKey {
		t.Fatalf("expected ErrInvalidSessionKey, got %v", err)
	}
	if _, err := EncryptSessionKey(make([]byte, 32), []byte("not a key")); err != ErrInvalidPublicKey {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
	if _, err := DecryptSessionKey([]byte("junk"), []byte("not a key")); err != ErrInvalidPrivateKey {
		t.Fatalf("expected ErrInvalidPrivateKey, got %v", err)
	}
	if _, err := DecryptMessage(nil, nil, alice.PrivateKey); err != ErrInvalidEnvelope {
		t.Fatalf("expected ErrInvalidEnvelope for nil envelope, got %v", err)
	}
	if !strings.HasPrefix(ErrDecryptionFailed.Error(), "cryptoengine:") {
		t.Fatalf("unexpected error text %q", ErrDecryptionFailed)
	}
}
