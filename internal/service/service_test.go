package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"e2ee-channels/internal/domain"
	"e2ee-channels/internal/dto"
	"e2ee-channels/internal/service"
	"e2ee-channels/internal/store"
	"e2ee-channels/pkg/apperrors"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*service.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := store.New(db)
	if err := st.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return service.New(st), db
}

func registerKey(t *testing.T, svc *service.Service, userID uuid.UUID) dto.RegisterPublicKeyResponse {
	t.Helper()

	fingerprint := fmt.Sprintf("%040x", []byte(uuid.NewString()[:20]))
	resp, err := svc.StorePublicKey(context.Background(), userID, dto.RegisterPublicKeyRequest{
		PublicKey:   "pk-" + fingerprint,
		Fingerprint: fingerprint,
	})
	if err != nil {
		t.Fatalf("register key for %s: %v", userID, err)
	}
	return resp
}

func createChannel(t *testing.T, svc *service.Service, creator uuid.UUID, others ...uuid.UUID) uuid.UUID {
	t.Helper()

	req := dto.CreateChannelRequest{Name: "test channel"}
	for _, id := range others {
		req.ParticipantIDs = append(req.ParticipantIDs, id.String())
	}
	resp, err := svc.CreateChannel(context.Background(), creator, req)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	id, err := uuid.Parse(resp.ID)
	if err != nil {
		t.Fatalf("parse channel id: %v", err)
	}
	return id
}

func TestStorePublicKey(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice := uuid.New()
	first := registerKey(t, svc, alice)
	if first.UserID != alice.String() {
		t.Fatalf("unexpected user id in response: %s", first.UserID)
	}
	if first.KeyType != "RSA-4096" {
		t.Fatalf("expected default key type RSA-4096, got %s", first.KeyType)
	}

	// The same fingerprint cannot be registered twice, even by another user.
	bob := uuid.New()
	_, err := svc.StorePublicKey(ctx, bob, dto.RegisterPublicKeyRequest{
		PublicKey:   "pk-dup",
		Fingerprint: first.Fingerprint,
	})
	if apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("expected CONFLICT for duplicate fingerprint, got %v", err)
	}

	// A new key does not revoke the old one, but lookups return the newest.
	second := registerKey(t, svc, alice)
	current, err := svc.GetPublicKey(ctx, alice)
	if err != nil {
		t.Fatalf("get public key: %v", err)
	}
	if current.Fingerprint != second.Fingerprint {
		t.Fatalf("expected newest key %s, got %s", second.Fingerprint, current.Fingerprint)
	}

	status, err := svc.UserEncryptionStatus(ctx, alice)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.HasKeys || status.PublicKeyFingerprint == nil || *status.PublicKeyFingerprint != second.Fingerprint {
		t.Fatalf("unexpected status: %+v", status)
	}

	revoked, err := svc.RevokePublicKeys(ctx, alice)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Revoked != 2 {
		t.Fatalf("expected 2 revoked keys, got %d", revoked.Revoked)
	}
	if _, err := svc.GetPublicKey(ctx, alice); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND after revocation, got %v", err)
	}
	if _, err := svc.RevokePublicKeys(ctx, alice); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND revoking again, got %v", err)
	}
}

func TestEnableEncryptionRequiresFullKeyCoverage(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	registerKey(t, svc, bob)

	channelID := createChannel(t, svc, alice, bob, carol)

	_, err := svc.EnableChannelEncryption(ctx, channelID, alice)
	if err == nil {
		t.Fatalf("expected enable to fail while carol has no keys")
	}
	missing := apperrors.MissingFrom(err)
	if len(missing) != 1 || missing[0] != carol.String() {
		t.Fatalf("expected missing list [%s], got %v", carol, missing)
	}

	// The failed attempt must not have flipped the flag.
	status, err := svc.ChannelEncryptionStatus(ctx, channelID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Enabled {
		t.Fatalf("channel enabled despite missing keys")
	}

	registerKey(t, svc, carol)
	resp, err := svc.EnableChannelEncryption(ctx, channelID, alice)
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !resp.EncryptionEnabled || resp.EncryptionEnabledBy != alice.String() {
		t.Fatalf("unexpected enable response: %+v", resp)
	}

	// Enabling twice is a conflict, not a silent success.
	if _, err := svc.EnableChannelEncryption(ctx, channelID, alice); apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("expected CONFLICT on second enable, got %v", err)
	}

	status, err = svc.ChannelEncryptionStatus(ctx, channelID)
	if err != nil {
		t.Fatalf("status after enable: %v", err)
	}
	if !status.Enabled || status.EnabledAt == nil || status.EnabledBy == nil {
		t.Fatalf("unexpected status after enable: %+v", status)
	}
	if len(status.ParticipantsWithKeys) != 3 || len(status.ParticipantsMissingKeys) != 0 {
		t.Fatalf("unexpected coverage: %+v", status)
	}
}

func TestEnableEncryptionRequiresMembership(t *testing.T) {
	svc, _ := setupService(t)

	alice, outsider := uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	registerKey(t, svc, outsider)
	channelID := createChannel(t, svc, alice)

	_, err := svc.EnableChannelEncryption(context.Background(), channelID, outsider)
	if apperrors.CodeOf(err) != apperrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-participant, got %v", err)
	}

	if _, err := svc.EnableChannelEncryption(context.Background(), uuid.New(), alice); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for unknown channel, got %v", err)
	}
}

func TestStatusRecomputesCoverageAfterEnable(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	registerKey(t, svc, bob)
	channelID := createChannel(t, svc, alice)

	if _, err := svc.EnableChannelEncryption(ctx, channelID, alice); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// Bob joins after enablement and then revokes his keys; the status must
	// reflect the live gap rather than the state at enable time.
	if _, err := svc.AddParticipant(ctx, channelID, bob, alice); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if _, err := svc.RevokePublicKeys(ctx, bob); err != nil {
		t.Fatalf("revoke bob: %v", err)
	}

	status, err := svc.ChannelEncryptionStatus(ctx, channelID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Enabled {
		t.Fatalf("enable is one-way, status must stay enabled")
	}
	if len(status.ParticipantsMissingKeys) != 1 || status.ParticipantsMissingKeys[0] != bob.String() {
		t.Fatalf("expected bob missing keys, got %+v", status)
	}
}

func TestAddAndRemoveParticipant(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice, bob, outsider := uuid.New(), uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	registerKey(t, svc, bob)
	registerKey(t, svc, outsider)
	channelID := createChannel(t, svc, alice)

	if _, err := svc.AddParticipant(ctx, channelID, bob, outsider); apperrors.CodeOf(err) != apperrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN when adder is not a member, got %v", err)
	}

	resp, err := svc.AddParticipant(ctx, channelID, bob, alice)
	if err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if !resp.Success || resp.ChannelEncrypted || resp.ParticipantHasKeys != nil {
		t.Fatalf("unexpected add response on plaintext channel: %+v", resp)
	}

	if _, err := svc.AddParticipant(ctx, channelID, bob, alice); apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("expected CONFLICT adding bob twice, got %v", err)
	}
	if _, err := svc.AddParticipant(ctx, channelID, uuid.New(), alice); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for unknown user, got %v", err)
	}

	removed, err := svc.RemoveParticipant(ctx, channelID, bob, alice)
	if err != nil {
		t.Fatalf("remove bob: %v", err)
	}
	if !removed.Success || removed.RequiresKeyRotation {
		t.Fatalf("plaintext removal should not require rotation: %+v", removed)
	}

	if _, err := svc.RemoveParticipant(ctx, channelID, bob, alice); apperrors.CodeOf(err) != apperrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN removing bob twice, got %v", err)
	}
}

func TestSessionKeyVersioning(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	registerKey(t, svc, bob)
	channelID := createChannel(t, svc, alice, bob)

	if _, err := svc.StoreSessionKey(ctx, channelID, alice, "", nil); apperrors.CodeOf(err) != apperrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT for empty key, got %v", err)
	}
	zero := 0
	if _, err := svc.StoreSessionKey(ctx, channelID, alice, "env", &zero); apperrors.CodeOf(err) != apperrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT for version 0, got %v", err)
	}
	if _, err := svc.StoreSessionKey(ctx, channelID, uuid.New(), "env", nil); apperrors.CodeOf(err) != apperrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-member, got %v", err)
	}
	if _, err := svc.StoreSessionKey(ctx, uuid.New(), alice, "env", nil); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for unknown channel, got %v", err)
	}

	stored, err := svc.StoreSessionKey(ctx, channelID, alice, "alice-v1", nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored.KeyVersion != 1 {
		t.Fatalf("expected default version 1, got %d", stored.KeyVersion)
	}

	// Re-storing the same (channel, user, version) replaces the envelope.
	if _, err := svc.StoreSessionKey(ctx, channelID, alice, "alice-v1-replaced", nil); err != nil {
		t.Fatalf("re-store: %v", err)
	}
	got, err := svc.GetSessionKey(ctx, channelID, alice, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EncryptedSessionKey != "alice-v1-replaced" || got.KeyVersion != 1 {
		t.Fatalf("unexpected envelope after upsert: %+v", got)
	}

	if _, err := svc.GetSessionKey(ctx, channelID, bob, nil); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for bob with no envelope, got %v", err)
	}
}

func TestRotationIsAllOrNothing(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	registerKey(t, svc, bob)
	registerKey(t, svc, carol)
	channelID := createChannel(t, svc, alice, bob, carol)

	if _, err := svc.RotateSessionKey(ctx, channelID, alice, []dto.RotationEnvelope{
		{UserID: alice.String(), EncryptedKey: "a"},
	}); apperrors.CodeOf(err) != apperrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT rotating a plaintext channel, got %v", err)
	}

	if _, err := svc.EnableChannelEncryption(ctx, channelID, alice); err != nil {
		t.Fatalf("enable: %v", err)
	}
	for _, id := range []uuid.UUID{alice, bob, carol} {
		if _, err := svc.StoreSessionKey(ctx, channelID, id, "v1-"+id.String(), nil); err != nil {
			t.Fatalf("store v1 for %s: %v", id, err)
		}
	}

	// Envelopes for a strict subset of participants must fail and leave the
	// version untouched.
	_, err := svc.RotateSessionKey(ctx, channelID, alice, []dto.RotationEnvelope{
		{UserID: alice.String(), EncryptedKey: "v2-alice"},
		{UserID: bob.String(), EncryptedKey: "v2-bob"},
	})
	if err == nil {
		t.Fatalf("expected partial rotation to fail")
	}
	missing := apperrors.MissingFrom(err)
	if len(missing) != 1 || missing[0] != carol.String() {
		t.Fatalf("expected missing [%s], got %v", carol, missing)
	}
	current, err := svc.GetSessionKey(ctx, channelID, alice, nil)
	if err != nil {
		t.Fatalf("get after failed rotation: %v", err)
	}
	if current.KeyVersion != 1 {
		t.Fatalf("failed rotation advanced the version to %d", current.KeyVersion)
	}

	rotated, err := svc.RotateSessionKey(ctx, channelID, alice, []dto.RotationEnvelope{
		{UserID: alice.String(), EncryptedKey: "v2-alice"},
		{UserID: bob.String(), EncryptedKey: "v2-bob"},
		{UserID: carol.String(), EncryptedKey: "v2-carol"},
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.KeyVersion != 2 || rotated.ParticipantCount != 3 {
		t.Fatalf("unexpected rotation response: %+v", rotated)
	}

	if _, err := svc.RotateSessionKey(ctx, channelID, uuid.New(), []dto.RotationEnvelope{
		{UserID: alice.String(), EncryptedKey: "x"},
		{UserID: bob.String(), EncryptedKey: "x"},
		{UserID: carol.String(), EncryptedKey: "x"},
	}); apperrors.CodeOf(err) != apperrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-member rotation, got %v", err)
	}
}

// Exercises the remove-and-rotate flow: a departing member keeps their old
// envelopes but never receives the new version, and a late joiner receives
// the live version rather than triggering a rotation.
func TestRemovedMemberIsLockedOutOfNewVersions(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	registerKey(t, svc, bob)
	registerKey(t, svc, carol)
	channelID := createChannel(t, svc, alice, bob)

	if _, err := svc.EnableChannelEncryption(ctx, channelID, alice); err != nil {
		t.Fatalf("enable: %v", err)
	}
	for _, id := range []uuid.UUID{alice, bob} {
		if _, err := svc.StoreSessionKey(ctx, channelID, id, "v1-"+id.String(), nil); err != nil {
			t.Fatalf("store v1: %v", err)
		}
	}

	removed, err := svc.RemoveParticipant(ctx, channelID, bob, alice)
	if err != nil {
		t.Fatalf("remove bob: %v", err)
	}
	if !removed.RequiresKeyRotation {
		t.Fatalf("removal from encrypted channel must flag rotation")
	}

	rotated, err := svc.RotateSessionKey(ctx, channelID, alice, []dto.RotationEnvelope{
		{UserID: alice.String(), EncryptedKey: "v2-alice"},
	})
	if err != nil {
		t.Fatalf("rotate after removal: %v", err)
	}
	if rotated.KeyVersion != 2 {
		t.Fatalf("expected version 2, got %d", rotated.KeyVersion)
	}

	// Bob still holds his version-1 envelope but nothing newer.
	bobKey, err := svc.GetSessionKey(ctx, channelID, bob, nil)
	if err != nil {
		t.Fatalf("bob old envelope: %v", err)
	}
	if bobKey.KeyVersion != 1 {
		t.Fatalf("bob should be locked at version 1, got %d", bobKey.KeyVersion)
	}

	// Carol joins the encrypted channel and receives the live version.
	addResp, err := svc.AddParticipant(ctx, channelID, carol, alice)
	if err != nil {
		t.Fatalf("add carol: %v", err)
	}
	if addResp.ParticipantHasKeys == nil || !*addResp.ParticipantHasKeys {
		t.Fatalf("carol has keys, response disagrees: %+v", addResp)
	}
	joined, err := svc.AddSessionKeyForParticipant(ctx, channelID, carol, "v2-carol")
	if err != nil {
		t.Fatalf("add carol session key: %v", err)
	}
	if joined.KeyVersion != 2 {
		t.Fatalf("late joiner must land on the live version 2, got %d", joined.KeyVersion)
	}

	version2 := 2
	keys, err := svc.GetChannelSessionKeys(ctx, channelID, &version2)
	if err != nil {
		t.Fatalf("channel keys: %v", err)
	}
	holders := make(map[string]bool, len(keys))
	for _, k := range keys {
		holders[k.UserID] = true
	}
	if !holders[alice.String()] || !holders[carol.String()] || holders[bob.String()] {
		t.Fatalf("unexpected version-2 holders: %v", holders)
	}
}

// Enable's coverage check and rotation's completeness check are only sound
// if membership changes cannot interleave with them. All four channel
// mutators take the channel row's write lock by updating the row inside
// their transaction; this pins the write so the serialization cannot be
// silently dropped from one of them.
func TestChannelMutatorsWriteChannelRow(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	registerKey(t, svc, bob)
	channelID := createChannel(t, svc, alice)

	updatedAt := func() time.Time {
		t.Helper()
		var ch domain.Channel
		if err := db.First(&ch, "id = ?", channelID).Error; err != nil {
			t.Fatalf("load channel: %v", err)
		}
		return ch.UpdatedAt
	}

	stamp := updatedAt()
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.AddParticipant(ctx, channelID, bob, alice); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if next := updatedAt(); !next.After(stamp) {
		t.Fatalf("adding a participant did not write the channel row")
	} else {
		stamp = next
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := svc.RemoveParticipant(ctx, channelID, bob, alice); err != nil {
		t.Fatalf("remove bob: %v", err)
	}
	if next := updatedAt(); !next.After(stamp) {
		t.Fatalf("removing a participant did not write the channel row")
	} else {
		stamp = next
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := svc.EnableChannelEncryption(ctx, channelID, alice); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if next := updatedAt(); !next.After(stamp) {
		t.Fatalf("enabling encryption did not write the channel row")
	} else {
		stamp = next
	}

	if _, err := svc.StoreSessionKey(ctx, channelID, alice, "v1-alice", nil); err != nil {
		t.Fatalf("store v1: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.RotateSessionKey(ctx, channelID, alice, []dto.RotationEnvelope{
		{UserID: alice.String(), EncryptedKey: "v2-alice"},
	}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !updatedAt().After(stamp) {
		t.Fatalf("rotating did not write the channel row")
	}
}

func TestAddSessionKeyForParticipantGuards(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	registerKey(t, svc, alice)
	channelID := createChannel(t, svc, alice)

	if _, err := svc.AddSessionKeyForParticipant(ctx, channelID, alice, "env"); apperrors.CodeOf(err) != apperrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT on plaintext channel, got %v", err)
	}

	if _, err := svc.EnableChannelEncryption(ctx, channelID, alice); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := svc.AddSessionKeyForParticipant(ctx, channelID, bob, "env"); apperrors.CodeOf(err) != apperrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT for keyless user, got %v", err)
	}
}
