package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"e2ee-channels/pkg/apperrors"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestWriteErrorHidesWrappedCauses(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, apperrors.CryptoFailure(errors.New("rsa: decryption error in OAEP unpad")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body.Code != "CRYPTO_FAILURE" {
		t.Fatalf("unexpected code %s", body.Code)
	}
	if body.Error != "cryptographic operation failed" {
		t.Fatalf("cause text leaked to the caller: %q", body.Error)
	}

	rec = httptest.NewRecorder()
	writeError(rec, apperrors.Wrap(apperrors.CodeConflict, "public key with this fingerprint already exists",
		errors.New("UNIQUE constraint failed: user_public_keys.fingerprint")))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	body = decodeErrorBody(t, rec)
	if strings.Contains(body.Error, "UNIQUE constraint") {
		t.Fatalf("cause text leaked to the caller: %q", body.Error)
	}
}

func TestWriteErrorMasksInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body.Error != "internal error" {
		t.Fatalf("internal cause leaked: %q", body.Error)
	}
}
