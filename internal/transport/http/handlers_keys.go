package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"e2ee-channels/internal/dto"
	"e2ee-channels/internal/observability/metrics"
	"e2ee-channels/internal/observability/middleware"
	"e2ee-channels/internal/service"
	"e2ee-channels/pkg/apperrors"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type handler struct {
	svc *service.Service
}

func (h *handler) registerPublicKey(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())

	var req dto.RegisterPublicKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.PublicKeysRegisteredTotal.WithLabelValues("failure").Inc()
		writeError(w, apperrors.InvalidInput("invalid request body"))
		return
	}

	res, err := h.svc.StorePublicKey(r.Context(), userID, req)
	if err != nil {
		metrics.PublicKeysRegisteredTotal.WithLabelValues("failure").Inc()
		slog.Warn("public key registration failed", "error", err, "user_id", userID, "request_id", reqID)
		writeError(w, err)
		return
	}
	metrics.PublicKeysRegisteredTotal.WithLabelValues("success").Inc()
	slog.Info("public key registered", "user_id", res.UserID, "fingerprint", res.Fingerprint, "request_id", reqID)
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) getPublicKey(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, apperrors.InvalidInput("invalid userId"))
		return
	}
	res, err := h.svc.GetPublicKey(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// getPublicKeys serves the bulk variant: one latest key per requested user,
// users without a current key silently absent.
func (h *handler) getPublicKeys(w http.ResponseWriter, r *http.Request) {
	ids, ok := userIDsQuery(w, r)
	if !ok {
		return
	}
	res, err := h.svc.GetPublicKeys(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) usersWithKeys(w http.ResponseWriter, r *http.Request) {
	ids, ok := userIDsQuery(w, r)
	if !ok {
		return
	}
	withKeys, err := h.svc.GetUsersWithKeys(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	out := dto.UsersWithKeysResponse{UserIDs: make([]string, 0, len(withKeys))}
	for _, id := range withKeys {
		out.UserIDs = append(out.UserIDs, id.String())
	}
	writeJSON(w, http.StatusOK, out)
}

func userIDsQuery(w http.ResponseWriter, r *http.Request) ([]uuid.UUID, bool) {
	raw := strings.Split(r.URL.Query().Get("ids"), ",")
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, apperrors.InvalidInput("invalid user id in ids"))
			return nil, false
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		writeError(w, apperrors.InvalidInput("ids query parameter is required"))
		return nil, false
	}
	return ids, true
}

func (h *handler) userEncryptionStatus(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	res, err := h.svc.UserEncryptionStatus(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) revokePublicKeys(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())
	res, err := h.svc.RevokePublicKeys(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("public keys revoked", "user_id", res.UserID, "revoked", res.Revoked, "request_id", reqID)
	writeJSON(w, http.StatusOK, res)
}
