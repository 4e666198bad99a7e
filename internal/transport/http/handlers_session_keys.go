package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"e2ee-channels/internal/dto"
	"e2ee-channels/internal/observability/metrics"
	"e2ee-channels/internal/observability/middleware"
	"e2ee-channels/pkg/apperrors"
)

func (h *handler) storeSessionKey(w http.ResponseWriter, r *http.Request) {
	channelID, ok := channelParam(w, r)
	if !ok {
		return
	}
	var req dto.StoreSessionKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.SessionKeysStoredTotal.WithLabelValues("failure").Inc()
		writeError(w, apperrors.InvalidInput("invalid request body"))
		return
	}
	res, err := h.svc.StoreSessionKey(r.Context(), channelID, UserIDFromContext(r.Context()), req.EncryptedKey, req.Version)
	if err != nil {
		metrics.SessionKeysStoredTotal.WithLabelValues("failure").Inc()
		writeError(w, err)
		return
	}
	metrics.SessionKeysStoredTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) mySessionKey(w http.ResponseWriter, r *http.Request) {
	channelID, ok := channelParam(w, r)
	if !ok {
		return
	}
	version, ok := versionQuery(w, r)
	if !ok {
		return
	}
	res, err := h.svc.GetSessionKey(r.Context(), channelID, UserIDFromContext(r.Context()), version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) channelSessionKeys(w http.ResponseWriter, r *http.Request) {
	channelID, ok := channelParam(w, r)
	if !ok {
		return
	}
	version, ok := versionQuery(w, r)
	if !ok {
		return
	}
	res, err := h.svc.GetChannelSessionKeys(r.Context(), channelID, version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) addParticipantSessionKey(w http.ResponseWriter, r *http.Request) {
	channelID, userID, ok := channelAndUserParams(w, r)
	if !ok {
		return
	}
	var req dto.AddParticipantSessionKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("invalid request body"))
		return
	}
	res, err := h.svc.AddSessionKeyForParticipant(r.Context(), channelID, userID, req.EncryptedSessionKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) rotateSessionKey(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	channelID, ok := channelParam(w, r)
	if !ok {
		return
	}
	var req dto.RotateSessionKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.SessionKeysRotatedTotal.WithLabelValues("failure").Inc()
		writeError(w, apperrors.InvalidInput("invalid request body"))
		return
	}
	res, err := h.svc.RotateSessionKey(r.Context(), channelID, UserIDFromContext(r.Context()), req.EncryptedSessionKeys)
	if err != nil {
		metrics.SessionKeysRotatedTotal.WithLabelValues("failure").Inc()
		slog.Warn("session key rotation failed", "error", err, "channel_id", channelID, "request_id", reqID)
		writeError(w, err)
		return
	}
	metrics.SessionKeysRotatedTotal.WithLabelValues("success").Inc()
	slog.Info("session key rotated",
		"channel_id", channelID, "key_version", res.KeyVersion,
		"participants", res.ParticipantCount, "request_id", reqID)
	writeJSON(w, http.StatusOK, res)
}

func versionQuery(w http.ResponseWriter, r *http.Request) (*int, bool) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		writeError(w, apperrors.InvalidInput("invalid version"))
		return nil, false
	}
	return &v, true
}
