package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"e2ee-channels/internal/dto"
	"e2ee-channels/internal/observability/metrics"
	"e2ee-channels/internal/observability/middleware"
	"e2ee-channels/pkg/apperrors"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *handler) createChannel(w http.ResponseWriter, r *http.Request) {
	actorID := UserIDFromContext(r.Context())

	var req dto.CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("invalid request body"))
		return
	}
	res, err := h.svc.CreateChannel(r.Context(), actorID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) addParticipant(w http.ResponseWriter, r *http.Request) {
	channelID, userID, ok := channelAndUserParams(w, r)
	if !ok {
		return
	}
	res, err := h.svc.AddParticipant(r.Context(), channelID, userID, UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	channelID, userID, ok := channelAndUserParams(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RemoveParticipant(r.Context(), channelID, userID, UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if res.RequiresKeyRotation {
		slog.Info("participant removed from encrypted channel, rotation required",
			"channel_id", channelID, "user_id", userID, "request_id", reqID)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) participantPublicKeys(w http.ResponseWriter, r *http.Request) {
	channelID, ok := channelParam(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ParticipantPublicKeys(r.Context(), channelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) enableEncryption(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	channelID, ok := channelParam(w, r)
	if !ok {
		return
	}

	var req dto.EnableEncryptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("invalid request body"))
		return
	}
	// The flip is irreversible, so the caller must opt in explicitly.
	if !req.Confirm {
		writeError(w, apperrors.InvalidInput("confirmation required to enable encryption"))
		return
	}

	actorID := UserIDFromContext(r.Context())
	res, err := h.svc.EnableChannelEncryption(r.Context(), channelID, actorID)
	if err != nil {
		metrics.ChannelEncryptionEnabledTotal.WithLabelValues("failure").Inc()
		slog.Warn("channel encryption enable failed", "error", err, "channel_id", channelID, "request_id", reqID)
		writeError(w, err)
		return
	}
	metrics.ChannelEncryptionEnabledTotal.WithLabelValues("success").Inc()
	slog.Info("channel encryption enabled", "channel_id", channelID, "enabled_by", actorID, "request_id", reqID)
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) encryptionStatus(w http.ResponseWriter, r *http.Request) {
	channelID, ok := channelParam(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ChannelEncryptionStatus(r.Context(), channelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func channelParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "channelID"))
	if err != nil {
		writeError(w, apperrors.InvalidInput("invalid channelId"))
		return uuid.UUID{}, false
	}
	return id, true
}

func channelAndUserParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	channelID, ok := channelParam(w, r)
	if !ok {
		return uuid.UUID{}, uuid.UUID{}, false
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, apperrors.InvalidInput("invalid userId"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return channelID, userID, true
}
