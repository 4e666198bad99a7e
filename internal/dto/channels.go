package dto

import "time"

type CreateChannelRequest struct {
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participantIds,omitempty"`
}

type CreateChannelResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type AddParticipantResponse struct {
	Success            bool   `json:"success"`
	ChannelEncrypted   bool   `json:"channelEncrypted"`
	ParticipantHasKeys *bool  `json:"participantHasKeys,omitempty"`
	Message            string `json:"message"`
}

type RemoveParticipantResponse struct {
	Success             bool   `json:"success"`
	ChannelEncrypted    bool   `json:"channelEncrypted"`
	RequiresKeyRotation bool   `json:"requiresKeyRotation"`
	Message             string `json:"message"`
}

type EnableEncryptionRequest struct {
	Confirm bool `json:"confirm"`
}

type EnableEncryptionResponse struct {
	ChannelID           string    `json:"channelId"`
	EncryptionEnabled   bool      `json:"encryptionEnabled"`
	EncryptionEnabledAt time.Time `json:"encryptionEnabledAt"`
	EncryptionEnabledBy string    `json:"encryptionEnabledBy"`
}

type ChannelEncryptionStatusResponse struct {
	Enabled                 bool       `json:"enabled"`
	EnabledAt               *time.Time `json:"enabledAt"`
	EnabledBy               *string    `json:"enabledBy"`
	ParticipantsWithKeys    []string   `json:"participantsWithKeys"`
	ParticipantsMissingKeys []string   `json:"participantsMissingKeys"`
}
