package apperrors

var (
	// Domain errors shared by the service layer.
	ErrUserNotFound          = NotFound("user not found")
	ErrChannelNotFound       = NotFound("channel not found")
	ErrPublicKeyNotFound     = NotFound("public key not found for this user")
	ErrSessionKeyNotFound    = NotFound("session key not found")
	ErrFingerprintTaken      = Conflict("public key with this fingerprint already exists")
	ErrAlreadyEnabled        = Conflict("encryption already enabled for this channel")
	ErrAlreadyParticipant    = Conflict("user is already a participant")
	ErrNotParticipant        = Forbidden("user is not a participant of this channel")
	ErrChannelNotEncrypted   = InvalidInput("channel is not encrypted")
	ErrParticipantWithoutKey = InvalidInput("user does not have encryption keys")
)
