package apperrors

type Code string

const (
	CodeUnknown       Code = "UNKNOWN"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeForbidden     Code = "FORBIDDEN"
	CodeCryptoFailure Code = "CRYPTO_FAILURE"
	CodeInternal      Code = "INTERNAL"
)
