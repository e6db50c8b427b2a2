package domain

import "errors"

// Denial causes. Callers wrap these with detail; the HTTP layer collapses
// most of them into the same not-found response.
var (
	ErrInvalidCredential     = errors.New("invalid_or_missing_credential")
	ErrStaleVersion          = errors.New("stale_version")
	ErrSessionExpired        = errors.New("session_expired_by_inactivity")
	ErrInsufficientPrivilege = errors.New("insufficient_privilege")
	ErrNotYetVerified        = errors.New("not_yet_verified")
	ErrRateExceeded          = errors.New("rate_exceeded")
)

var denialCauses = []error{
	ErrInvalidCredential,
	ErrStaleVersion,
	ErrSessionExpired,
	ErrInsufficientPrivilege,
	ErrNotYetVerified,
	ErrRateExceeded,
}

// Reason returns the label of the first denial cause found in err's chain,
// or "unknown" when err carries none of them.
func Reason(err error) string {
	for _, cause := range denialCauses {
		if errors.Is(err, cause) {
			return cause.Error()
		}
	}
	return "unknown"
}
