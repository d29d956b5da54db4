package track

import "errors"

// Rejection reasons surfaced to clients through acks. Infrastructure
// failures are wrapped normally and fall back to an operation-specific
// *_FAILED code at the transport layer.
var (
	ErrMissionRequired = errors.New("mission id required")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrForbidden       = errors.New("not an active mission member")
	ErrNotInMission    = errors.New("not joined to mission")
	ErrInvalidPosition = errors.New("invalid position")
	ErrBulkTooLarge    = errors.New("bulk exceeds point limit")
)

// Code maps a rejection to its wire error code. Returns "" for errors
// that are not client rejections.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissionRequired):
		return "MISSION_ID_REQUIRED"
	case errors.Is(err, ErrInvalidUserID):
		return "INVALID_USER_ID"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotInMission):
		return "NOT_IN_MISSION"
	case errors.Is(err, ErrInvalidPosition):
		return "INVALID_POSITION"
	case errors.Is(err, ErrBulkTooLarge):
		return "BULK_TOO_LARGE"
	default:
		return ""
	}
}
