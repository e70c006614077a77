package quota

import "errors"

var (
	// ErrInvalidIdentity is returned when neither a valid session token
	// nor a user id is supplied
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrInvalidAmount is returned for non-positive refund amounts
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
