package capsule_service

import "errors"

var (
	ErrCapsuleNotFound = errors.New("capsule not found")
	ErrRecordNotFound  = errors.New("record not found")
	ErrStaleLinkage    = errors.New("previous hash does not match capsule tip")
	ErrCapsuleClosed   = errors.New("capsule handle closed")
	ErrCorruptRecord   = errors.New("record fails hash verification")
	ErrUnavailable     = errors.New("capsule backend unavailable")

	// Name binding errors
	ErrNameNotFound = errors.New("human name not bound")
	ErrNameTaken    = errors.New("human name already bound")
	ErrInvalidName  = errors.New("invalid capsule name")
)
