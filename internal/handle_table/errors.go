package handle_table

import "errors"

var (
	ErrBadHandle      = errors.New("bad handle")
	ErrTooManyHandles = errors.New("too many open handles")
	ErrWrongKind      = errors.New("handle refers to the other kind of object")
)
