package file_service

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrEndOfFile              = errors.New("range past end of file")
	ErrCorrupt                = errors.New("corrupt file stream")
	ErrBackendUnavailable     = errors.New("capsule backend unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrClosed                 = errors.New("file handle closed")
	ErrFileTooLarge           = errors.New("write past maximum file size")
	ErrLogExhausted           = errors.New("capsule record numbers exhausted")
)
