package inode

import "errors"

var (
	ErrCorrupt    = errors.New("corrupt or truncated record")
	ErrOutOfRange = errors.New("offset beyond maximum file size")
)
