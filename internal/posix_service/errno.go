package posix_service

import (
	"context"
	"errors"
	"syscall"

	ds "github.com/AnishMulay/capfs/internal/directory_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/handle_table"
)

// errnoTable is checked in order. More specific errors come before the
// ones they wrap.
var errnoTable = []struct {
	err   error
	errno syscall.Errno
}{
	{ds.ErrIsADirectory, syscall.EISDIR},
	{ds.ErrNotADirectory, syscall.ENOTDIR},
	{ds.ErrNameTooLong, syscall.ENAMETOOLONG},
	{ds.ErrDirectoryFull, syscall.ENOSPC},
	{ds.ErrDirectoryNotEmpty, syscall.ENOTEMPTY},
	{file_service.ErrNotFound, syscall.ENOENT},
	{file_service.ErrAlreadyExists, syscall.EEXIST},
	{file_service.ErrConcurrentModification, syscall.EAGAIN},
	{file_service.ErrFileTooLarge, syscall.EFBIG},
	{file_service.ErrLogExhausted, syscall.ENOSPC},
	{file_service.ErrEndOfFile, syscall.EINVAL},
	{file_service.ErrInvalidArgument, syscall.EINVAL},
	{file_service.ErrClosed, syscall.EBADF},
	{handle_table.ErrBadHandle, syscall.EBADF},
	{handle_table.ErrWrongKind, syscall.EBADF},
	{handle_table.ErrTooManyHandles, syscall.EMFILE},
	{context.DeadlineExceeded, syscall.ETIMEDOUT},
	{context.Canceled, syscall.EINTR},
}

// Errno maps an error from this package to the errno a kernel caller
// expects. Corruption and backend failures are EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnoTable {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	return syscall.EIO
}
