package directory_service

import (
	"errors"
	"fmt"

	"github.com/AnishMulay/capfs/internal/file_service"
)

var (
	ErrDirectoryFull     = errors.New("directory table full")
	ErrNameTooLong       = errors.New("file name too long")
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// Kind mismatches are invalid arguments to the operation.
	ErrIsADirectory  = fmt.Errorf("is a directory: %w", file_service.ErrInvalidArgument)
	ErrNotADirectory = fmt.Errorf("not a directory: %w", file_service.ErrInvalidArgument)
	ErrInvalidName   = fmt.Errorf("invalid file name: %w", file_service.ErrInvalidArgument)
)
