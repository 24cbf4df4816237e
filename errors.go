package treefs

import "errors"

var (
	// ErrNotFound is returned when a path does not resolve
	ErrNotFound = errors.New("no such file or directory")
	// ErrPermissionDenied is returned for a disallowed access mode on open
	ErrPermissionDenied = errors.New("permission denied")
	// ErrOutOfMemory is returned when a buffer or identifier cannot be allocated
	ErrOutOfMemory = errors.New("out of memory")
	// ErrInvalidOperation is returned for structurally invalid requests such as
	// removing the root
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrPersistence is returned when a store read or write fails
	ErrPersistence = errors.New("persistence failure")

	ErrExists      = errors.New("file exists")
	ErrNotDir      = errors.New("not a directory")
	ErrIsDir       = errors.New("is a directory")
	ErrNameTooLong = errors.New("file name too long")
)
