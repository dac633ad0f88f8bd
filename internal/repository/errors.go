package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a conditional write lost against a concurrent update.
	ErrConflict = errors.New("repository: version conflict")
	// ErrDuplicate indicates a unique key (email, provider id) is already taken.
	ErrDuplicate = errors.New("repository: duplicate key")
)
