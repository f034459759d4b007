package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("resource already exists")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrInconsistentSnapshot  = errors.New("inconsistent snapshot")
	ErrPartialFailure        = errors.New("partial failure")
)
