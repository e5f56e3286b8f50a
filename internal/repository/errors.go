package repository

import "errors"

var (
	// ErrRunNotFound indicates no scan run is stored under the id
	ErrRunNotFound = errors.New("scan run not found")

	// ErrInvalidRun indicates a report that cannot be stored
	ErrInvalidRun = errors.New("invalid scan run")

	// ErrRepositoryUnavailable indicates the repository is unavailable
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
