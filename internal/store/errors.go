package store

import "errors"

var (
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already in use")
)
