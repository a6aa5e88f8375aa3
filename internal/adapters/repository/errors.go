package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound  = errors.New("entity not found")
	ErrDuplicate = errors.New("duplicate entity")
	ErrClosed    = errors.New("store closed")
)
