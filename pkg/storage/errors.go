package storage

import "errors"

var (
	ErrNotFound   = errors.New("document not found")
	ErrEmptyKey   = errors.New("storage key is empty")
	ErrInvalidKey = errors.New("storage key is not a clean relative path")
)
