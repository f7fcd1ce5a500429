package domain

import "errors"

var (
	ErrNotFound          = errors.New("project not found")
	ErrInvalidName       = errors.New("invalid project name")
	ErrInvalidTransition = errors.New("invalid status transition")
)
