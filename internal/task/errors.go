package task

import "errors"

var (
	ErrValidation   = errors.New("invalid task input")
	ErrNotFound     = errors.New("task not found")
	ErrCorruptStore = errors.New("task store is corrupt")
	ErrPersistence  = errors.New("task store write failed")
	ErrStoreBusy    = errors.New("task store is in use by another process")
)
