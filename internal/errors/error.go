// Package errors provides the error taxonomy shared by the store, analytics and transports.
package errors

import "errors"

var ErrProductNotFound = errors.New("product not found")
var ErrDuplicateID = errors.New("product id already exists")

var ErrValidation = errors.New("validation failed")
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrPersistence marks failures to read or write the persisted snapshots.
var ErrPersistence = errors.New("persistence failure")

// ErrBackupFailed is returned to callers that asked for a backup explicitly.
var ErrBackupFailed = errors.New("backup failed")
