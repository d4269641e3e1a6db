// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist or has expired.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the request is not valid in the entity's current state.
var ErrConflict = errors.New("conflict: state does not allow this operation")

// ErrValidation indicates the request payload failed validation.
var ErrValidation = errors.New("validation failed")
