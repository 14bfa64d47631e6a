package store

import "github.com/Harshitk-cp/genesis/internal/domain"

// ErrNotFound is returned when a row does not exist. It matches domain.ErrNotFound.
var ErrNotFound = domain.ErrNotFound
