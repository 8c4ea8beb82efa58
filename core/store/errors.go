package store

import "errors"

// ErrNotFound is returned when the referenced pickup does not exist.
var ErrNotFound = errors.New("pickup not found")

// ErrConflict is returned when a conditional transition did not match the
// current persisted state. The record is left untouched; the caller must
// re-query to learn what won the race.
var ErrConflict = errors.New("transition precondition failed")

// IsConflict reports whether err stems from a lost transition race.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a missing-pickup error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
