package store

import "errors"

var (
	// ErrNotFound is returned when a group, entity or profile does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when creating or renaming onto a taken name.
	ErrExists = errors.New("already exists")

	// ErrProfileInUse is returned when deleting a profile some group has active.
	ErrProfileInUse = errors.New("profile is active on a group")
)
