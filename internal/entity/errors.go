package entity

import "errors"

// Domain errors for the entity package.
var (
	// ErrUnknownKind is returned for a collection kind other than
	// persons, devices or mappings.
	ErrUnknownKind = errors.New("entity: unknown kind")

	// ErrNoSource is returned when the cache has no backend source.
	ErrNoSource = errors.New("entity: no source configured")
)
