package services

import "errors"

// Service-level errors. Handlers map these to HTTP status codes; the
// services themselves never retry.
var (
	// ErrStateNotFound means a referenced state does not exist.
	ErrStateNotFound = errors.New("state not found")

	// ErrCountyNotFound means a referenced county does not exist.
	ErrCountyNotFound = errors.New("county not found")

	// ErrPropertyNotFound means the property id does not exist.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrSourceNotFound means the data source id does not exist.
	ErrSourceNotFound = errors.New("data source not found")

	// ErrParentImmutable is returned when an update tries to change a
	// property's owning county. Containment changes must go through move so
	// ancestor statistics stay consistent.
	ErrParentImmutable = errors.New("property parent cannot be changed by update, use move")
)
