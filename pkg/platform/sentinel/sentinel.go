package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write collided with existing state
// - ErrExpired: credential validity window has passed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: backend or remote temporarily unavailable
// - ErrCorruptSnapshot: persisted snapshot failed to decode; nothing was loaded
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrExpired         = errors.New("expired")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnavailable     = errors.New("unavailable")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)
