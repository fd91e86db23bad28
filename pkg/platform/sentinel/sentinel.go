package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the blob layer return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity or blob does not exist in store
// - ErrConflict: unique constraint hit; another writer won
// - ErrExpired: card has passed its expiry timestamp
// - ErrRevoked: card was administratively revoked
// - ErrAbandoned: a finished render was discarded because a concurrent
//   generation committed first; a fact, not a failure
// - ErrUnavailable: backend temporarily unreachable after retries
//
// For validation errors (bad input, missing photo), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrRevoked     = errors.New("revoked")
	ErrAbandoned   = errors.New("generation abandoned")
	ErrUnavailable = errors.New("unavailable")
)
