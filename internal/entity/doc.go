// Package entity holds the normalised persons, devices and person-device
// mappings fetched from the monitoring backend.
//
// The Cache serves each collection from memory while it is younger than
// its time-to-live and re-fetches it otherwise. Backend records are
// reshaped by pure normalizer functions that reconcile snake_case and
// camelCase field names and fill placeholders for anything missing.
//
// Collections are immutable once published: a refresh or a mapping
// mutation swaps in a new slice, so a slice returned by the cache can be
// read without locks but must not be modified.
//
// Synthesized identifiers (see SyntheticID) are display placeholders for
// records the backend sent without an ID. They are unique within the
// process but must never be used as durable keys.
package entity
