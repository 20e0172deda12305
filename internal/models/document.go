package models

import "time"

// Document is one versioned record in the shared store. Revision increments
// on every accepted publish; a publish carrying a stale revision is rejected,
// which is how all cross-agent exclusion above the store is built.
type Document struct {
	Key       string
	Value     []byte
	Revision  int64
	UpdatedAt time.Time
}
