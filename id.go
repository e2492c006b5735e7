package racer

import "github.com/google/uuid"

// NewID returns a freshly generated v4 UUID as a lowercase
// standard-hyphenated hex string, per spec.md §4.3's Handle.id()
// contract and the id Handle.Add assigns when a document carries none.
func NewID() string {
	return uuid.NewString()
}
