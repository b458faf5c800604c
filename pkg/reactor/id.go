package reactor

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ID is an opaque, process-unique identifier for a reactor. It carries
// no meaning beyond identity: equality and use as a map key.
type ID [8]byte

// NewID generates a random ID. Collisions are not checked; 64 bits of
// entropy is judged sufficient for a single process's reactor count.
func NewID() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Errorf("reactor: generate id: %w", err))
	}
	return id
}

// String returns the hex encoding of the id, suitable for log fields.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value, used as a sentinel for
// "no such reactor" in APIs that return an ID by value.
func (id ID) IsZero() bool {
	return id == ID{}
}
