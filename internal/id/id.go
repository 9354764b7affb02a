// Package id provides the opaque node identity used across the
// supervision tree.
package id

import "github.com/google/uuid"

// Bastion is an opaque, globally unique identifier for a supervision
// tree node. It is stable for the lifetime of the node and regenerated
// on restart.
type Bastion struct {
	uuid uuid.UUID
}

// New generates a fresh identifier. Collisions with any previously
// generated (live or dead) identifier are not expected.
func New() Bastion {
	return Bastion{uuid: uuid.New()}
}

// Nil reports the zero value, used for comparisons before a node has
// been assigned an identity.
var Nil = Bastion{}

// IsNil reports whether b is the zero value.
func (b Bastion) IsNil() bool {
	return b.uuid == uuid.Nil
}

func (b Bastion) String() string {
	return b.uuid.String()
}

// Equal reports whether two identifiers refer to the same node.
func (b Bastion) Equal(other Bastion) bool {
	return b.uuid == other.uuid
}
