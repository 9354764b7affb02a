// Package path models a supervision tree node's location as an
// immutable, ordered sequence of path elements.
package path

import (
	"strings"

	"github.com/ibs-source/bastion/internal/id"
)

// Kind discriminates the variants of an Element.
type Kind int

const (
	// System is the root of the tree. It carries no id.
	System Kind = iota
	// Supervisor identifies a supervisor node.
	Supervisor
	// Children identifies a children-group node.
	Children
	// Child identifies a single child within a group.
	Child
)

func (k Kind) String() string {
	switch k {
	case System:
		return "system"
	case Supervisor:
		return "supervisor"
	case Children:
		return "children"
	case Child:
		return "child"
	default:
		return "unknown"
	}
}

// Element is one segment of a Path.
type Element struct {
	Kind Kind
	ID   id.Bastion
}

func (e Element) String() string {
	if e.Kind == System {
		return e.Kind.String()
	}
	return e.Kind.String() + "(" + e.ID.String() + ")"
}

// SystemElement is the single, shared System path element.
var SystemElement = Element{Kind: System}

// SupervisorElement builds a Supervisor path element for the given id.
func SupervisorElement(nodeID id.Bastion) Element {
	return Element{Kind: Supervisor, ID: nodeID}
}

// ChildrenElement builds a Children path element for the given id.
func ChildrenElement(nodeID id.Bastion) Element {
	return Element{Kind: Children, ID: nodeID}
}

// ChildElement builds a Child path element for the given id.
func ChildElement(nodeID id.Bastion) Element {
	return Element{Kind: Child, ID: nodeID}
}

// Path is an ordered, immutable sequence of Elements from the system
// root down to a node. Append never mutates the receiver.
type Path struct {
	elems []Element
}

// Root returns the path containing only the System element.
func Root() Path {
	return Path{elems: []Element{SystemElement}}
}

// Append returns a new Path with e appended; the receiver is untouched.
func (p Path) Append(e Element) Path {
	next := make([]Element, len(p.elems)+1)
	copy(next, p.elems)
	next[len(p.elems)] = e
	return Path{elems: next}
}

// Elements returns a defensive copy of the underlying elements.
func (p Path) Elements() []Element {
	out := make([]Element, len(p.elems))
	copy(out, p.elems)
	return out
}

// Last returns the final element of the path, or the zero Element and
// false for an empty path.
func (p Path) Last() (Element, bool) {
	if len(p.elems) == 0 {
		return Element{}, false
	}
	return p.elems[len(p.elems)-1], true
}

// Depth reports the number of elements in the path.
func (p Path) Depth() int {
	return len(p.elems)
}

func (p Path) String() string {
	parts := make([]string, len(p.elems))
	for i, e := range p.elems {
		parts[i] = e.String()
	}
	return strings.Join(parts, "/")
}
