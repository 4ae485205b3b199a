package tasks

import (
	"fmt"
	"time"
)

// ChangeKind is the kind of row-level change delivered on the change feed.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// ParseChangeKind converts s to a ChangeKind.
func ParseChangeKind(s string) (ChangeKind, error) {
	if k := ChangeKind(s); k.Valid() {
		return k, nil
	}
	return "", fmt.Errorf("unknown change kind %q", s)
}

// ChangeEvent is one row-level notification. For deletes, Task carries the
// last known row (at minimum its ID).
type ChangeEvent struct {
	Kind ChangeKind `json:"kind"`
	Task Task       `json:"task"`
	At   time.Time  `json:"at"`
}
