package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates UUID-shaped identifiers numbered from 1.
//
// The same scenario with a fresh SequentialIDs produces the same IDs, so
// logged entries and stored protocols compare byte for byte across runs.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator whose IDs share the 24-character
// prefix "00000000-0000-4000-8000-".
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{prefix: "00000000-0000-4000-8000-"}
}

// Generate returns the next identifier, e.g.
// "00000000-0000-4000-8000-000000000001".
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%012d", g.prefix, g.n)
}
