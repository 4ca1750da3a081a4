package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// TickIDGenerator names ticks for log correlation.
type TickIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 tick ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<prefix>-1", "<prefix>-2", ... for tests.
//
// Thread-safety: safe for concurrent use.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Int64
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.Prefix, g.n.Add(1))
}
