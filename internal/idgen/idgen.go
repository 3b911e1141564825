// Package idgen generates store identifiers for new root documents.
package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces document identifiers.
type Generator interface {
	Generate() string
}

// Format names a generator in configuration.
type Format string

const (
	FormatUUID Format = "uuid"
	FormatULID Format = "ulid"
)

// ForFormat returns the generator for a configured format.
// The empty format selects UUIDv7.
func ForFormat(f Format) (Generator, error) {
	switch f {
	case "", FormatUUID:
		return UUIDv7Generator{}, nil
	case FormatULID:
		return NewULIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown id format %q (want uuid or ulid)", f)
	}
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ULIDGenerator generates lexicographically sortable ULIDs. Identifiers
// generated within one millisecond stay ordered through monotonic entropy.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDGenerator returns a ULID generator reading crypto/rand.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate returns a 26-character ULID.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// FixedGenerator returns predetermined identifiers in order.
//
// Panics once every identifier has been used: a test that creates more
// documents than it declared is misconfigured.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator returns a generator yielding ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined identifier.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("idgen: FixedGenerator exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequenceGenerator returns prefix-1, prefix-2, ... and never runs out.
// Scenario runs use it so golden output is stable.
type SequenceGenerator struct {
	prefix string
	seq    atomic.Int64
}

// NewSequenceGenerator returns a generator counting from 1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "doc"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next identifier in the sequence.
func (g *SequenceGenerator) Generate() string {
	return g.prefix + "-" + strconv.FormatInt(g.seq.Add(1), 10)
}

// Reset restarts the sequence at 1.
func (g *SequenceGenerator) Reset() {
	g.seq.Store(0)
}
