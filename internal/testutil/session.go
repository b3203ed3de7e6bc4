package testutil

// FixedIDGenerator generates the same session id every time.
//
// The same scenario with the same FixedIDGenerator produces byte-identical
// journals and traces. Unlike engine.FixedGenerator, which returns ids in
// sequence and panics when exhausted, this generator never runs out.
//
// Sessions sharing one id must not overlap in time: refraction history is
// kept per session id and cleared on Dispose.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed session id generator.
// If id is empty, Generate() returns "test-session".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-session"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
// Implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
