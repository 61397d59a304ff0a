package testutil

// FixedTxIDGenerator hands out the same transaction id every time.
//
// With a fixed id and a StepClock, the same sequence of writes produces a
// byte-identical operation log, which golden snapshots rely on.
//
// Thread-safety: FixedTxIDGenerator is stateless and safe for concurrent use.
type FixedTxIDGenerator struct {
	id string
}

// NewFixedTxIDGenerator creates a fixed id generator.
// If id is empty, Generate() returns "test-tx-default".
func NewFixedTxIDGenerator(id string) *FixedTxIDGenerator {
	if id == "" {
		id = "test-tx-default"
	}
	return &FixedTxIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedTxIDGenerator) Generate() string {
	return g.id
}
