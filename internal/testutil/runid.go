package testutil

// FixedRunIDGenerator returns the same run id every time.
//
// Production runs get a UUIDv7; tests that compare logs or published
// object keys use a fixed id instead.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a fixed generator. If id is empty,
// Generate returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
