package testutil

// FixedRunID generates the same run id every time.
//
// Suites stamp every report with a run id; a fixed one keeps golden
// reports byte-identical across test runs.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run id generator. An empty id becomes
// "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunID) Generate() string {
	return g.id
}
