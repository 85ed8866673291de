package types

// Event captures a structured state change emitted by the grants engine.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
