package orchestrator

import "github.com/google/uuid"

// NewID generates a fresh task/run identifier. It is the default idgen passed
// to New when the caller does not supply one.
func NewID() string {
	return uuid.NewString()
}
