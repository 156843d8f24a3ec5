// Package uuid generates run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 run ids.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewRawID returns a UUID7. Run ids sort by start time.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// Static always returns the same id. Tests use it to pin run ids.
type Static uuid.UUID

// NewRawID implements archive.IDGenerator.
func (s Static) NewRawID() (uuid.UUID, error) {
	return uuid.UUID(s), nil
}
