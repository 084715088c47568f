// Package uuid implements scan.IDGenerator backed by github.com/google/uuid.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces random UUIDv4 scan ids.
type Generator struct{}

// New constructs a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a new UUID string.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}
