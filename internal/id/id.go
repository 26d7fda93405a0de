// Package id generates correlation identifiers for multi-step write workflows.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// opAlphabet avoids characters that are awkward to grep for in logs.
const (
	opAlphabet = "0123456789abcdefghijkmnpqrstuvwxyz"
	opLength   = 12
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "op-4fk2m9xq0b7e").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.Generate(opAlphabet, opLength)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// Op returns a workflow correlation id. Generation failure only happens when
// the system has no entropy; workflows still run, logged under "op-unknown".
func Op() string {
	id, err := Generate("op")
	if err != nil {
		return "op-unknown"
	}
	return id
}
