// Package id generates identifiers for persistent entities.
package id

import "github.com/google/uuid"

// New returns a canonical lowercase UUIDv4 string. Every persistent entity
// (game, character, item, effect, quest, choice context) and every request
// trace id uses this form.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a canonical UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
