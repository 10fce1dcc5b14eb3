// Package users persists the per-user record of the secret conversation.
package users

import "errors"

// ErrNotFound is returned when no record exists for the requested user id.
var ErrNotFound = errors.New("users: not found")

// Record is the single row kept per LINE user.
// Name is captured from the profile when the row is created and never refreshed.
type Record struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	SecretText string `db:"words"`
	// Armed marks that the next text message is captured as the secret.
	Armed bool `db:"save"`
}
