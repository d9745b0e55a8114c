// internal/models/user.go
package models

import "github.com/google/uuid"

// User is an identity minted at login. Users are ephemeral: they live
// in the lobby's session table and vanish when their session expires.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}
