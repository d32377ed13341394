package crypto

import (
	"github.com/google/uuid"
)

// NewUserID generates a time-ordered UUID v7 for directory records.
func NewUserID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
