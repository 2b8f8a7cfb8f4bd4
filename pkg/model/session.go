package model

import (
	"github.com/google/uuid"
)

// UserID is the opaque per-browser identifier. It is the only partition key
// ("container tag") for memory operations.
type UserID string

// NewUserID generates a new random UserID
func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func (x UserID) String() string { return string(x) }

// Tag returns the container tag used for the user's partition
func (x UserID) Tag() string { return string(x) }

// SessionID addresses one streaming session unit
type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (x SessionID) String() string { return string(x) }

// Valid reports whether the ID has the shape of an allocated session ID
func (x SessionID) Valid() bool {
	_, err := uuid.Parse(string(x))
	return err == nil
}
