package services

import "github.com/google/uuid"

// IDGenerator produces series identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator returns random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}
