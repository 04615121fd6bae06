package util

import "github.com/google/uuid"

// NewID returns a random UUID, optionally prefixed.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// IsUUID reports whether value is a canonical UUID string.
func IsUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
