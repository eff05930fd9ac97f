package domain

import (
	"strings"

	"github.com/google/uuid"
)

// TemporaryPrefix tags identifiers allocated before the owning entity was
// persisted. Stores never emit identifiers with this prefix.
const TemporaryPrefix = "temp-"

// NewTemporaryID returns a unique temporary identifier.
func NewTemporaryID() ID {
	return ID(TemporaryPrefix + uuid.NewString())
}

// IsTemporary reports whether id was produced by NewTemporaryID.
func IsTemporary(id ID) bool {
	return strings.HasPrefix(string(id), TemporaryPrefix)
}
