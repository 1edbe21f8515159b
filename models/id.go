package models

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a prefixed opaque id, e.g. "batch_3f9a2c41b0d2".
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + raw[:12]
}
