// Package id provides app id generation.
//
// Ids keep the compact "app_xxxxxxxx" shape so they stay readable in logs and
// usable as storage keys, while the random payload comes from a UUID so
// uniqueness never depends on install ordering.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// AppPrefix is the prefix for application ids.
const AppPrefix = "app_"

// NewAppID generates a fresh unique application id.
func NewAppID() string {
	u := uuid.New()
	return fmt.Sprintf("%s%x", AppPrefix, u[:4])
}

// IsAppID reports whether s has the shape of a generated app id.
func IsAppID(s string) bool {
	return len(s) == len(AppPrefix)+8 && s[:len(AppPrefix)] == AppPrefix
}
