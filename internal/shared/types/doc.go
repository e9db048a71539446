// Package types defines shared domain types used across the runtime.
//
// Keeping these in one leaf package avoids import cycles between the
// registry, sandbox, and API layers.
package types
