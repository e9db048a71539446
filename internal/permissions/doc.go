// Package permissions implements the capability model for installed apps.
//
// A capability is one named privilege (rf.receive, gpio.write, ...) held as a
// single bit in a 32-bit mask. The package covers the three concerns of the
// permission engine:
//
//   - the closed capability table and the string<->mask round trip
//     (Parse/Format), where unknown tokens are silently dropped
//   - persisted per-app grants (Store, FileStore) that survive restarts
//   - point-in-time queries (Engine.Check) callable concurrently from
//     sandbox threads without touching the registry lock
package permissions
