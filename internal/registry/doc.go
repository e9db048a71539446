// Package registry owns the catalog of installed applications.
//
// The registry is the only component that mutates application records.
// Every operation serializes through one registry-wide mutex; the start
// path drops the mutex while the app's script executes (the record holds
// an intermediate Starting state) so control operations never wait on
// script execution.
//
// Documented no-op asymmetry: stopping an app that is not running and
// starting an app that is already running succeed without effect, while
// uninstalling an unknown id is a NotFound error.
package registry
