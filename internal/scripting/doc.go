// Package scripting defines the execution-context contract the sandbox
// depends on, plus a goja-backed implementation of it.
//
// The core never assumes script-language semantics: it creates a context,
// loads source into it, executes to completion or failure, and tears it
// down. Anything honoring the Engine/Context interfaces can replace goja.
package scripting
