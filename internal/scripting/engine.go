package scripting

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned (wrapped) by privileged bindings when a
// capability check fails. Engines map it to StatusPermissionDenied.
var ErrPermissionDenied = errors.New("permission denied")

// Status is the outcome of executing loaded script code.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusTimeout
	StatusOutOfMemory
	StatusPermissionDenied
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	case StatusOutOfMemory:
		return "out_of_memory"
	case StatusPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Result describes a completed execution.
type Result struct {
	Status   Status
	Err      error
	Duration time.Duration
}

// Usage is best-effort resource telemetry for a context.
type Usage struct {
	MemoryBytes uint32
	CPUTime     time.Duration
}

// Context is one isolated script-evaluation unit. A context is owned
// exclusively by a single sandbox and must not be shared; all methods except
// Stop are called from the owning sandbox's goroutine. Stop may be called
// from any goroutine to interrupt a running Execute.
type Context interface {
	// LoadFile reads a source file into the context without executing it.
	LoadFile(path string) error

	// LoadString loads source code directly; name is used for diagnostics.
	LoadString(code, name string) error

	// Execute runs the loaded source to completion or failure. The context's
	// wall-clock budget applies; ctx cancellation interrupts execution.
	Execute(ctx context.Context) Result

	// Stop interrupts a running execution. Safe to call when idle.
	Stop()

	// Bind exposes a named native value (object or function) to script code.
	// Bindings are the only way script code reaches privileged resources.
	Bind(name string, value interface{}) error

	// Usage returns best-effort resource telemetry.
	Usage() Usage

	// Destroy releases the context. Idempotent.
	Destroy()
}

// Engine creates execution contexts. The core treats the engine as an
// external collaborator; only the lifecycle contract is assumed.
type Engine interface {
	// CreateContext allocates a fresh context with the given heap ceiling in
	// bytes (0 means the engine default).
	CreateContext(memoryLimit uint32) (Context, error)

	// ActiveContexts reports how many contexts are currently alive.
	ActiveContexts() int
}
