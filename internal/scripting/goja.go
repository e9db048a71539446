package scripting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/rfdeck/appos/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultMemoryLimit bounds a context heap when the caller passes 0.
	DefaultMemoryLimit uint32 = 64 * 1024

	// DefaultExecTimeout bounds a single Execute call.
	DefaultExecTimeout = 5 * time.Second

	timeoutReason = "execution time limit exceeded"
	stoppedReason = "execution stopped"
)

// GojaEngine implements Engine on top of the goja interpreter.
type GojaEngine struct {
	log     *logging.Logger
	timeout time.Duration
	active  atomic.Int32
}

// NewGojaEngine creates a goja-backed script engine.
func NewGojaEngine(log *logging.Logger, execTimeout time.Duration) *GojaEngine {
	if log == nil {
		log = logging.NewNop()
	}
	if execTimeout <= 0 {
		execTimeout = DefaultExecTimeout
	}
	return &GojaEngine{log: log.Component("scripting"), timeout: execTimeout}
}

// CreateContext implements Engine.
func (e *GojaEngine) CreateContext(memoryLimit uint32) (Context, error) {
	if memoryLimit == 0 {
		memoryLimit = DefaultMemoryLimit
	}

	vm := goja.New()

	// goja has no hard heap ceiling; the call stack bound is the enforceable
	// proxy for runaway allocation through recursion. Scaled so the default
	// 64 KiB limit lands on the interpreter's usual 1024 frames.
	vm.SetMaxCallStackSize(int(memoryLimit / 64))

	c := &gojaContext{
		engine:      e,
		vm:          vm,
		memoryLimit: memoryLimit,
		timeout:     e.timeout,
	}
	c.stripGlobals()

	e.active.Add(1)
	return c, nil
}

// ActiveContexts implements Engine.
func (e *GojaEngine) ActiveContexts() int {
	return int(e.active.Load())
}

type gojaContext struct {
	engine      *GojaEngine
	vm          *goja.Runtime
	memoryLimit uint32
	timeout     time.Duration

	mu        sync.Mutex
	source    string
	name      string
	running   bool
	destroyed bool
	cpuTime   time.Duration
}

// stripGlobals removes host-environment globals script code must not see.
func (c *gojaContext) stripGlobals() {
	c.vm.Set("require", goja.Undefined())
	c.vm.Set("process", goja.Undefined())
	c.vm.Set("module", goja.Undefined())
	c.vm.Set("exports", goja.Undefined())
	c.vm.Set("globalThis", c.vm.GlobalObject())
}

// LoadFile implements Context.
func (c *gojaContext) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return c.LoadString(string(data), path)
}

// LoadString implements Context.
func (c *gojaContext) LoadString(code, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return errors.New("context destroyed")
	}
	c.source = code
	c.name = name
	return nil
}

// Execute implements Context.
func (c *gojaContext) Execute(ctx context.Context) Result {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return Result{Status: StatusError, Err: errors.New("context destroyed")}
	}
	source, name := c.source, c.name
	c.running = true
	c.mu.Unlock()

	start := time.Now()
	done := make(chan struct{})

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	go func() {
		select {
		case <-timer.C:
			c.vm.Interrupt(timeoutReason)
		case <-ctx.Done():
			c.vm.Interrupt(stoppedReason)
		case <-done:
		}
	}()

	_, err := c.vm.RunScript(name, source)
	close(done)
	c.vm.ClearInterrupt()

	duration := time.Since(start)

	c.mu.Lock()
	c.running = false
	c.cpuTime += duration
	c.mu.Unlock()

	result := Result{Duration: duration}
	if err == nil {
		result.Status = StatusOK
		return result
	}

	result.Err = err
	result.Status = classify(err)
	if result.Status != StatusOK {
		c.engine.log.Debug("script execution failed",
			zap.String("script", name),
			zap.String("status", result.Status.String()),
			zap.Error(err))
	}
	return result
}

// classify maps an interpreter error to an execution status.
func classify(err error) Status {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if s, ok := interrupted.Value().(string); ok && s == timeoutReason {
			return StatusTimeout
		}
		return StatusError
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return StatusOutOfMemory
	}

	if errors.Is(err, ErrPermissionDenied) ||
		strings.Contains(err.Error(), ErrPermissionDenied.Error()) {
		return StatusPermissionDenied
	}
	return StatusError
}

// Stop implements Context.
func (c *gojaContext) Stop() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	if running {
		c.vm.Interrupt(stoppedReason)
	}
}

// Bind implements Context.
func (c *gojaContext) Bind(name string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return errors.New("context destroyed")
	}
	return c.vm.Set(name, value)
}

// Usage implements Context.
func (c *gojaContext) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()

	// goja does not expose heap occupancy; loaded source size is the
	// best-effort stand-in.
	return Usage{
		MemoryBytes: uint32(len(c.source)),
		CPUTime:     c.cpuTime,
	}
}

// Destroy implements Context.
func (c *gojaContext) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	running := c.running
	c.mu.Unlock()

	if running {
		c.vm.Interrupt(stoppedReason)
	}
	c.engine.active.Add(-1)
}
