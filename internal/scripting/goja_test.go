package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rfdeck/appos/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(timeout time.Duration) *GojaEngine {
	return NewGojaEngine(logging.NewNop(), timeout)
}

func TestExecuteOK(t *testing.T) {
	e := newTestEngine(0)

	c, err := e.CreateContext(0)
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, c.LoadString("var x = 1 + 2;", "inline.js"))
	res := c.Execute(context.Background())
	assert.Equal(t, StatusOK, res.Status)
	assert.NoError(t, res.Err)
}

func TestExecuteError(t *testing.T) {
	e := newTestEngine(0)

	c, err := e.CreateContext(0)
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, c.LoadString("throw new Error('boom');", "bad.js"))
	res := c.Execute(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)
}

func TestExecuteTimeout(t *testing.T) {
	e := newTestEngine(50 * time.Millisecond)

	c, err := e.CreateContext(0)
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, c.LoadString("while (true) {}", "spin.js"))
	res := c.Execute(context.Background())
	assert.Equal(t, StatusTimeout, res.Status)
}

func TestExecutePermissionDenied(t *testing.T) {
	e := newTestEngine(0)

	c, err := e.CreateContext(0)
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, c.Bind("gated", func() error {
		return ErrPermissionDenied
	}))
	require.NoError(t, c.LoadString("gated();", "gated.js"))

	res := c.Execute(context.Background())
	assert.Equal(t, StatusPermissionDenied, res.Status)
}

func TestLoadFile(t *testing.T) {
	e := newTestEngine(0)

	dir := t.TempDir()
	path := filepath.Join(dir, "index.js")
	require.NoError(t, os.WriteFile(path, []byte("var ok = true;"), 0o644))

	c, err := e.CreateContext(0)
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, c.LoadFile(path))
	assert.Equal(t, StatusOK, c.Execute(context.Background()).Status)

	assert.Error(t, c.LoadFile(filepath.Join(dir, "missing.js")))
}

func TestStopInterruptsExecution(t *testing.T) {
	e := newTestEngine(10 * time.Second)

	c, err := e.CreateContext(0)
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, c.LoadString("while (true) {}", "spin.js"))

	done := make(chan Result, 1)
	go func() { done <- c.Execute(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	c.Stop()

	select {
	case res := <-done:
		assert.Equal(t, StatusError, res.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt execution")
	}
}

func TestActiveContexts(t *testing.T) {
	e := newTestEngine(0)
	assert.Equal(t, 0, e.ActiveContexts())

	c1, err := e.CreateContext(0)
	require.NoError(t, err)
	c2, err := e.CreateContext(0)
	require.NoError(t, err)
	assert.Equal(t, 2, e.ActiveContexts())

	c1.Destroy()
	c1.Destroy() // idempotent
	c2.Destroy()
	assert.Equal(t, 0, e.ActiveContexts())
}

func TestBindNativeFunction(t *testing.T) {
	e := newTestEngine(0)

	c, err := e.CreateContext(0)
	require.NoError(t, err)
	defer c.Destroy()

	var got string
	require.NoError(t, c.Bind("emit", func(s string) { got = s }))
	require.NoError(t, c.LoadString("emit('hello');", "emit.js"))

	res := c.Execute(context.Background())
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "hello", got)
}
