package permissions

import (
	"sync"
	"testing"

	"github.com/rfdeck/appos/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(NewMemoryStore(), logging.NewNop())
}

func TestLoadMissingIsZeroMask(t *testing.T) {
	e := newTestEngine(t)

	mask, err := e.Load("app_00000000")
	require.NoError(t, err)
	assert.Equal(t, Capability(0), mask)
}

func TestGrantRevokeCheck(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Grant("app_1", CapRFReceive))
	assert.True(t, e.Check("app_1", CapRFReceive))
	assert.False(t, e.Check("app_1", CapRFTransmit))

	require.NoError(t, e.Grant("app_1", CapUICreate))
	assert.True(t, e.Check("app_1", CapRFReceive|CapUICreate))

	require.NoError(t, e.Revoke("app_1", CapRFReceive))
	assert.False(t, e.Check("app_1", CapRFReceive))
	assert.True(t, e.Check("app_1", CapUICreate))
}

func TestCheckRequiresAllBits(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Save("app_1", CapStorageRead))
	assert.False(t, e.Check("app_1", CapStorageRead|CapStorageWrite))
	assert.True(t, e.CheckAny("app_1", CapStorageRead|CapStorageWrite))
}

func TestForget(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Save("app_1", CapSystem))
	require.NoError(t, e.Forget("app_1"))
	assert.False(t, e.Check("app_1", CapSystem))
}

func TestConcurrentGrantsSameID(t *testing.T) {
	e := newTestEngine(t)

	bits := []Capability{
		CapRFReceive, CapRFTransmit, CapGPIORead, CapGPIOWrite,
		CapStorageRead, CapStorageWrite, CapUICreate, CapNetwork,
	}

	var wg sync.WaitGroup
	for _, b := range bits {
		wg.Add(1)
		go func(b Capability) {
			defer wg.Done()
			assert.NoError(t, e.Grant("app_1", b))
		}(b)
	}
	wg.Wait()

	// Serialized read-modify-write: no grant may be lost.
	for _, b := range bits {
		assert.True(t, e.Check("app_1", b), "bit %s lost", Format(b))
	}
}

func TestFileStorePersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenFileStore(dir)
	require.NoError(t, err)

	e := NewEngine(store, logging.NewNop())
	require.NoError(t, e.Save("app_1", CapRFReceive|CapSystem))

	// Reopen simulates a restart; grants must survive.
	store2, err := OpenFileStore(dir)
	require.NoError(t, err)

	e2 := NewEngine(store2, logging.NewNop())
	assert.True(t, e2.Check("app_1", CapRFReceive|CapSystem))
	assert.False(t, e2.Check("app_2", CapRFReceive))
}
