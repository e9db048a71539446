package sandbox

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rfdeck/appos/internal/logging"
	"github.com/rfdeck/appos/internal/monitoring"
	"github.com/rfdeck/appos/internal/permissions"
	"github.com/rfdeck/appos/internal/scripting"
	"github.com/rfdeck/appos/internal/shared/errs"
	"go.uber.org/zap"
)

// Config holds sandbox pool configuration.
type Config struct {
	// PoolSize is the fixed number of execution slots.
	PoolSize int

	// MemoryLimit is the default per-context heap ceiling in bytes.
	MemoryLimit uint32

	// TimeLimit is the default wall-clock budget per sandbox.
	TimeLimit time.Duration

	// AllowUnclassified restores the permissive legacy policy in which
	// resources matching no known privileged prefix are allowed. The
	// default is deny-unless-classified.
	AllowUnclassified bool
}

// DefaultConfig returns the standard quotas.
func DefaultConfig() Config {
	return Config{
		PoolSize:    8,
		MemoryLimit: 64 * 1024,
		TimeLimit:   5 * time.Second,
	}
}

// slot is one bounded execution slot. The generation counter changes on
// every fill so a stale handle can never alias a reused slot.
type slot struct {
	appID       string
	ctx         scripting.Context
	memoryLimit uint32
	timeLimit   time.Duration
	startTime   time.Time
	active      bool
	gen         uint64
}

// Manager allocates the fixed pool of sandbox slots and gates resource
// access. CheckAccess is called at high frequency from execution-context
// goroutines; it takes only the pool's read lock and consults the permission
// engine, never the registry.
type Manager struct {
	mu      sync.RWMutex
	slots   []slot
	engine  scripting.Engine
	perms   *permissions.Engine
	host    Host
	metrics *monitoring.Metrics
	log     *logging.Logger
	cfg     Config

	// now is swappable for time-budget tests.
	now func() time.Time
}

// NewManager creates a sandbox manager over the given script engine.
func NewManager(engine scripting.Engine, perms *permissions.Engine, host Host, cfg Config, log *logging.Logger) *Manager {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}
	if cfg.MemoryLimit == 0 {
		cfg.MemoryLimit = DefaultConfig().MemoryLimit
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = DefaultConfig().TimeLimit
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		slots:  make([]slot, cfg.PoolSize),
		engine: engine,
		perms:  perms,
		host:   host,
		log:    log.Component("sandbox"),
		cfg:    cfg,
		now:    time.Now,
	}
}

// WithMetrics attaches a metrics collector.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// findLocked returns the active slot for an app id, or nil.
func (m *Manager) findLocked(appID string) *slot {
	for i := range m.slots {
		if m.slots[i].active && m.slots[i].appID == appID {
			return &m.slots[i]
		}
	}
	return nil
}

// Create allocates a sandbox bound to appID and returns its execution
// context. Fails with ErrResourceExhausted when the pool is full. If binding
// registration fails after context creation, the context is destroyed before
// the error returns; no partial state survives.
func (m *Manager) Create(appID string) (scripting.Context, error) {
	if appID == "" {
		return nil, errs.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findLocked(appID) != nil {
		return nil, fmt.Errorf("sandbox already active for %s: %w", appID, errs.ErrInvalidState)
	}

	free := -1
	for i := range m.slots {
		if !m.slots[i].active {
			free = i
			break
		}
	}
	if free == -1 {
		m.log.Warn("no free sandbox slots", zap.String("app_id", appID))
		return nil, fmt.Errorf("sandbox pool full: %w", errs.ErrResourceExhausted)
	}

	ctx, err := m.engine.CreateContext(m.cfg.MemoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution context: %w", err)
	}

	if err := m.registerBindings(ctx, appID); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("failed to register bindings: %w", err)
	}

	s := &m.slots[free]
	s.appID = appID
	s.ctx = ctx
	s.memoryLimit = m.cfg.MemoryLimit
	s.timeLimit = m.cfg.TimeLimit
	s.startTime = m.now()
	s.active = true
	s.gen++

	if m.metrics != nil {
		m.metrics.SandboxesActive.Inc()
	}
	m.log.Info("sandbox created", zap.String("app_id", appID), zap.Int("slot", free))
	return ctx, nil
}

// Destroy tears down the sandbox owned by appID, destroying its execution
// context. Destroying an absent sandbox reports ErrNotFound, never panics.
func (m *Manager) Destroy(appID string) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(appID)
	if s == nil {
		return fmt.Errorf("no active sandbox for %s: %w", appID, errs.ErrNotFound)
	}

	if s.ctx != nil {
		s.ctx.Destroy()
	}
	gen := s.gen
	*s = slot{gen: gen}

	if m.metrics != nil {
		m.metrics.SandboxesActive.Dec()
	}
	m.log.Info("sandbox destroyed", zap.String("app_id", appID))
	return nil
}

// SetLimits updates the quota fields of an existing sandbox.
func (m *Manager) SetLimits(appID string, memoryLimit uint32, timeLimit time.Duration) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(appID)
	if s == nil {
		return fmt.Errorf("no active sandbox for %s: %w", appID, errs.ErrNotFound)
	}

	s.memoryLimit = memoryLimit
	s.timeLimit = timeLimit
	m.log.Info("sandbox limits updated",
		zap.String("app_id", appID),
		zap.Uint32("memory_limit", memoryLimit),
		zap.Duration("time_limit", timeLimit))
	return nil
}

// resourceClasses maps privileged resource identifiers to required
// capabilities. The rf/gpio/storage families admit an app holding any of the
// family's bits; the individual binding then checks its exact bit.
var resourceClasses = []struct {
	match func(string) bool
	caps  permissions.Capability
	any   bool
}{
	{func(r string) bool { return strings.Contains(r, "/system/") }, permissions.CapSystem, false},
	{func(r string) bool { return strings.HasPrefix(r, "rf.") }, permissions.CapRFReceive | permissions.CapRFTransmit, true},
	{func(r string) bool { return strings.HasPrefix(r, "gpio.") }, permissions.CapGPIORead | permissions.CapGPIOWrite, true},
	{func(r string) bool { return strings.HasPrefix(r, "storage.") }, permissions.CapStorageRead | permissions.CapStorageWrite, true},
	{func(r string) bool { return strings.HasPrefix(r, "ui.") }, permissions.CapUICreate, false},
	{func(r string) bool { return strings.HasPrefix(r, "net.") }, permissions.CapNetwork, false},
}

// CheckAccess is the central resource gate. It denies when no sandbox is
// active for the app, when the wall-clock budget is exhausted (for every
// resource, with no reset), and when a classified resource's capability
// check fails. Unclassified resources follow the configured default policy.
func (m *Manager) CheckAccess(appID, resource string) bool {
	allowed := m.checkAccess(appID, resource)
	if m.metrics != nil {
		m.metrics.RecordAccessCheck(allowed)
	}
	return allowed
}

func (m *Manager) checkAccess(appID, resource string) bool {
	if appID == "" || resource == "" {
		return false
	}

	m.mu.RLock()
	s := m.findLocked(appID)
	if s == nil {
		m.mu.RUnlock()
		return false
	}
	startTime, timeLimit := s.startTime, s.timeLimit
	m.mu.RUnlock()

	if m.now().Sub(startTime) > timeLimit {
		m.log.Warn("time budget exhausted, denying access",
			zap.String("app_id", appID),
			zap.String("resource", resource))
		return false
	}

	classified := false
	for _, class := range resourceClasses {
		if !class.match(resource) {
			continue
		}
		classified = true

		var ok bool
		if class.any {
			ok = m.perms.CheckAny(appID, class.caps)
		} else {
			ok = m.perms.Check(appID, class.caps)
		}
		if !ok {
			m.log.Warn("access denied",
				zap.String("app_id", appID),
				zap.String("resource", resource),
				zap.String("required", permissions.Format(class.caps)))
			return false
		}
	}

	if !classified {
		return m.cfg.AllowUnclassified
	}
	return true
}

// Elapsed returns how long the sandbox has been alive, and whether one is
// active for the app at all.
func (m *Manager) Elapsed(appID string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.findLocked(appID)
	if s == nil {
		return 0, false
	}
	return m.now().Sub(s.startTime), true
}

// ActiveCount returns the number of active sandbox slots.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for i := range m.slots {
		if m.slots[i].active {
			n++
		}
	}
	return n
}
