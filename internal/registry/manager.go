package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rfdeck/appos/internal/installer"
	"github.com/rfdeck/appos/internal/logging"
	"github.com/rfdeck/appos/internal/monitoring"
	"github.com/rfdeck/appos/internal/permissions"
	"github.com/rfdeck/appos/internal/sandbox"
	"github.com/rfdeck/appos/internal/scripting"
	"github.com/rfdeck/appos/internal/shared/errs"
	"github.com/rfdeck/appos/internal/shared/id"
	"github.com/rfdeck/appos/internal/shared/types"
	"go.uber.org/zap"
)

// Config holds registry configuration.
type Config struct {
	// MaxApps bounds the installed-app table.
	MaxApps int

	// AppsDir is the directory app packages are installed under, one
	// subdirectory per app id.
	AppsDir string
}

// DefaultConfig returns the standard registry bounds.
func DefaultConfig() Config {
	return Config{MaxApps: 16, AppsDir: "/var/lib/appos/apps"}
}

// Manager owns the catalog of installed applications. All mutation happens
// through its operations, serialized by one registry-wide mutex. The long
// path through Start releases the mutex while script code executes (the
// record sits in StateStarting meanwhile) and re-acquires it to finalize, so
// control operations never block on script execution.
type Manager struct {
	mu        sync.Mutex
	apps      []*types.App
	contexts  map[string]scripting.Context
	currentID string
	closed    bool

	cfg       Config
	installer *installer.Installer
	perms     *permissions.Engine
	sandboxes *sandbox.Manager
	metrics   *monitoring.Metrics
	log       *logging.Logger
}

// NewManager creates an app registry.
func NewManager(cfg Config, inst *installer.Installer, perms *permissions.Engine, sandboxes *sandbox.Manager, log *logging.Logger) *Manager {
	if cfg.MaxApps <= 0 {
		cfg.MaxApps = DefaultConfig().MaxApps
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		apps:      make([]*types.App, 0, cfg.MaxApps),
		contexts:  make(map[string]scripting.Context),
		cfg:       cfg,
		installer: inst,
		perms:     perms,
		sandboxes: sandboxes,
		log:       log.Component("registry"),
	}
}

// WithMetrics attaches a metrics collector.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// findLocked returns the record for an app id, or nil.
func (m *Manager) findLocked(appID string) *types.App {
	for _, app := range m.apps {
		if app.ID == appID {
			return app
		}
	}
	return nil
}

// Install materializes the package at packagePath, validates its manifest,
// resolves the manifest's grant string into a capability mask, and appends a
// record in StateStopped. Returns the generated app id.
func (m *Manager) Install(packagePath string) (string, error) {
	if packagePath == "" {
		return "", errs.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", fmt.Errorf("registry closed: %w", errs.ErrInvalidState)
	}
	if len(m.apps) >= m.cfg.MaxApps {
		m.recordInstall("exhausted")
		return "", fmt.Errorf("app table full (%d): %w", m.cfg.MaxApps, errs.ErrResourceExhausted)
	}

	appID := id.NewAppID()
	installPath := filepath.Join(m.cfg.AppsDir, appID)

	if err := m.installer.Extract(packagePath, installPath); err != nil {
		m.recordInstall("failed")
		return "", err
	}

	manifest, err := installer.LoadManifest(filepath.Join(installPath, installer.ManifestFile))
	if err == nil {
		err = manifest.Validate()
	}
	if err != nil {
		os.RemoveAll(installPath)
		m.recordInstall("failed")
		return "", err
	}

	mask := permissions.Parse(manifest.Permissions)
	if err := m.perms.Save(appID, mask); err != nil {
		os.RemoveAll(installPath)
		m.recordInstall("failed")
		return "", err
	}

	app := &types.App{
		ID:          appID,
		Name:        manifest.Name,
		Version:     manifest.Version,
		Author:      manifest.Author,
		EntryPoint:  manifest.EntryPoint,
		InstallPath: installPath,
		State:       types.StateStopped,
		Permissions: uint32(mask),
		InstalledAt: time.Now(),
	}
	m.apps = append(m.apps, app)

	m.recordInstall("ok")
	if m.metrics != nil {
		m.metrics.AppsInstalled.Set(float64(len(m.apps)))
	}
	m.log.Info("installed app",
		zap.String("app_id", appID),
		zap.String("name", app.Name),
		zap.String("version", app.Version),
		zap.String("permissions", permissions.Format(mask)))
	return appID, nil
}

// Uninstall stops the app if it is running, forgets its persisted grant,
// removes its files, and drops the record. Removing an unknown id is an
// error, not a no-op.
func (m *Manager) Uninstall(appID string) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.findLocked(appID)
	if app == nil {
		return fmt.Errorf("app %s: %w", appID, errs.ErrNotFound)
	}
	if app.State == types.StateStarting {
		return fmt.Errorf("app %s is starting: %w", appID, errs.ErrAlreadyInProgress)
	}
	if app.IsSystemApp {
		return fmt.Errorf("app %s is a system app: %w", appID, errs.ErrInvalidState)
	}

	m.stopLocked(app)

	if err := m.perms.Forget(appID); err != nil {
		m.log.Warn("failed to forget grant", zap.String("app_id", appID), zap.Error(err))
	}
	if err := os.RemoveAll(app.InstallPath); err != nil {
		m.log.Warn("failed to remove install dir", zap.String("app_id", appID), zap.Error(err))
	}

	for i, a := range m.apps {
		if a.ID == appID {
			m.apps = append(m.apps[:i], m.apps[i+1:]...)
			break
		}
	}

	if m.metrics != nil {
		m.metrics.AppsInstalled.Set(float64(len(m.apps)))
	}
	m.log.Info("uninstalled app", zap.String("app_id", appID), zap.String("name", app.Name))
	return nil
}

// Start creates a sandbox for the app, loads its entry file, and executes
// it. Starting a running app is a benign no-op. Any failure rolls back the
// sandbox and leaves the record StateStopped.
//
// The registry lock is released while the script executes; the record holds
// StateStarting until the execution finalizes.
func (m *Manager) Start(ctx context.Context, appID string) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	m.mu.Lock()
	app := m.findLocked(appID)
	if app == nil {
		m.mu.Unlock()
		return fmt.Errorf("app %s: %w", appID, errs.ErrNotFound)
	}
	switch app.State {
	case types.StateRunning:
		m.mu.Unlock()
		m.log.Debug("app already running", zap.String("app_id", appID))
		return nil
	case types.StateStarting:
		m.mu.Unlock()
		return fmt.Errorf("app %s: %w", appID, errs.ErrAlreadyInProgress)
	case types.StatePaused:
		m.mu.Unlock()
		return fmt.Errorf("app %s is paused, resume it: %w", appID, errs.ErrInvalidState)
	}

	execCtx, err := m.sandboxes.Create(appID)
	if err != nil {
		m.mu.Unlock()
		m.recordStart("sandbox_failed")
		return fmt.Errorf("failed to create sandbox for %s: %w", appID, err)
	}

	entryFile := filepath.Join(app.InstallPath, app.EntryPoint)
	app.State = types.StateStarting
	m.contexts[appID] = execCtx
	m.mu.Unlock()

	// Load and execute outside the registry lock. Only this app is
	// mid-start; other registry operations proceed.
	execErr := execCtx.LoadFile(entryFile)
	var result scripting.Result
	if execErr == nil {
		result = execCtx.Execute(ctx)
		if result.Status != scripting.StatusOK {
			execErr = fmt.Errorf("execution %s: %w", result.Status, result.Err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if execErr != nil {
		m.rollbackStartLocked(app, appID)
		m.recordStart("failed")
		m.log.Error("failed to start app", zap.String("app_id", appID), zap.Error(execErr))
		return execErr
	}

	app.State = types.StateRunning
	usage := execCtx.Usage()
	app.MemoryUsage = usage.MemoryBytes
	app.CPUTime = uint32(usage.CPUTime.Milliseconds())
	m.currentID = appID

	m.recordStart("ok")
	if m.metrics != nil {
		m.metrics.AppsRunning.Inc()
		m.metrics.ExecDuration.Observe(result.Duration.Seconds())
	}
	m.log.Info("started app", zap.String("app_id", appID), zap.String("name", app.Name))
	return nil
}

// rollbackStartLocked tears down the partially-created sandbox and returns
// the record to StateStopped.
func (m *Manager) rollbackStartLocked(app *types.App, appID string) {
	if err := m.sandboxes.Destroy(appID); err != nil {
		m.log.Warn("rollback destroy failed", zap.String("app_id", appID), zap.Error(err))
	}
	delete(m.contexts, appID)
	app.State = types.StateStopped
}

// Stop signals the app's execution context to stop and destroys its
// sandbox. Stopping an app that is not running is a benign no-op.
func (m *Manager) Stop(appID string) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.findLocked(appID)
	if app == nil {
		return fmt.Errorf("app %s: %w", appID, errs.ErrNotFound)
	}
	if app.State != types.StateRunning {
		m.log.Debug("app not running", zap.String("app_id", appID))
		return nil
	}

	m.stopLocked(app)
	m.log.Info("stopped app", zap.String("app_id", appID), zap.String("name", app.Name))
	return nil
}

// stopLocked tears down a running or paused app. Must hold the lock.
func (m *Manager) stopLocked(app *types.App) {
	if execCtx, ok := m.contexts[app.ID]; ok {
		execCtx.Stop()
		if err := m.sandboxes.Destroy(app.ID); err != nil {
			m.log.Warn("sandbox destroy failed", zap.String("app_id", app.ID), zap.Error(err))
		}
		delete(m.contexts, app.ID)
	}

	wasRunning := app.State == types.StateRunning || app.State == types.StatePaused
	app.State = types.StateStopped

	if m.currentID == app.ID {
		m.currentID = ""
	}
	if wasRunning && m.metrics != nil {
		m.metrics.AppsRunning.Dec()
	}
}

// Pause suspends a running app. The sandbox and its context stay alive and
// the time budget keeps counting.
func (m *Manager) Pause(appID string) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.findLocked(appID)
	if app == nil {
		return fmt.Errorf("app %s: %w", appID, errs.ErrNotFound)
	}
	if app.State != types.StateRunning {
		return fmt.Errorf("app %s is not running: %w", appID, errs.ErrInvalidState)
	}

	app.State = types.StatePaused
	m.log.Info("paused app", zap.String("app_id", appID))
	return nil
}

// Resume returns a paused app to running.
func (m *Manager) Resume(appID string) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.findLocked(appID)
	if app == nil {
		return fmt.Errorf("app %s: %w", appID, errs.ErrNotFound)
	}
	if app.State != types.StatePaused {
		return fmt.Errorf("app %s is not paused: %w", appID, errs.ErrInvalidState)
	}

	app.State = types.StateRunning
	m.log.Info("resumed app", zap.String("app_id", appID))
	return nil
}

// List returns a point-in-time snapshot of up to maxCount records.
func (m *Manager) List(maxCount int) []types.App {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxCount < 0 {
		maxCount = 0
	}
	if maxCount > len(m.apps) {
		maxCount = len(m.apps)
	}

	apps := make([]types.App, 0, maxCount)
	for _, app := range m.apps[:maxCount] {
		apps = append(apps, *app)
	}
	return apps
}

// AppInfo returns a copy of one record.
func (m *Manager) AppInfo(appID string) (types.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.findLocked(appID)
	if app == nil {
		return types.App{}, fmt.Errorf("app %s: %w", appID, errs.ErrNotFound)
	}
	return *app, nil
}

// CheckPermission tests capability bits against the record's stored mask.
// An unknown app id yields false, not an error.
func (m *Manager) CheckPermission(appID string, bits permissions.Capability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.findLocked(appID)
	if app == nil {
		return false
	}
	return permissions.Has(permissions.Capability(app.Permissions), bits)
}

// SetPermissions replaces an app's grant, in the persisted store and on the
// record.
func (m *Manager) SetPermissions(appID string, mask permissions.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.findLocked(appID)
	if app == nil {
		return fmt.Errorf("app %s: %w", appID, errs.ErrNotFound)
	}
	if err := m.perms.Save(appID, mask); err != nil {
		return err
	}
	app.Permissions = uint32(mask)
	return nil
}

// Grant adds capability bits to an app's grant.
func (m *Manager) Grant(appID string, bits permissions.Capability) error {
	return m.updateGrant(appID, func() error { return m.perms.Grant(appID, bits) })
}

// Revoke removes capability bits from an app's grant.
func (m *Manager) Revoke(appID string, bits permissions.Capability) error {
	return m.updateGrant(appID, func() error { return m.perms.Revoke(appID, bits) })
}

func (m *Manager) updateGrant(appID string, apply func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.findLocked(appID)
	if app == nil {
		return fmt.Errorf("app %s: %w", appID, errs.ErrNotFound)
	}
	if err := apply(); err != nil {
		return err
	}
	mask, err := m.perms.Load(appID)
	if err != nil {
		return err
	}
	app.Permissions = uint32(mask)
	return nil
}

// CurrentApp returns the most recently started app id, cleared when that
// app stops.
func (m *Manager) CurrentApp() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID, m.currentID != ""
}

// Count returns the number of installed apps.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.apps)
}

// Stats returns registry statistics.
func (m *Manager) Stats() types.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := types.Stats{InstalledApps: len(m.apps)}
	for _, app := range m.apps {
		if app.State == types.StateRunning {
			stats.RunningApps++
		}
	}
	if m.currentID != "" {
		current := m.currentID
		stats.CurrentAppID = &current
	}
	return stats
}

// Close stops every running app and refuses further installs.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	for _, app := range m.apps {
		if app.State == types.StateRunning || app.State == types.StatePaused {
			m.stopLocked(app)
		}
	}
	m.closed = true
	m.log.Info("registry closed")
	return nil
}

func (m *Manager) recordInstall(status string) {
	if m.metrics != nil {
		m.metrics.InstallsTotal.WithLabelValues(status).Inc()
	}
}

func (m *Manager) recordStart(status string) {
	if m.metrics != nil {
		m.metrics.StartsTotal.WithLabelValues(status).Inc()
	}
}
