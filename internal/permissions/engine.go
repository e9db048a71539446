package permissions

import (
	"fmt"
	"sync"

	"github.com/rfdeck/appos/internal/logging"
	"github.com/rfdeck/appos/internal/shared/errs"
	"go.uber.org/zap"
)

// Engine answers point-in-time capability queries and manages persisted
// per-app grants. Reads are safe to call concurrently from sandbox threads;
// read-modify-write operations (Grant/Revoke) serialize through one mutex so
// the last writer wins after serialization rather than merging.
type Engine struct {
	store Store
	log   *logging.Logger

	// rmw serializes Grant/Revoke/SetMask across all app ids. Plain reads
	// go straight to the store, which has its own read lock.
	rmw sync.Mutex
}

// NewEngine creates a permission engine backed by the given store.
func NewEngine(store Store, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{store: store, log: log.Component("permissions")}
}

// Load returns the persisted mask for an app id. Absence of a stored grant
// fails open to the zero mask, not to an error.
func (e *Engine) Load(appID string) (Capability, error) {
	if appID == "" {
		return 0, errs.ErrInvalidArgument
	}

	mask, ok, err := e.store.Load(appID)
	if err != nil {
		return 0, fmt.Errorf("failed to load grant for %s: %w", appID, err)
	}
	if !ok {
		return 0, nil
	}
	return mask, nil
}

// Save persists a mask for an app id, replacing any prior value.
func (e *Engine) Save(appID string, mask Capability) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}
	if err := e.store.Save(appID, mask); err != nil {
		return fmt.Errorf("failed to save grant for %s: %w", appID, err)
	}
	e.log.Debug("saved grant", zap.String("app_id", appID), zap.String("mask", Format(mask)))
	return nil
}

// Grant adds bits to an app's persisted mask.
func (e *Engine) Grant(appID string, bits Capability) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	e.rmw.Lock()
	defer e.rmw.Unlock()

	mask, err := e.Load(appID)
	if err != nil {
		return err
	}
	if err := e.Save(appID, mask|bits); err != nil {
		return err
	}
	e.log.Info("granted capabilities",
		zap.String("app_id", appID),
		zap.String("bits", Format(bits)))
	return nil
}

// Revoke removes bits from an app's persisted mask.
func (e *Engine) Revoke(appID string, bits Capability) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}

	e.rmw.Lock()
	defer e.rmw.Unlock()

	mask, err := e.Load(appID)
	if err != nil {
		return err
	}
	if err := e.Save(appID, mask&^bits); err != nil {
		return err
	}
	e.log.Info("revoked capabilities",
		zap.String("app_id", appID),
		zap.String("bits", Format(bits)))
	return nil
}

// Forget removes an app's persisted grant entirely. Used at uninstall so
// stale grants cannot outlive the app that earned them.
func (e *Engine) Forget(appID string) error {
	if appID == "" {
		return errs.ErrInvalidArgument
	}
	return e.store.Delete(appID)
}

// Check reports whether every bit in required is granted to the app.
// A missing grant or a lookup failure denies.
func (e *Engine) Check(appID string, required Capability) bool {
	mask, err := e.Load(appID)
	if err != nil {
		e.log.Warn("grant lookup failed, denying", zap.String("app_id", appID), zap.Error(err))
		return false
	}
	return Has(mask, required)
}

// CheckAny reports whether at least one bit in candidates is granted.
// The rf resource family is gated this way: holding either rf.receive or
// rf.transmit admits an app to the rf binding surface, and the individual
// operation then checks its exact bit.
func (e *Engine) CheckAny(appID string, candidates Capability) bool {
	mask, err := e.Load(appID)
	if err != nil {
		e.log.Warn("grant lookup failed, denying", zap.String("app_id", appID), zap.Error(err))
		return false
	}
	return HasAny(mask, candidates)
}
