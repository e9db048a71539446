package sandbox

import (
	"errors"
	"fmt"

	"github.com/rfdeck/appos/internal/permissions"
	"github.com/rfdeck/appos/internal/scripting"
	"go.uber.org/zap"
)

// ErrUnavailable is returned by bindings whose hardware backend is absent.
var ErrUnavailable = errors.New("resource unavailable")

// Radio is the transceiver backend consumed by the rf bindings.
type Radio interface {
	Receive(frequencyHz uint32, timeoutMS uint32) ([]byte, error)
	Transmit(frequencyHz uint32, payload []byte) error
}

// GPIO is the pin backend consumed by the gpio bindings.
type GPIO interface {
	Read(pin int) (int, error)
	Write(pin int, level int) error
}

// KV is the persistent-storage backend consumed by the storage bindings.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Display is the rendering backend consumed by the ui bindings.
type Display interface {
	CreateScreen(title string) (int, error)
	DrawText(screen int, x, y int, text string) error
}

// Notifier delivers user-visible notifications.
type Notifier interface {
	Notify(title, message string) error
}

// Host bundles the hardware backends exposed to sandboxed scripts. Nil
// members are tolerated; their bindings return ErrUnavailable.
type Host struct {
	Radio   Radio
	GPIO    GPIO
	Storage KV
	Display Display
	Notify  Notifier
}

// gate passes a privileged call through the access gate and an exact
// capability check. Errors wrap scripting.ErrPermissionDenied so the engine
// reports StatusPermissionDenied for executions that die on one.
func (m *Manager) gate(appID, resource string, required permissions.Capability) error {
	if !m.CheckAccess(appID, resource) {
		return fmt.Errorf("%s: %w", resource, scripting.ErrPermissionDenied)
	}
	if required != 0 && !m.perms.Check(appID, required) {
		return fmt.Errorf("%s: %w", resource, scripting.ErrPermissionDenied)
	}
	return nil
}

// registerBindings installs the privileged native API into a context. These
// bindings are the only way script code reaches radio, gpio, storage, ui, or
// notification capabilities.
func (m *Manager) registerBindings(ctx scripting.Context, appID string) error {
	log := m.log.With(zap.String("app_id", appID))

	rf := map[string]interface{}{
		"receive": func(frequencyHz, timeoutMS uint32) ([]byte, error) {
			if err := m.gate(appID, "rf.receive", permissions.CapRFReceive); err != nil {
				return nil, err
			}
			if m.host.Radio == nil {
				return nil, ErrUnavailable
			}
			return m.host.Radio.Receive(frequencyHz, timeoutMS)
		},
		"transmit": func(frequencyHz uint32, payload []byte) error {
			if err := m.gate(appID, "rf.transmit", permissions.CapRFTransmit); err != nil {
				return err
			}
			if m.host.Radio == nil {
				return ErrUnavailable
			}
			return m.host.Radio.Transmit(frequencyHz, payload)
		},
	}

	gpio := map[string]interface{}{
		"read": func(pin int) (int, error) {
			if err := m.gate(appID, "gpio.read", permissions.CapGPIORead); err != nil {
				return 0, err
			}
			if m.host.GPIO == nil {
				return 0, ErrUnavailable
			}
			return m.host.GPIO.Read(pin)
		},
		"write": func(pin, level int) error {
			if err := m.gate(appID, "gpio.write", permissions.CapGPIOWrite); err != nil {
				return err
			}
			if m.host.GPIO == nil {
				return ErrUnavailable
			}
			return m.host.GPIO.Write(pin, level)
		},
	}

	storage := map[string]interface{}{
		"get": func(key string) (string, error) {
			if err := m.gate(appID, "storage.read", permissions.CapStorageRead); err != nil {
				return "", err
			}
			if m.host.Storage == nil {
				return "", ErrUnavailable
			}
			return m.host.Storage.Get(key)
		},
		"set": func(key, value string) error {
			if err := m.gate(appID, "storage.write", permissions.CapStorageWrite); err != nil {
				return err
			}
			if m.host.Storage == nil {
				return ErrUnavailable
			}
			return m.host.Storage.Set(key, value)
		},
		"remove": func(key string) error {
			if err := m.gate(appID, "storage.write", permissions.CapStorageWrite); err != nil {
				return err
			}
			if m.host.Storage == nil {
				return ErrUnavailable
			}
			return m.host.Storage.Delete(key)
		},
	}

	ui := map[string]interface{}{
		"createScreen": func(title string) (int, error) {
			if err := m.gate(appID, "ui.create", permissions.CapUICreate); err != nil {
				return 0, err
			}
			if m.host.Display == nil {
				return 0, ErrUnavailable
			}
			return m.host.Display.CreateScreen(title)
		},
		"drawText": func(screen, x, y int, text string) error {
			if err := m.gate(appID, "ui.create", permissions.CapUICreate); err != nil {
				return err
			}
			if m.host.Display == nil {
				return ErrUnavailable
			}
			return m.host.Display.DrawText(screen, x, y, text)
		},
	}

	notify := func(title, message string) error {
		if err := m.gate(appID, "ui.notify", permissions.CapUICreate); err != nil {
			return err
		}
		if m.host.Notify == nil {
			return ErrUnavailable
		}
		return m.host.Notify.Notify(title, message)
	}

	console := map[string]interface{}{
		"log":   func(msg string) { log.Info("console", zap.String("msg", msg)) },
		"warn":  func(msg string) { log.Warn("console", zap.String("msg", msg)) },
		"error": func(msg string) { log.Error("console", zap.String("msg", msg)) },
	}

	bindings := map[string]interface{}{
		"rf":      rf,
		"gpio":    gpio,
		"storage": storage,
		"ui":      ui,
		"notify":  notify,
		"console": console,
	}
	for name, value := range bindings {
		if err := ctx.Bind(name, value); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}
