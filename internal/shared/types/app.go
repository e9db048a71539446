package types

import "time"

// State represents app lifecycle states
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateError    State = "error"
)

// App is the registry's record for one installed application.
// Manifest-sourced fields are immutable after install; Permissions changes
// only through explicit grant/revoke, and the telemetry fields are
// best-effort values meaningful only while Running.
type App struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Author      string    `json:"author,omitempty"`
	EntryPoint  string    `json:"entry_point"`
	InstallPath string    `json:"install_path"`
	State       State     `json:"state"`
	Permissions uint32    `json:"permissions"`
	MemoryUsage uint32    `json:"memory_usage"`
	CPUTime     uint32    `json:"cpu_time"`
	IsSystemApp bool      `json:"is_system_app"`
	InstalledAt time.Time `json:"installed_at"`
}

// Stats contains registry statistics
type Stats struct {
	InstalledApps int     `json:"installed_apps"`
	RunningApps   int     `json:"running_apps"`
	CurrentAppID  *string `json:"current_app_id,omitempty"`
}
