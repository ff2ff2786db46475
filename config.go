package quizdom

import (
	"errors"
	"strings"
	"time"
)

// Config is the full controller configuration.
//
// Config values are captured by [Builder.Build] and treated as immutable afterwards.
type Config struct {
	Storage  StorageConfig
	Monitor  MonitorConfig
	Routes   RoutesConfig
	Gateway  GatewayConfig
	CrossTab CrossTabConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig names the persisted keys. Names must be distinct and stable
// across releases, otherwise a reload forgets the session.
type StorageConfig struct {
	RecordKey        string
	TokenKey         string
	DeletedMarkerKey string
	LogoutMarkerKey  string
}

/*
====================================
MONITOR CONFIG
====================================
*/

// MonitorConfig tunes background revalidation. A tick revalidates when the
// user has been idle longer than IdleThreshold or active within
// ActiveThreshold, and skips in between.
type MonitorConfig struct {
	Enabled         bool
	Interval        time.Duration
	IdleThreshold   time.Duration
	ActiveThreshold time.Duration
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig lists the navigation targets the controller redirects to.
type RoutesConfig struct {
	LoginPath        string
	FarewellPath     string
	RootPath         string
	AdminPrefix      string
	AdminLandingPath string
}

// GatewayConfig bounds credential gateway calls. CallTimeout of zero disables
// the bound.
type GatewayConfig struct {
	CallTimeout time.Duration
}

// CrossTabConfig controls propagation of logout and account deletion to
// sibling tabs sharing storage.
type CrossTabConfig struct {
	Enabled         bool
	BroadcastLogout bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the gateway latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			RecordKey:        "quizdom.session",
			TokenKey:         "quizdom.token",
			DeletedMarkerKey: "quizdom.account-deleted",
			LogoutMarkerKey:  "quizdom.logged-out",
		},
		Monitor: MonitorConfig{
			Enabled:         true,
			Interval:        5 * time.Minute,
			IdleThreshold:   30 * time.Minute,
			ActiveThreshold: 15 * time.Minute,
		},
		Routes: RoutesConfig{
			LoginPath:        "/login",
			FarewellPath:     "/goodbye",
			RootPath:         "/",
			AdminPrefix:      "/admin",
			AdminLandingPath: "/admin",
		},
		Gateway: GatewayConfig{
			CallTimeout: 15 * time.Second,
		},
		CrossTab: CrossTabConfig{
			Enabled:         true,
			BroadcastLogout: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the controller cannot work with.
func (c *Config) Validate() error {
	// Storage
	keys := []string{
		c.Storage.RecordKey,
		c.Storage.TokenKey,
		c.Storage.DeletedMarkerKey,
		c.Storage.LogoutMarkerKey,
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return errors.New("Storage keys must not be empty")
		}
		if _, dup := seen[k]; dup {
			return errors.New("Storage keys must be distinct")
		}
		seen[k] = struct{}{}
	}

	// Monitor
	if c.Monitor.Enabled {
		if c.Monitor.Interval <= 0 {
			return errors.New("Monitor Interval must be > 0")
		}
		if c.Monitor.IdleThreshold <= 0 || c.Monitor.ActiveThreshold <= 0 {
			return errors.New("Monitor thresholds must be > 0")
		}
		if c.Monitor.ActiveThreshold > c.Monitor.IdleThreshold {
			return errors.New("Monitor ActiveThreshold must be <= IdleThreshold")
		}
	}

	// Routes
	for name, p := range map[string]string{
		"LoginPath":        c.Routes.LoginPath,
		"FarewellPath":     c.Routes.FarewellPath,
		"RootPath":         c.Routes.RootPath,
		"AdminPrefix":      c.Routes.AdminPrefix,
		"AdminLandingPath": c.Routes.AdminLandingPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Routes " + name + " must be an absolute path")
		}
	}
	if !UnderSection(c.Routes.AdminLandingPath, c.Routes.AdminPrefix) {
		return errors.New("Routes AdminLandingPath must lie under AdminPrefix")
	}

	if c.Gateway.CallTimeout < 0 {
		return errors.New("Gateway CallTimeout must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
