package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	quizdom "github.com/paifgx/quizdom-sub000"
)

type appConfig struct {
	Gateway  gatewaySettings  `mapstructure:"gateway"`
	Redis    redisSettings    `mapstructure:"redis"`
	Monitor  monitorSettings  `mapstructure:"monitor"`
	CrossTab crossTabSettings `mapstructure:"crosstab"`
	Dev      devSettings      `mapstructure:"dev"`
	Log      logSettings      `mapstructure:"log"`
	Metrics  metricsSettings  `mapstructure:"metrics"`
	Audit    auditSettings    `mapstructure:"audit"`
}

type gatewaySettings struct {
	// URL of the identity service. Empty starts the embedded dev service.
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type redisSettings struct {
	// Addr of the shared Redis. Empty starts an in-process miniredis.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	Channel  string `mapstructure:"channel"`
}

type monitorSettings struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	IdleThreshold   time.Duration `mapstructure:"idle_threshold"`
	ActiveThreshold time.Duration `mapstructure:"active_threshold"`
}

type crossTabSettings struct {
	BroadcastLogout bool `mapstructure:"broadcast_logout"`
}

type devSettings struct {
	Secret        string        `mapstructure:"secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AdminEmails   []string      `mapstructure:"admin_emails"`
	AdminEmail    string        `mapstructure:"admin_email"`
	AdminPassword string        `mapstructure:"admin_password"`
}

type logSettings struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type metricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type auditSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

var configKeys = []string{
	"gateway.url",
	"gateway.timeout",
	"redis.addr",
	"redis.password",
	"redis.db",
	"redis.prefix",
	"redis.channel",
	"monitor.enabled",
	"monitor.interval",
	"monitor.idle_threshold",
	"monitor.active_threshold",
	"crosstab.broadcast_logout",
	"dev.secret",
	"dev.token_ttl",
	"dev.admin_emails",
	"dev.admin_email",
	"dev.admin_password",
	"log.level",
	"log.development",
	"metrics.enabled",
	"metrics.addr",
	"audit.enabled",
}

func loadConfig(v *viper.Viper) (*appConfig, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("QUIZDOM")

	setDefaults(v)

	for _, key := range configKeys {
		envKey := "QUIZDOM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	v.AutomaticEnv()

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := quizdom.DefaultConfig()

	v.SetDefault("gateway.url", "")
	v.SetDefault("gateway.timeout", defaults.Gateway.CallTimeout.String())

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "quizdom")
	v.SetDefault("redis.channel", "quizdom:storage-events")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", defaults.Monitor.Interval.String())
	v.SetDefault("monitor.idle_threshold", defaults.Monitor.IdleThreshold.String())
	v.SetDefault("monitor.active_threshold", defaults.Monitor.ActiveThreshold.String())

	v.SetDefault("crosstab.broadcast_logout", false)

	v.SetDefault("dev.secret", "quizdom-dev-secret-change-me-0123456789")
	v.SetDefault("dev.token_ttl", "1h")
	v.SetDefault("dev.admin_emails", []string{})
	v.SetDefault("dev.admin_email", "")
	v.SetDefault("dev.admin_password", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "")

	v.SetDefault("audit.enabled", false)
}

// controllerConfig maps the application settings onto the controller config.
func (c *appConfig) controllerConfig() quizdom.Config {
	cfg := quizdom.DefaultConfig()
	cfg.Gateway.CallTimeout = c.Gateway.Timeout
	cfg.Monitor.Enabled = c.Monitor.Enabled
	cfg.Monitor.Interval = c.Monitor.Interval
	cfg.Monitor.IdleThreshold = c.Monitor.IdleThreshold
	cfg.Monitor.ActiveThreshold = c.Monitor.ActiveThreshold
	cfg.CrossTab.BroadcastLogout = c.CrossTab.BroadcastLogout
	cfg.Metrics.Enabled = c.Metrics.Enabled || c.Metrics.Addr != ""
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled
	cfg.Audit.Enabled = c.Audit.Enabled
	return cfg
}
