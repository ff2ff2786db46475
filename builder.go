package quizdom

import (
	"errors"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/paifgx/quizdom-sub000/crosstab"
	internalaudit "github.com/paifgx/quizdom-sub000/internal/audit"
	"github.com/paifgx/quizdom-sub000/monitor"
	"github.com/paifgx/quizdom-sub000/session"
	"github.com/paifgx/quizdom-sub000/storage"
)

// Builder assembles a [Controller]. A Builder is single use.
type Builder struct {
	config    Config
	gateway   CredentialGateway
	storage   storage.SharedStore
	navigator Navigator
	clock     clock.Clock
	logger    *zap.Logger
	activity  monitor.ActivitySource
	auditSink AuditSink

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithGateway sets the credential gateway. Required.
func (b *Builder) WithGateway(g CredentialGateway) *Builder {
	b.gateway = g
	return b
}

// WithStorage sets the shared key/value store. Required.
func (b *Builder) WithStorage(s storage.SharedStore) *Builder {
	b.storage = s
	return b
}

// WithNavigator sets the navigation capability used by logout, deletion and
// background teardown. Defaults to a no-op.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithClock injects the clock driving the monitor, timeouts and timestamps.
func (b *Builder) WithClock(clk clock.Clock) *Builder {
	b.clock = clk
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithActivitySource attaches the source of user interaction events.
func (b *Builder) WithActivitySource(src monitor.ActivitySource) *Builder {
	b.activity = src
	return b
}

// WithAuditSink sets the audit sink. Auditing must also be enabled in config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the gateway latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a controller that is still
// loading. Call [Controller.Initialize] to run the boot protocol: it restores a
// stored session, clears Loading and subscribes to sibling tab broadcasts.
// A controller that signs in without Initialize subscribes at its first
// successful Login or Register.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.gateway == nil {
		return nil, errors.New("credential gateway required")
	}
	if b.storage == nil {
		return nil, errors.New("storage required")
	}

	clk := b.clock
	if clk == nil {
		clk = clock.New()
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	nav := b.navigator
	if nav == nil {
		nav = noopNavigator{}
	}

	c := &Controller{
		cfg:        cfg,
		gateway:    b.gateway,
		shared:     b.storage,
		navigator:  nav,
		clock:      clk,
		logger:     logger.Named("session").With(zap.String("origin", b.storage.Origin())),
		activeRole: RolePlayer,
		loading:    true,
		subs:       make(map[uint64]func(Snapshot)),
		metrics:    NewMetrics(cfg.Metrics),
		store: session.NewStore(b.storage, session.Keys{
			Record: cfg.Storage.RecordKey,
			Token:  cfg.Storage.TokenKey,
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink, logger),
	}

	if cfg.Monitor.Enabled {
		m, err := monitor.New(monitor.Config{
			Interval: cfg.Monitor.Interval,
			Policy: monitor.Policy{
				IdleThreshold:   cfg.Monitor.IdleThreshold,
				ActiveThreshold: cfg.Monitor.ActiveThreshold,
			},
		}, monitor.Deps{
			Clock:      clk,
			Logger:     c.logger,
			Source:     b.activity,
			Revalidate: c.revalidate,
			OnDecision: c.observeTick,
		})
		if err != nil {
			return nil, err
		}
		c.monitor = m
	}

	if cfg.CrossTab.Enabled {
		c.sync = crosstab.New(b.storage, crosstab.Config{
			DeletedMarkerKey: cfg.Storage.DeletedMarkerKey,
			LogoutMarkerKey:  cfg.Storage.LogoutMarkerKey,
			Origin:           b.storage.Origin(),
		}, crosstab.Handlers{
			OnAccountDeleted: c.onSiblingAccountDeleted,
			OnLoggedOut:      c.onSiblingLoggedOut,
		}, c.logger)
	}

	b.built = true
	return c, nil
}
