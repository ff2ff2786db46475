package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	quizdom "github.com/paifgx/quizdom-sub000"
	"github.com/paifgx/quizdom-sub000/gateway"
	"github.com/paifgx/quizdom-sub000/internal/devidentity"
	promexport "github.com/paifgx/quizdom-sub000/metrics/export/prometheus"
	"github.com/paifgx/quizdom-sub000/monitor"
	"github.com/paifgx/quizdom-sub000/storage"
)

type app struct {
	controller *quizdom.Controller
	shell      *shell
	logger     *zap.Logger
	closers    []func()
}

func newApp(ctx context.Context, cfg *appConfig, logger *zap.Logger, out io.Writer) (*app, error) {
	a := &app{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	client, err := a.redisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	store := storage.NewRedisStore(client, cfg.Redis.Prefix, cfg.Redis.Channel)

	gatewayURL := cfg.Gateway.URL
	if gatewayURL == "" {
		gatewayURL, err = a.startDevIdentity(cfg.Dev)
		if err != nil {
			return nil, err
		}
	}
	gw, err := gateway.New(gatewayURL, gateway.WithUserAgent("quizdom-cli"))
	if err != nil {
		return nil, err
	}

	feed := monitor.NewActivityFeed()
	a.shell = newShell(out, feed)

	b := quizdom.New().
		WithConfig(cfg.controllerConfig()).
		WithGateway(gw).
		WithStorage(store).
		WithNavigator(a.shell).
		WithActivitySource(feed).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		b.WithAuditSink(quizdom.NewJSONWriterSink(out))
	}

	c, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build controller: %w", err)
	}
	a.controller = c
	a.closers = append(a.closers, c.Close)
	a.shell.attach(c)

	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(cfg.Metrics.Addr, promexport.NewExporter(c)); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

func (a *app) redisClient(ctx context.Context, cfg redisSettings) (redis.UniversalClient, error) {
	addr := cfg.Addr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		a.closers = append(a.closers, mr.Close)
		addr = mr.Addr()
		a.logger.Info("using in-process miniredis", zap.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (a *app) startDevIdentity(cfg devSettings) (string, error) {
	gin.SetMode(gin.ReleaseMode)

	devCfg := devidentity.DefaultConfig()
	devCfg.Secret = []byte(cfg.Secret)
	if cfg.TokenTTL > 0 {
		devCfg.TokenTTL = cfg.TokenTTL
	}
	devCfg.AdminEmails = cfg.AdminEmails

	srv, err := devidentity.New(devCfg, a.logger)
	if err != nil {
		return "", fmt.Errorf("dev identity: %w", err)
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, err := srv.CreateAccount(cfg.AdminEmail, cfg.AdminPassword, devidentity.PermissionAdmin); err != nil {
			return "", fmt.Errorf("seed admin: %w", err)
		}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen dev identity: %w", err)
	}
	a.serve(ln, srv.Handler(), "dev identity")

	url := "http://" + ln.Addr().String()
	a.logger.Info("embedded dev identity service started", zap.String("url", url))
	return url, nil
}

func (a *app) serveMetrics(addr string, exp *promexport.Exporter) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", exp.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}
	a.serve(ln, mux, "metrics")
	a.logger.Info("metrics endpoint started", zap.String("addr", ln.Addr().String()))
	return nil
}

func (a *app) serve(ln net.Listener, h http.Handler, name string) {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(name+" server stopped", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
