// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/config"
	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/logger"
	"github.com/controlplaneio-fluxcd/aegis/internal/schedule"
	"github.com/controlplaneio-fluxcd/aegis/internal/server"
	"github.com/controlplaneio-fluxcd/aegis/internal/service"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the license server",
	Example: `  # Start the server with a configuration file
  aegis serve --config=/etc/aegis/config.yaml

  # Override the configured log level
  aegis serve --config=/etc/aegis/config.yaml --log-level=debug

  # Start the server configured from the environment
  export AEGIS_SIGNING_PRIVATE_KEY_PATH=/etc/aegis/keys/aegis-2025.private.pem
  export AEGIS_SIGNING_KEY_ID=aegis-2025
  export AEGIS_AUTH_SECRET="$(openssl rand -hex 32)"
  aegis serve
`,
	Args: cobra.NoArgs,
	RunE: serveCmdRun,
}

type serveFlags struct {
	configPath string
	logOptions logger.Options
}

var serveArgs serveFlags

func init() {
	serveCmd.Flags().StringVarP(&serveArgs.configPath, "config", "c", "",
		"path to the configuration file, the AEGIS_* environment variables take precedence")
	serveArgs.logOptions.BindFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func serveCmdRun(cmd *cobra.Command, args []string) error {
	spec, err := config.Load(serveArgs.configPath)
	if err != nil {
		return err
	}

	// The log flags take precedence over the configuration.
	log, err := logger.NewLogger(serveArgs.logOptions.Override(cmd.Flags(), logger.Options{
		LogEncoding: spec.Log.Encoding,
		LogLevel:    spec.Log.Level,
	}))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logr.NewContext(ctx, log)

	log.Info("Loaded configuration",
		"source", spec.Version,
		"environment", spec.Server.Environment,
		"database", spec.Database.Driver,
		"version", VERSION)

	issuer, verifier, err := newSigners(spec)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, spec)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []service.Option{
		service.WithMetrics(service.NewMetrics(reg)),
		service.WithDefaultDemoDuration(time.Duration(spec.License.DefaultDemoDays) * 24 * time.Hour),
	}
	if spec.Redis.Address != "" {
		client, err := store.NewRedisClient(spec.Redis.Address, spec.Redis.Password, spec.Redis.DB)
		if err != nil {
			return err
		}
		cache := store.NewRedisRevocationCache(client, spec.Redis.Key, st)
		defer cache.Close()
		if err := cache.Ping(ctx); err != nil {
			log.Error(err, "Redis is unavailable, revocation lookups fall back to the database")
		}
		opts = append(opts, service.WithRevocationCache(cache))
	}
	svc := service.New(st, issuer, verifier, opts...)

	srvOpts := server.Options{
		Version:     VERSION,
		Environment: spec.Server.Environment,
		AuthSecret:  []byte(spec.Auth.Secret),
		Gatherer:    reg,
	}
	if spec.RateLimitEnabled() {
		srvOpts.RequestsPerMinute = spec.RateLimit.RequestsPerMinute
		srvOpts.Burst = spec.RateLimit.Burst
	}
	if spec.SweeperEnabled() {
		sched, err := schedule.Parse(spec.Sweeper.Schedule, spec.Sweeper.TimeZone)
		if err != nil {
			return err
		}
		srvOpts.Sweeper = svc.StartSweeper(ctx, sched)
	}

	handler := server.New(svc, log, srvOpts).Handler()
	return server.StartServer(ctx, spec.Server.Address, spec.Server.Timeout.Duration, handler, log)
}

// newSigners loads the signing key and returns the license issuer and verifier.
// The verification key is derived from the private key unless a public key is configured.
func newSigners(spec *config.ConfigSpec) (*lkm.Issuer, *lkm.Verifier, error) {
	privateKey, err := lkm.EdPrivateKeyFromFile(spec.Signing.PrivateKeyPath, spec.Signing.KeyID)
	if err != nil {
		return nil, nil, err
	}
	publicKey := privateKey.Public()
	if spec.Signing.PublicKeyPath != "" {
		publicKey, err = lkm.EdPublicKeyFromFile(spec.Signing.PublicKeyPath, spec.Signing.KeyID)
		if err != nil {
			return nil, nil, err
		}
		if !publicKey.Key.Equal(privateKey.Public().Key) {
			return nil, nil, fmt.Errorf("public key %s does not match the private key", spec.Signing.PublicKeyPath)
		}
	}

	issuer, err := lkm.NewIssuer(spec.License.Issuer, privateKey)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := lkm.NewVerifier(spec.License.Issuer, publicKey)
	if err != nil {
		return nil, nil, err
	}
	return issuer, verifier, nil
}

// openStore connects to the configured database and creates the schema.
func openStore(ctx context.Context, spec *config.ConfigSpec) (store.Store, error) {
	switch spec.Database.Driver {
	case config.DatabaseDriverPostgres:
		pg, err := store.NewPostgresStore(ctx, spec.Database.URL, spec.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		logr.FromContextOrDiscard(ctx).Info("Using the in-memory store, records are lost on restart")
		return store.NewMemoryStore(), nil
	}
}
