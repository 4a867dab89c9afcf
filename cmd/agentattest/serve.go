package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentattest/attest-core/internal/config"
	"github.com/agentattest/attest-core/internal/log"
	"github.com/agentattest/attest-core/internal/metrics"
	"github.com/agentattest/attest-core/internal/rpc"
	"github.com/agentattest/attest-core/internal/server"
	"github.com/agentattest/attest-core/pkg/anchor"
	"github.com/agentattest/attest-core/pkg/archive"
	"github.com/agentattest/attest-core/pkg/authority"
	"github.com/agentattest/attest-core/pkg/issuance"
	"github.com/agentattest/attest-core/pkg/ledger"
	"github.com/agentattest/attest-core/pkg/registry"
	"github.com/agentattest/attest-core/pkg/revocation"
	"github.com/agentattest/attest-core/pkg/scoring"
	"github.com/agentattest/attest-core/pkg/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the credential API.

When --rpc-address is set, a gRPC health endpoint is started as well. Its
agentattest.v1.Anchor status reports whether the ledger is reachable.`,
	Example: `  # Serve against the public testnet with an in-memory store
  agentattest serve

  # Serve against a local devnet with a durable store
  agentattest serve --ledger-url http://localhost:8090 --store sqlite --store-path attest.db`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("address", "", "HTTP listen address (default :8080)")
	f.String("rpc-address", "", "gRPC health listen address (disabled when empty)")
	f.String("ledger-url", "", "Ledger node API base URL")
	f.Bool("insecure-tls", false, "Skip TLS verification for the ledger node")
	f.String("store", "", "Store driver: memory, sqlite, redis or mongodb (default memory)")
	f.String("store-path", "", "SQLite database path")
	f.Bool("allow-ephemeral", false, "Issue with a generated key when the authority seed is unusable")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := log.New(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rpcServer *rpc.Server
	if cfg.Server.RPCAddress != "" {
		lis, err := net.Listen("tcp", cfg.Server.RPCAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Server.RPCAddress, err)
		}
		rpcServer = rpc.NewServer(logger)
		go func() {
			if err := rpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server stopped", log.WithError(err))
			}
		}()
		defer rpcServer.Stop()
	}

	svc, closeStore, err := buildService(ctx, cfg, logger, rpcServer)
	if err != nil {
		return err
	}
	defer closeStore()

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.New(svc, server.Options{Logger: logger}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("address", cfg.Server.Address),
			log.WithURL(cfg.Ledger.BaseURL), zap.String("store", cfg.Store.Driver))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildService wires the issuance service from configuration.
func buildService(ctx context.Context, cfg *config.Config, logger *zap.Logger, rpcServer *rpc.Server) (*issuance.Service, func(), error) {
	ledgerClient, err := ledger.NewClient(ledger.ClientConfig{
		BaseURL:     cfg.Ledger.BaseURL,
		Timeout:     cfg.Ledger.Timeout,
		InsecureTLS: cfg.Ledger.InsecureTLS,
		Logger:      logger.Named("ledger"),
	})
	if err != nil {
		return nil, nil, err
	}

	keys := authority.NewManager(cfg.Authority.Seed,
		authority.WithName(cfg.Authority.Name),
		authority.WithLogger(logger.Named("authority")),
	)
	if kp := keys.Keypair(); !kp.Ephemeral {
		logger.Info("authority key loaded", zap.String("issuer_key", kp.PublicKey), zap.String("did", keys.DID()))
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, err
	}

	anchorOpts := []anchor.Option{
		anchor.WithTimeout(cfg.Anchor.Timeout),
		anchor.WithPollInterval(cfg.Anchor.PollInterval),
		anchor.WithLogger(logger.Named("anchor")),
		anchor.WithMetrics(m),
	}
	if rpcServer != nil {
		anchorOpts = append(anchorOpts, anchor.WithReachabilityListener(rpcServer.SetLedgerReachable))
	}

	st, err := store.Open(ctx, store.Options{
		Driver:        cfg.Store.Driver,
		Path:          cfg.Store.Path,
		RedisAddrs:    cfg.Store.RedisAddrs,
		RedisPassword: cfg.Store.RedisPassword,
		MongoURI:      cfg.Store.MongoURI,
		MongoDatabase: cfg.Store.MongoDatabase,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", log.WithError(err))
		}
	}

	var arch archive.Archive = archive.Nop{}
	if cfg.Archive.S3Bucket != "" {
		s3Archive, err := archive.NewS3(ctx, archive.S3Config{
			Bucket:   cfg.Archive.S3Bucket,
			Region:   cfg.Archive.S3Region,
			Endpoint: cfg.Archive.S3Endpoint,
		})
		if err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("failed to create archive: %w", err)
		}
		arch = s3Archive
	}

	engineCfg := scoring.DefaultEngineConfig()
	engineCfg.MaxTransactionValue = cfg.Policy.MaxTransactionValue

	svc, err := issuance.NewService(issuance.Config{
		Authority:      keys,
		Anchor:         anchor.NewClient(ledgerClient, anchorOpts...),
		Registry:       registry.New(st),
		Revocations:    revocation.NewList(st),
		Scoring:        scoring.NewEngine(engineCfg),
		Archive:        arch,
		Logger:         logger.Named("issuance"),
		AllowEphemeral: cfg.Authority.AllowEphemeral,
		Symbol:         cfg.Ledger.Symbol,
		NetworkName:    cfg.Ledger.NetworkName,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return svc, closeStore, nil
}
