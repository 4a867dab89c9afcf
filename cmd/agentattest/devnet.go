package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentattest/attest-core/internal/config"
	"github.com/agentattest/attest-core/internal/log"
	"github.com/agentattest/attest-core/pkg/ledger/devnet"
)

var devnetPort int

var devnetCmd = &cobra.Command{
	Use:   "devnet",
	Short: "Run a simulated ledger node",
	Long: `Run an in-memory ledger node that serves the submission and lookup API.
Transactions are checked and included immediately. State is lost on exit.`,
	Example: `  agentattest devnet --port 8090
  agentattest serve --ledger-url http://localhost:8090`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := log.New(log.Options{
			Level:  v.GetString(config.KeyLogLevel),
			Format: v.GetString(config.KeyLogFormat),
		})
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", devnetPort),
			Handler:           devnet.New(devnet.WithLogger(logger)).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logger.Info("devnet listening", zap.Int("port", devnetPort))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	devnetCmd.Flags().IntVar(&devnetPort, "port", 8090, "Port to listen on")
	rootCmd.AddCommand(devnetCmd)
}
