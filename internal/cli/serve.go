package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sprintboard/internal/server"
	"sprintboard/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()
		logger := sess.logger
		logger.Info("sprintboard", slog.String("version", appVersion), slog.String("driver", sess.cfg.Driver))

		var metrics http.Handler
		if sess.cfg.Metrics {
			metrics, err = telemetry.InitMeterProvider(cmd.Context(), "sprintboard")
			if err != nil {
				return err
			}
			if err := telemetry.InitMetrics(cmd.Context()); err != nil {
				return err
			}
		}

		srv := server.New(sess.manager, logger, metrics)
		httpServer := &http.Server{
			Addr:              sess.cfg.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		return runServer(httpServer, logger, quit)
	},
}

// runServer serves until a signal arrives on quit, then shuts down gracefully.
// A listener failure is returned instead of waiting for a signal.
func runServer(httpServer *http.Server, logger *slog.Logger, quit <-chan os.Signal) error {
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
			return fmt.Errorf("serve %s: %w", httpServer.Addr, err)
		}
		return nil
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	bindFlag("addr", serveCmd.Flags().Lookup("addr"))
	bindFlag("metrics", serveCmd.Flags().Lookup("metrics"))

	rootCmd.AddCommand(serveCmd)
}
