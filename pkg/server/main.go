package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/config"
	"github.com/downfa11-org/go-recordlog/pkg/metrics"
	"github.com/downfa11-org/go-recordlog/util"
)

// RunServer listens on the configured broker port and serves handler until
// ctx is cancelled.
func RunServer(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.BrokerPort))
	if err != nil {
		return err
	}
	return Serve(ctx, ln, cfg, handler)
}

// Serve serves handler on ln, starting the Prometheus exporter when enabled.
// On cancellation in-flight requests get up to the shutdown timeout to finish.
func Serve(ctx context.Context, ln net.Listener, cfg *config.Config, handler http.Handler) error {
	var exporter *http.Server
	if cfg.EnableExporter {
		exporter = metrics.StartMetricsServer(cfg.ExporterPort)
	} else {
		util.Info("Exporter disabled")
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Info("Broker listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if exporter != nil {
			_ = exporter.Close()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	util.Info("Shutting down broker server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("broker server shutdown: %w", err))
	}
	if exporter != nil {
		if err := exporter.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("exporter shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
