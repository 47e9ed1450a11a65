// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tombee/sidekick/internal/commands/shared"
	"github.com/tombee/sidekick/internal/lifecycle"
	sidekicklog "github.com/tombee/sidekick/internal/log"
)

const defaultWatchInterval = 10 * time.Second

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Supervise the service until interrupted",
		Long: `Check the service every interval until interrupted.

Each check runs status. With management.auto_start set, a service that
stops answering is started again. With --metrics-addr, Prometheus metrics
are served at /metrics on that address.`,
		Example: `  # Keep the service up, checking every 30s
  SIDEKICK_AUTO_START=1 sidekick watch --interval 30s

  # Expose metrics for scraping
  sidekick watch --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			return runWatch(cmd.Context(), e, watchOptions{
				interval:    interval,
				metricsAddr: metricsAddr,
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", defaultWatchInterval, "Time between checks")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

type watchOptions struct {
	interval    time.Duration
	metricsAddr string

	// onListen receives the bound metrics address.
	onListen func(addr string)
}

func runWatch(ctx context.Context, e *env, opts watchOptions) error {
	if opts.interval <= 0 {
		return flagError("interval", fmt.Sprintf("must be positive, got %v", opts.interval),
			"Use a duration such as 10s or 1m")
	}

	if opts.metricsAddr != "" {
		srv, err := startMetricsServer(opts.metricsAddr, e.logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if opts.onListen != nil {
			opts.onListen(srv.Addr)
		}
		e.println(shared.Muted.Render("Serving metrics at http://" + srv.Addr + "/metrics"))
	}

	e.logger.Info("watch_started",
		sidekicklog.EndpointKey, e.endpoint(),
		"interval", opts.interval.String(),
		"auto_start", e.cfg.Management.AutoStart)

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	var last *lifecycle.Status
	for {
		last = watchOnce(ctx, e, last)

		select {
		case <-ctx.Done():
			e.logger.Info("watch_stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// watchOnce runs one supervision check and reports changes from prev.
func watchOnce(ctx context.Context, e *env, prev *lifecycle.Status) *lifecycle.Status {
	status, err := e.manager.Status(ctx, e.endpoint(), e.cfg.Service.RequestTimeout)
	if err != nil {
		e.logger.Error("status check failed", sidekicklog.Error(err))
		return prev
	}

	if prev == nil || prev.Reachable != status.Reachable || prev.Process != status.Process {
		e.println(fmt.Sprintf("%s %s  process %s",
			shared.Muted.Render(time.Now().Format(time.RFC3339)),
			shared.RenderReachable(status.Reachable),
			shared.RenderState(status.Process)))
	}

	if status.Reachable || !e.cfg.Management.AutoStart || ctx.Err() != nil {
		return status
	}

	e.println(shared.RenderWarn("Service is not reachable, starting it"))
	if err := e.manager.EnsureAvailable(ctx, e.endpoint(), e.cfg.Service.RequestTimeout); err != nil {
		e.logger.Error("automatic start failed", sidekicklog.Error(err))
		e.println(shared.RenderError(err.Error()))
		return status
	}

	after, err := e.manager.Status(ctx, e.endpoint(), e.cfg.Service.RequestTimeout)
	if err != nil {
		e.logger.Error("status check failed", sidekicklog.Error(err))
		return status
	}
	// Start is a no-op for a live recorded process, even one that never answers.
	if !after.Reachable {
		e.logger.Warn("service process running but not answering",
			sidekicklog.EndpointKey, e.endpoint(),
			"process", string(after.Process))
		e.println(shared.RenderWarn("Service process is already running but not answering"))
		return after
	}
	e.println(shared.RenderOK("Service started"))
	return after
}

// metricsServer serves /metrics and /healthz.
type metricsServer struct {
	Addr   string
	server *http.Server
	logger *slog.Logger
}

func startMetricsServer(addr string, logger *slog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s := &metricsServer{
		Addr:   ln.Addr().String(),
		logger: logger,
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
	}

	logger.Info("metrics_server_starting", "addr", s.Addr)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_error", sidekicklog.Error(err))
		}
	}()

	return s, nil
}

// Shutdown gracefully stops the server.
func (s *metricsServer) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}
