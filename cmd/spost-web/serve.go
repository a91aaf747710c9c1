package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SPost-Planner/internal/core/network"
	"SPost-Planner/internal/plannerapi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the planner API, the event stream and the websocket bus gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				opts.cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides http.addr)")
	return cmd
}

func serve(ctx context.Context, opts *options) error {
	a, err := wireApp(ctx, opts.cfg, opts.log)
	if err != nil {
		return err
	}
	defer a.Close()

	mux := http.NewServeMux()
	plannerapi.NewServer(a.planner).Register(mux)
	mux.Handle("/ws/bus", network.NewGateway(a.bus, opts.cfg.Bus.Topic, opts.cfg.HTTP.AllowedOrigins...))
	if dir := opts.cfg.HTTP.StaticDir; dir != "" {
		mux.Handle("/", http.FileServer(http.Dir(dir)))
	}

	srv := &http.Server{Addr: opts.cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		opts.log.Info("spost-web listening",
			zap.String("addr", opts.cfg.HTTP.Addr),
			zap.String("transport", opts.cfg.Bus.Transport),
			zap.Bool("relay", opts.cfg.Relay.Enabled))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
