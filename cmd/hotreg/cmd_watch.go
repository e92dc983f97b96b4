package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hotreg/pkg/class"
	"github.com/odvcencio/hotreg/pkg/report"
	"github.com/odvcencio/hotreg/pkg/watch"
)

var errLiveReloadDisabled = errors.New("live reload is disabled (live_reload = false)")

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		metricsAddr string
		showMethods bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the registry in sync with the source tree as files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd, opts)
			if err != nil {
				return err
			}
			defer p.Close()
			if !p.cfg.LiveReload {
				return errLiveReloadDisabled
			}
			if metricsAddr == "" {
				metricsAddr = p.cfg.Metrics.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := p.registry.Init(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var outMu sync.Mutex
			p.source.On(func(ev class.ClassEvent) {
				outMu.Lock()
				fmt.Fprintln(out, report.FormatEvent(ev))
				outMu.Unlock()
			})
			if showMethods {
				p.registry.Methods().On(func(ev class.MethodEvent) {
					outMu.Lock()
					fmt.Fprintln(out, "    "+report.FormatMethodEvent(ev))
					outMu.Unlock()
				})
			}

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(p.metrics, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						p.logger.Error("metrics server stopped", "addr", metricsAddr, "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				p.logger.Info("serving metrics", "addr", metricsAddr)
			}

			cfg := watch.DefaultConfig(p.cfg.Root)
			cfg.DebounceDur = p.cfg.Debounce.Duration
			cfg.Filter = p.matcher.Eligible
			cfg.Logger = p.logger.With("component", "watch")
			w, err := watch.New(cfg)
			if err != nil {
				return err
			}
			events, err := w.Start()
			if err != nil {
				w.Stop()
				return err
			}
			defer w.Stop()

			fmt.Fprintf(out, "watching %s (%d classes)\n", p.cfg.Root, len(p.source.Classes()))
			if err := p.registry.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
	cmd.Flags().BoolVar(&showMethods, "methods", false, "also print method-level changes")
	return cmd
}
