package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/dlink"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/hnap"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/tools/mcpserver"
)

// runServe exposes the device as MCP tools on stdin/stdout. Logs go to
// stderr so they never corrupt the protocol stream.
func runServe(opts *options, metricsAddr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dev, err := openDevice(cfg, log, hnap.NewMetrics(reg))
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	plug, err := dev.plug(ctx)
	if err != nil {
		return err
	}

	var sensor *dlink.MotionSensor
	if dev.motion != "" {
		sensor = dev.sensor()
	}

	if metricsAddr != "" {
		srv := newMetricsServer(metricsAddr, reg)

		go func() {
			log.InfoContext(ctx, "serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.ErrorContext(ctx, "metrics server stopped", "error", err)
			}
		}()

		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tb := dlink.Tools(plug, sensor)

	server := mcpserver.New("dlink", version, mcpserver.WithLogger(log))
	server.Register(tb)

	log.InfoContext(ctx, "serving MCP over stdio", "host", cfg.Host, "tools", tb.Names())

	err = server.Serve(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
