// callkitd демон координации звонков: SIP телефония, HTTP API команд
// приложения и поток событий по websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/arzzra/callkit/pkg/audio"
	"github.com/arzzra/callkit/pkg/audio/simaudio"
	"github.com/arzzra/callkit/pkg/callkit"
	"github.com/arzzra/callkit/pkg/config"
	"github.com/arzzra/callkit/pkg/eventbus"
	"github.com/arzzra/callkit/pkg/httpapi"
	"github.com/arzzra/callkit/pkg/siptelephony"
)

func main() {
	debug := flag.Bool("debug", false, "Enable SIP message tracing")
	flag.Parse()

	if *debug {
		sip.SIPDebug = true
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("callkitd failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// События
	busCfg := eventbus.DefaultConfig()
	busCfg.QueueSize = cfg.EventQueueSize
	busCfg.Logger = logger
	bus, err := eventbus.New(busCfg)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}

	allowOrigin := cfg.CheckOrigin()
	hub := eventbus.NewHub(logger, func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowOrigin(origin)
	})
	bus.AddSink(hub)

	if cfg.Redis.Enabled {
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.Channel = cfg.Redis.Channel
		redisCfg.Logger = logger
		redisSink, err := eventbus.NewRedisSink(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer redisSink.Close()
		bus.AddSink(redisSink)
	}

	go hub.Run()
	defer hub.Stop()
	bus.Start(ctx)
	defer bus.Close()

	// Телефония
	sipCfg := siptelephony.DefaultConfig()
	sipCfg.ListenAddr = cfg.SIP.ListenAddr
	sipCfg.Transport = cfg.SIP.Transport
	sipCfg.UserAgent = cfg.SIP.UserAgent
	sipCfg.Domain = cfg.SIP.Domain
	sipCfg.Logger = logger
	telephony, err := siptelephony.New(sipCfg)
	if err != nil {
		return err
	}
	defer telephony.Close()

	// Координатор
	platform := simaudio.New()
	coordCfg := callkit.DefaultConfig()
	coordCfg.APILevel = cfg.APILevel
	coordCfg.LaunchAction = cfg.LaunchAction
	coordCfg.KeepAlive = audio.KeepAliveConfig{
		RingbackOn:  cfg.RingbackOn,
		RingbackOff: cfg.RingbackOff,
		WakeLockTag: cfg.WakeLockTag,
	}
	coordCfg.Logger = logger
	coordCfg.Metrics = callkit.NewMetrics(reg, "callkit")

	coord, err := callkit.New(coordCfg, callkit.Dependencies{
		Notifications: newLogNotifier(logger),
		Events:        bus,
		Telephony:     telephony,
		Audio:         platform,
		Power:         platform,
		Tones:         platform.NewTonePlayer,
	})
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	telephony.SetSink(coord)

	if err := coord.Init(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	if cfg.SIP.Enabled {
		go func() {
			if err := telephony.ListenAndServe(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	// HTTP API
	h := httpapi.NewHandler(coord, httpapi.Config{
		Logger:   logger,
		Gatherer: reg,
		Events:   hub,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("component failed, shutting down", slog.Any("error", runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shutdown", slog.Any("error", err))
	}
	if err := coord.Close(shutdownCtx); err != nil {
		logger.Error("coordinator close failed", slog.Any("error", err))
	}

	logger.Info("callkitd exited")
	return runErr
}
