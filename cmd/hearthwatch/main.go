// Command hearthwatch runs the presence tracking pipeline: sniffer
// backends feed the device registry, the presence detector derives
// arrive/depart transitions, and matching alert rules fire webhooks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hearthwatch/internal/alert"
	"hearthwatch/internal/config"
	"hearthwatch/internal/event"
	"hearthwatch/internal/ingest"
	"hearthwatch/internal/metrics"
	"hearthwatch/internal/oui"
	"hearthwatch/internal/persona"
	"hearthwatch/internal/registry"
	"hearthwatch/internal/sniffer"
	"hearthwatch/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: search ./hearthwatch.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "hearthwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	v, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	st, err := store.New(v.GetString("database.path"))
	if err != nil {
		return err
	}
	defer st.Close()

	reg := registry.New(st, oui.NewTable(), logger.Named("registry"))
	personas := persona.New(st, logger.Named("persona"))
	rules := alert.NewStore(st, logger.Named("alert"))
	for _, migrate := range []func(context.Context) error{reg.Migrate, personas.Migrate, rules.Migrate} {
		if err := migrate(ctx); err != nil {
			return err
		}
	}

	m, promReg := metrics.New()
	bus := event.NewBus(logger.Named("bus"))

	detector := registry.NewPresenceDetector(reg,
		v.GetDuration("presence.grace_period"), logger.Named("presence"))
	ingestor := ingest.New(reg, detector, bus, m, logger.Named("ingest"))

	engine := alert.NewEngine(rules, reg, personas, logger.Named("alert"))
	dispatcher := alert.NewDispatcher(
		v.GetDuration("alerts.timeout"),
		v.GetFloat64("alerts.rate_limit"),
		v.GetInt("alerts.rate_burst"),
		logger.Named("webhook"),
	)
	unsubs := ingest.SubscribeAlerts(bus, engine, dispatcher, m, logger.Named("alert"))
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	modes := config.SnifferModes(v)
	if len(modes) == 0 {
		return fmt.Errorf("no sniffer modes configured (set sniffer.modes)")
	}
	sniffers := make([]sniffer.Sniffer, 0, len(modes))
	for _, mode := range modes {
		s, err := sniffer.New(mode, v, logger)
		if err != nil {
			return err
		}
		s.OnEvent(ingestor.HandleEvent)
		sniffers = append(sniffers, s)
	}

	var metricsSrv *metrics.Server
	if addr := v.GetString("metrics.listen"); addr != "" {
		metricsSrv = metrics.NewServer(addr, promReg, logger.Named("metrics"))
		metricsSrv.Start()
	}

	for i, s := range sniffers {
		if err := s.Start(ctx); err != nil {
			// Roll back the ones already running.
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			for _, started := range sniffers[:i] {
				started.Stop(stopCtx) //nolint:errcheck
			}
			cancel()
			return fmt.Errorf("start %s sniffer: %w", modes[i], err)
		}
	}

	logger.Info("hearthwatch running",
		zap.Strings("sniffers", modes),
		zap.Duration("grace_period", v.GetDuration("presence.grace_period")),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for i, s := range sniffers {
		if err := s.Stop(stopCtx); err != nil {
			logger.Warn("sniffer stop failed",
				zap.String("mode", modes[i]),
				zap.Error(err),
			)
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Stop(stopCtx); err != nil {
			logger.Warn("metrics stop failed", zap.Error(err))
		}
	}
	return nil
}
