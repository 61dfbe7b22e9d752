package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"riskengine/internal/adapters/boltstore"
	"riskengine/internal/cfg"
	"riskengine/internal/control"
	"riskengine/internal/engine"
	"riskengine/internal/gate"
	"riskengine/internal/metrics"
	"riskengine/internal/risktypes"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := risktypes.RealClock{}
	m := metrics.New()

	var store *boltstore.Store
	if c.DataPath != "" {
		store, err = boltstore.New(c.DataPath, clock)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		} else {
			defer store.Close()
		}
	}

	var tradesSince gate.TradesSinceFunc
	if store != nil {
		tradesSince = engine.NewCachedTradesSince(store, 5*time.Second, clock)
	}

	e := engine.New(clock, c, m, tradesSince)

	if store != nil {
		records, err := store.GetOpenTrades(c.Tenant)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load open trades, starting with an empty book")
		} else if len(records) > 0 {
			e.ReinitializeFromRecords(records)
			log.Info().Int("count", len(records)).Msg("recovered open positions from storage")
		}
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", c.MetricsPort),
			Handler: mux,
		}
		go func() {
			<-ctx.Done()
			server.Shutdown(context.Background())
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	surface := control.New(e, c.ControlPort)
	if err := surface.Start(); err != nil {
		log.Fatal().Err(err).Msg("control surface failed to start")
	}
	defer surface.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context cancelled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
