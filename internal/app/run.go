package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"crossarb/pkg/types"
)

// Run initializes the venues, recovers persisted trade state, starts every
// component and blocks until a shutdown signal arrives.
func (a *App) Run() error {
	a.logger.Info("app-starting",
		zap.Int("venues", len(a.cfg.Venues)),
		zap.Strings("symbols", a.cfg.TradingSymbols))

	if a.cfg.Warnings != nil {
		a.cfg.Warnings.FlushTo(a.logger)
	}

	err := a.gateway.Init(a.ctx)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}
	for name, initErr := range a.gateway.InitErrors() {
		a.health.SetComponent("venue:"+name, "down")
		a.logger.Warn("venue-degraded", zap.String("venue", name), zap.Error(initErr))
	}
	for _, v := range a.gateway.Venues() {
		a.health.SetComponent("venue:"+string(v), "up")
	}

	err = a.recoverState()
	if err != nil {
		return fmt.Errorf("recover trade state: %w", err)
	}

	a.gateway.StartFeeRefresh()
	a.books.Start(a.ctx)
	a.health.SetComponent("gateway", "up")
	a.health.SetComponent("books", "up")

	if a.guard != nil {
		a.guard.Start(a.ctx)
		a.health.SetComponent("guard", "up")
	}

	err = a.engine.Start()
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	a.health.SetComponent("strategy", "up")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchVenueEvents()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		err := a.server.Start()
		if err != nil {
			a.logger.Error("http-server-failed", zap.Error(err))
		}
	}()

	a.health.SetReady(true)
	a.logger.Info("app-started", zap.String("http-port", a.cfg.HTTPPort))

	a.waitForShutdown()

	return a.Shutdown()
}

// recoverState reloads the ledger. Resumable entries are in-flight trades
// interrupted by a restart; orphans are old entries that need an operator
// acknowledgement before they stop being reported.
func (a *App) recoverState() error {
	resumable, orphaned, err := a.ledger.Recover()
	if err != nil {
		return err
	}

	for _, entry := range resumable {
		a.logger.Warn("interrupted-trade-found",
			zap.String("trade-key", entry.TradeKey),
			zap.String("status", string(entry.Status)),
			zap.Time("started-at", entry.StartedAtTime()))
	}

	for _, entry := range orphaned {
		a.logger.Warn("orphaned-trade-needs-acknowledgement",
			zap.String("trade-key", entry.TradeKey),
			zap.String("status", string(entry.Status)),
			zap.Time("started-at", entry.StartedAtTime()))
	}

	return nil
}

// watchVenueEvents mirrors gateway lifecycle events onto the component
// board so /health shows per-venue stream state.
func (a *App) watchVenueEvents() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-a.gateway.Events():
			if !ok {
				return
			}

			switch event.Type {
			case types.EventVenueConnected:
				a.health.SetComponent("venue:"+string(event.Venue), "up")
			case types.EventVenueDisconnected:
				a.health.SetComponent("venue:"+string(event.Venue), "degraded")
			case types.EventVenueError:
				a.logger.Warn("venue-event-error",
					zap.String("venue", string(event.Venue)),
					zap.Error(event.Err))
			}
		}
	}
}

func (a *App) waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
	}
}
