package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const componentShutdownTimeout = 10 * time.Second

// Shutdown stops components in reverse dependency order. The configured
// behavior decides what happens to in-flight trades:
//
//	"wait"   drain in-flight trades up to the drain timeout
//	"cancel" cancel open orders on every venue, then drain
//	"force"  stop immediately, leaving ledger entries for recovery
func (a *App) Shutdown() error {
	a.logger.Info("app-shutting-down", zap.String("behavior", a.cfg.ShutdownBehavior))
	a.health.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), componentShutdownTimeout)
	defer cancel()

	switch a.cfg.ShutdownBehavior {
	case "cancel":
		err := a.gateway.CancelAllOpenOrders(ctx)
		if err != nil {
			a.logger.Warn("cancel-open-orders-failed", zap.Error(err))
		}
		a.stopEngine()
	case "force":
		// Skip the drain; interrupted trades surface on the next Recover.
		a.engine.Halt()
	default:
		a.stopEngine()
	}

	err := a.server.Shutdown(ctx)
	if err != nil {
		a.logger.Warn("http-shutdown-failed", zap.Error(err))
	}

	a.cancel()

	err = a.books.Close()
	if err != nil {
		a.logger.Warn("books-close-failed", zap.Error(err))
	}

	err = a.gateway.Close()
	if err != nil {
		a.logger.Warn("gateway-close-failed", zap.Error(err))
	}

	if a.journal != nil {
		err = a.journal.Close()
		if err != nil {
			a.logger.Warn("journal-close-failed", zap.Error(err))
		}
	}

	err = a.ledger.Close()
	if err != nil {
		a.logger.Warn("ledger-close-failed", zap.Error(err))
	}

	a.wg.Wait()
	a.logger.Info("app-shutdown-complete")

	return nil
}

func (a *App) stopEngine() {
	err := a.engine.Close()
	if err != nil {
		a.logger.Warn("engine-close-failed", zap.Error(err))
	}
}

// Stop requests a shutdown from outside the signal path; used by tests.
func (a *App) Stop() {
	a.cancel()
}
