package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/models"
)

type AlertStorage interface {
	ActiveAlertsByProduct(ctx context.Context, productID int64) ([]models.PriceAlert, error)
	MarkTriggered(ctx context.Context, alertID int64, at time.Time) (bool, error)
}

// Evaluator fires active alerts whose target the product's price has
// reached. An alert fires at most once: the storage flips triggered in
// a single conditional update, and whichever caller wins that update
// owns the send. Delivery happens after the flip and a failed send is
// only logged, never rolled back.
type Evaluator struct {
	log        *slog.Logger
	alerts     AlertStorage
	dispatcher *Dispatcher
}

func NewEvaluator(log *slog.Logger, alerts AlertStorage, dispatcher *Dispatcher) *Evaluator {
	return &Evaluator{
		log:        log,
		alerts:     alerts,
		dispatcher: dispatcher,
	}
}

// Evaluate checks every active alert on the product and returns how
// many fired. A product with no known price, or one that is out of
// stock, fires nothing regardless of targets.
func (e *Evaluator) Evaluate(ctx context.Context, product models.Product) (int, error) {
	const op = "alerts.Evaluator.Evaluate"

	log := e.log.With(slog.String("op", op), slog.Int64("product_id", product.ID))

	if !product.CurrentPrice.Valid || !product.IsAvailable {
		return 0, nil
	}

	active, err := e.alerts.ActiveAlertsByProduct(ctx, product.ID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	fired := 0

	for _, alert := range active {
		if product.CurrentPrice.Decimal.GreaterThan(alert.TargetPrice) {
			continue
		}

		won, err := e.alerts.MarkTriggered(ctx, alert.ID, time.Now())
		if err != nil {
			log.Error("failed to mark alert triggered", slog.Int64("alert_id", alert.ID), sl.Err(err))
			continue
		}
		if !won {
			continue
		}

		fired++

		log.Info("alert fired",
			slog.Int64("alert_id", alert.ID),
			slog.String("target", alert.TargetPrice.String()),
			slog.String("price", product.CurrentPrice.Decimal.String()),
		)

		if err := e.dispatcher.DispatchAlert(ctx, alert, product); err != nil {
			log.Error("alert notification failed", slog.Int64("alert_id", alert.ID), sl.Err(err))
		}
	}

	return fired, nil
}
