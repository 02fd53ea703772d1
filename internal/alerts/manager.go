package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/models"
	"pricetracker/internal/storage"
)

type ManagerStorage interface {
	SaveAlert(ctx context.Context, a models.PriceAlert) (models.PriceAlert, error)
	UpdateAlertTarget(ctx context.Context, alertID int64, target decimal.Decimal) error
	AlertByProductEmail(ctx context.Context, productID int64, email string) (models.PriceAlert, error)
	DeleteAlertByToken(ctx context.Context, token string) (models.PriceAlert, error)
}

type ProductGetter interface {
	ProductByID(ctx context.Context, productID int64) (models.Product, error)
}

// Manager owns the alert lifecycle around the evaluator: creating
// alerts, retargeting them and removing them through unsubscribe
// tokens.
type Manager struct {
	log        *slog.Logger
	alerts     ManagerStorage
	products   ProductGetter
	dispatcher *Dispatcher
}

func NewManager(log *slog.Logger, alerts ManagerStorage, products ProductGetter, dispatcher *Dispatcher) *Manager {
	return &Manager{
		log:        log,
		alerts:     alerts,
		products:   products,
		dispatcher: dispatcher,
	}
}

// UpsertAlert sets a price alert for the given address. An active
// alert for the same product and email is retargeted instead of
// duplicated; a fired one stays in history and a fresh alert is
// created. The confirmation mail is best effort.
func (m *Manager) UpsertAlert(ctx context.Context, productID int64, email string, target decimal.Decimal, userID *int64) (models.PriceAlert, bool, error) {
	const op = "alerts.Manager.UpsertAlert"

	product, err := m.products.ProductByID(ctx, productID)
	if err != nil {
		return models.PriceAlert{}, false, fmt.Errorf("%s: %w", op, err)
	}

	alert, created, err := m.upsert(ctx, productID, email, target, userID)
	if err != nil {
		return models.PriceAlert{}, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := m.dispatcher.DispatchConfirmation(ctx, alert, product); err != nil {
		m.log.Error("confirmation mail failed", slog.Int64("alert_id", alert.ID), sl.Err(err))
	}

	return alert, created, nil
}

func (m *Manager) upsert(ctx context.Context, productID int64, email string, target decimal.Decimal, userID *int64) (models.PriceAlert, bool, error) {
	existing, err := m.alerts.AlertByProductEmail(ctx, productID, email)
	if err == nil {
		if err := m.alerts.UpdateAlertTarget(ctx, existing.ID, target); err != nil {
			return models.PriceAlert{}, false, err
		}

		existing.TargetPrice = target

		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrAlertNotFound) {
		return models.PriceAlert{}, false, err
	}

	alert, err := m.alerts.SaveAlert(ctx, models.PriceAlert{
		ProductID:   productID,
		UserID:      userID,
		Email:       email,
		TargetPrice: target,
		Token:       uuid.NewString(),
	})
	if err != nil {
		return models.PriceAlert{}, false, err
	}

	return alert, true, nil
}

// Unsubscribe deletes the alert behind an emailed token.
func (m *Manager) Unsubscribe(ctx context.Context, token string) (models.PriceAlert, error) {
	const op = "alerts.Manager.Unsubscribe"

	alert, err := m.alerts.DeleteAlertByToken(ctx, token)
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, err)
	}

	return alert, nil
}
