package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricetracker/internal/models"
	"pricetracker/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const alertColumns = `id, product_id, user_id, email, target_price, triggered, token, created_at, triggered_at`

func (r *PostgresRepo) SaveAlert(ctx context.Context, a models.PriceAlert) (models.PriceAlert, error) {
	const op = "storage.postgres.SaveAlert"

	const query = `
		INSERT INTO price_alerts (product_id, user_id, email, target_price, token, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at
	`

	saved := a
	err := r.pool.QueryRow(ctx, query,
		a.ProductID, a.UserID, a.Email, a.TargetPrice, a.Token,
	).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == storage.UniqueViolation {
			return models.PriceAlert{}, fmt.Errorf("%s: token collision: %w", op, err)
		}

		return models.PriceAlert{}, fmt.Errorf("%s: failed to save alert: %w", op, err)
	}

	return saved, nil
}

// UpdateAlertTarget re-arms an untriggered alert at a new target.
func (r *PostgresRepo) UpdateAlertTarget(ctx context.Context, alertID int64, target decimal.Decimal) error {
	const op = "storage.postgres.UpdateAlertTarget"

	cmd, err := r.pool.Exec(ctx,
		`UPDATE price_alerts SET target_price = $2 WHERE id = $1 AND triggered = false`,
		alertID, target,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrAlertNotFound
	}

	return nil
}

// AlertByProductEmail finds the standing (untriggered) alert one
// address holds on a product.
func (r *PostgresRepo) AlertByProductEmail(ctx context.Context, productID int64, email string) (models.PriceAlert, error) {
	const op = "storage.postgres.AlertByProductEmail"

	query := `
		SELECT ` + alertColumns + `
		FROM price_alerts
		WHERE product_id = $1 AND email = $2 AND triggered = false
		ORDER BY id
		LIMIT 1
	`

	return r.oneAlert(ctx, op, query, productID, email)
}

func (r *PostgresRepo) AlertByToken(ctx context.Context, token string) (models.PriceAlert, error) {
	const op = "storage.postgres.AlertByToken"

	query := `
		SELECT ` + alertColumns + `
		FROM price_alerts
		WHERE token = $1
	`

	return r.oneAlert(ctx, op, query, token)
}

// AlertsByProduct returns every alert on a product, fired included.
func (r *PostgresRepo) AlertsByProduct(ctx context.Context, productID int64) ([]models.PriceAlert, error) {
	const op = "storage.postgres.AlertsByProduct"

	query := `
		SELECT ` + alertColumns + `
		FROM price_alerts
		WHERE product_id = $1
		ORDER BY id
	`

	return r.alertList(ctx, op, query, productID)
}

// ActiveAlertsByProduct returns the evaluation candidates: alerts
// still in the Active state.
func (r *PostgresRepo) ActiveAlertsByProduct(ctx context.Context, productID int64) ([]models.PriceAlert, error) {
	const op = "storage.postgres.ActiveAlertsByProduct"

	query := `
		SELECT ` + alertColumns + `
		FROM price_alerts
		WHERE product_id = $1 AND triggered = false
		ORDER BY id
	`

	return r.alertList(ctx, op, query, productID)
}

// MarkTriggered attempts the Active→Fired transition. The conditional
// update is the at-most-once guard: under concurrent evaluations only
// one caller sees won=true, and only that caller may dispatch.
func (r *PostgresRepo) MarkTriggered(ctx context.Context, alertID int64, at time.Time) (bool, error) {
	const op = "storage.postgres.MarkTriggered"

	cmd, err := r.pool.Exec(ctx,
		`UPDATE price_alerts SET triggered = true, triggered_at = $2 WHERE id = $1 AND triggered = false`,
		alertID, at,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return cmd.RowsAffected() == 1, nil
}

// DeleteAlertByToken removes an alert through its unsubscribe token
// and returns what was removed.
func (r *PostgresRepo) DeleteAlertByToken(ctx context.Context, token string) (models.PriceAlert, error) {
	const op = "storage.postgres.DeleteAlertByToken"

	query := `
		DELETE FROM price_alerts
		WHERE token = $1
		RETURNING ` + alertColumns + `
	`

	return r.oneAlert(ctx, op, query, token)
}

func (r *PostgresRepo) oneAlert(ctx context.Context, op, query string, args ...any) (models.PriceAlert, error) {
	var a models.PriceAlert

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.ProductID,
		&a.UserID,
		&a.Email,
		&a.TargetPrice,
		&a.Triggered,
		&a.Token,
		&a.CreatedAt,
		&a.TriggeredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PriceAlert{}, storage.ErrAlertNotFound
		}

		return models.PriceAlert{}, fmt.Errorf("%s: failed to scan alert: %w", op, err)
	}

	return a, nil
}

func (r *PostgresRepo) alertList(ctx context.Context, op, query string, args ...any) ([]models.PriceAlert, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	alerts, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.PriceAlert])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	return alerts, nil
}
