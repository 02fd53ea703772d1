package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricetracker/internal/config"
	"pricetracker/internal/models"
	"pricetracker/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema (see db/schema.sql): products, price_history and
// price_alerts, with history and alerts cascading on product delete.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%s: ping failed: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

const productColumns = `id, url, name, current_price, list_price, image_url, is_available, created_at, last_checked`

// SaveProduct inserts a newly tracked product and, when the first
// observation carried a price, its initial history point. Both rows
// commit as one unit.
func (r *PostgresRepo) SaveProduct(ctx context.Context, p models.Product) (models.Product, error) {
	const op = "storage.postgres.SaveProduct"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Product{}, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer rollback(ctx, tx)

	const query = `
		INSERT INTO products (url, name, current_price, list_price, image_url, is_available, created_at, last_checked)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, created_at, last_checked
	`

	saved := p
	err = tx.QueryRow(ctx, query,
		p.URL, p.Name, p.CurrentPrice, p.ListPrice, p.ImageURL, p.IsAvailable,
	).Scan(&saved.ID, &saved.CreatedAt, &saved.LastChecked)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == storage.UniqueViolation {
			return models.Product{}, storage.ErrProductTracked
		}

		return models.Product{}, fmt.Errorf("%s: failed to save product: %w", op, err)
	}

	if p.CurrentPrice.Valid {
		const historyQuery = `
			INSERT INTO price_history (product_id, price, recorded_at)
			VALUES ($1, $2, $3)
		`
		if _, err := tx.Exec(ctx, historyQuery, saved.ID, p.CurrentPrice.Decimal, saved.LastChecked); err != nil {
			return models.Product{}, fmt.Errorf("%s: initial history point: %w", op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Product{}, fmt.Errorf("%s: commit: %w", op, err)
	}

	return saved, nil
}

// Products returns one page of tracked products plus the total count.
func (r *PostgresRepo) Products(ctx context.Context, limit, offset int64) ([]models.Product, int64, error) {
	const op = "storage.postgres.Products"

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer rollback(ctx, tx)

	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := tx.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: query: %w", op, err)
	}

	products, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Product])
	if err != nil {
		return nil, 0, fmt.Errorf("%s: collect: %w", op, err)
	}

	var total int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return products, total, nil
}

// AllProducts returns the full tracked set, sweep order.
func (r *PostgresRepo) AllProducts(ctx context.Context) ([]models.Product, error) {
	const op = "storage.postgres.AllProducts"

	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	products, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Product])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	return products, nil
}

func (r *PostgresRepo) ProductByID(ctx context.Context, productID int64) (models.Product, error) {
	const op = "storage.postgres.ProductByID"

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
	`

	return r.oneProduct(ctx, op, query, productID)
}

func (r *PostgresRepo) ProductByURL(ctx context.Context, url string) (models.Product, error) {
	const op = "storage.postgres.ProductByURL"

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE url = $1
	`

	return r.oneProduct(ctx, op, query, url)
}

func (r *PostgresRepo) oneProduct(ctx context.Context, op, query string, arg any) (models.Product, error) {
	var p models.Product

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.URL,
		&p.Name,
		&p.CurrentPrice,
		&p.ListPrice,
		&p.ImageURL,
		&p.IsAvailable,
		&p.CreatedAt,
		&p.LastChecked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Product{}, storage.ErrProductNotFound
		}

		return models.Product{}, fmt.Errorf("%s: failed to scan product: %w", op, err)
	}

	return p, nil
}

// ApplySnapshot folds one observation into the product row and, iff
// the price moved, appends a history point in the same transaction so
// the visible current price and the history tail never disagree. The
// row lock serializes concurrent writers of the same product.
// Absent snapshot fields keep their last-known-good values; the list
// price tracks the snapshot exactly (absent clears it).
func (r *PostgresRepo) ApplySnapshot(ctx context.Context, productID int64, snap models.ProductSnapshot) (bool, error) {
	const op = "storage.postgres.ApplySnapshot"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer rollback(ctx, tx)

	var prev models.Product
	err = tx.QueryRow(ctx,
		`SELECT current_price FROM products WHERE id = $1 FOR UPDATE`,
		productID,
	).Scan(&prev.CurrentPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, storage.ErrProductNotFound
		}

		return false, fmt.Errorf("%s: lock product: %w", op, err)
	}

	changed := snap.CurrentPrice.Valid &&
		(!prev.CurrentPrice.Valid || !prev.CurrentPrice.Decimal.Equal(snap.CurrentPrice.Decimal))

	if changed {
		_, err = tx.Exec(ctx,
			`INSERT INTO price_history (product_id, price, recorded_at) VALUES ($1, $2, $3)`,
			productID, snap.CurrentPrice.Decimal, snap.ObservedAt,
		)
		if err != nil {
			return false, fmt.Errorf("%s: append history: %w", op, err)
		}
	}

	const update = `
		UPDATE products
		SET name = CASE WHEN $2 = '' THEN name ELSE $2 END,
			current_price = COALESCE($3, current_price),
			list_price = $4,
			image_url = CASE WHEN $5 = '' THEN image_url ELSE $5 END,
			is_available = $6,
			last_checked = $7
		WHERE id = $1
	`

	_, err = tx.Exec(ctx, update,
		productID, snap.Name, snap.CurrentPrice, snap.ListPrice, snap.ImageURL, snap.IsAvailable, snap.ObservedAt,
	)
	if err != nil {
		return false, fmt.Errorf("%s: update product: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%s: commit: %w", op, err)
	}

	return changed, nil
}

// TouchLastChecked advances a product's last-checked timestamp after
// a failed refresh, leaving price fields untouched.
func (r *PostgresRepo) TouchLastChecked(ctx context.Context, productID int64, at time.Time) error {
	const op = "storage.postgres.TouchLastChecked"

	cmd, err := r.pool.Exec(ctx,
		`UPDATE products SET last_checked = $2 WHERE id = $1`,
		productID, at,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrProductNotFound
	}

	return nil
}

// DeleteProduct removes a product; history and alerts cascade.
func (r *PostgresRepo) DeleteProduct(ctx context.Context, productID int64) error {
	const op = "storage.postgres.DeleteProduct"

	cmd, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrProductNotFound
	}

	return nil
}

// PriceHistory returns a product's history points, oldest first.
func (r *PostgresRepo) PriceHistory(ctx context.Context, productID int64) ([]models.PriceHistoryEntry, error) {
	const op = "storage.postgres.PriceHistory"

	const query = `
		SELECT id, product_id, price, recorded_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY recorded_at, id
	`

	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.PriceHistoryEntry])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	return entries, nil
}

// Close closes the connection pool.
func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		fmt.Printf("failed to rollback transaction: %v\n", err)
	}
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
