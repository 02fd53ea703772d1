package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/lib/pricing"
	"pricetracker/internal/models"
	"pricetracker/internal/storage"
)

// ErrNameNotFound means the page was fetched but no product name could
// be extracted, so there is nothing meaningful to track.
var ErrNameNotFound = errors.New("could not extract product name")

type ProductStorage interface {
	SaveProduct(ctx context.Context, p models.Product) (models.Product, error)
	Products(ctx context.Context, limit, offset int64) ([]models.Product, int64, error)
	ProductByID(ctx context.Context, productID int64) (models.Product, error)
	ProductByURL(ctx context.Context, url string) (models.Product, error)
	ApplySnapshot(ctx context.Context, productID int64, snap models.ProductSnapshot) (bool, error)
	TouchLastChecked(ctx context.Context, productID int64, at time.Time) error
	DeleteProduct(ctx context.Context, productID int64) error
	PriceHistory(ctx context.Context, productID int64) ([]models.PriceHistoryEntry, error)
	AlertsByProduct(ctx context.Context, productID int64) ([]models.PriceAlert, error)
}

type CacheStorage interface {
	SaveProduct(ctx context.Context, product models.Product) error
	Product(ctx context.Context, productID int64) (models.Product, error)
	DeleteProduct(ctx context.Context, productID int64) error
}

type Snapshotter interface {
	Snapshot(ctx context.Context, url string) (models.ProductSnapshot, error)
}

type AlertEvaluator interface {
	Evaluate(ctx context.Context, product models.Product) (int, error)
}

type ProductOperator struct {
	log       *slog.Logger
	storage   ProductStorage
	cache     CacheStorage
	scraper   Snapshotter
	evaluator AlertEvaluator
}

func New(log *slog.Logger, s ProductStorage, cache CacheStorage, scraper Snapshotter, evaluator AlertEvaluator) *ProductOperator {
	return &ProductOperator{
		log:       log,
		storage:   s,
		cache:     cache,
		scraper:   scraper,
		evaluator: evaluator,
	}
}

// RefreshOutcome describes one completed live check of a product.
type RefreshOutcome struct {
	Product      models.Product
	Snapshot     models.ProductSnapshot
	PriceChanged bool
	AlertsFired  int
}

// TrackProduct scrapes the URL and starts tracking it. If the URL is
// already tracked the stored product is returned and created is false;
// the page is not fetched again.
func (p *ProductOperator) TrackProduct(ctx context.Context, url string) (models.Product, bool, error) {
	const op = "products.TrackProduct"

	existing, err := p.storage.ProductByURL(ctx, url)
	if err == nil {
		pricing.Decorate(&existing)
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrProductNotFound) {
		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}

	snap, err := p.scraper.Snapshot(ctx, url)
	if err != nil {
		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if snap.Name == "" {
		return models.Product{}, false, fmt.Errorf("%s: %w", op, ErrNameNotFound)
	}

	product, err := p.storage.SaveProduct(ctx, models.Product{
		URL:          url,
		Name:         snap.Name,
		CurrentPrice: snap.CurrentPrice,
		ListPrice:    snap.ListPrice,
		ImageURL:     snap.ImageURL,
		IsAvailable:  snap.IsAvailable,
		LastChecked:  snap.ObservedAt,
	})
	if err != nil {
		// Another request may have tracked the same URL between the
		// lookup and the insert.
		if errors.Is(err, storage.ErrProductTracked) {
			existing, lookupErr := p.storage.ProductByURL(ctx, url)
			if lookupErr != nil {
				return models.Product{}, false, fmt.Errorf("%s: %w", op, lookupErr)
			}

			pricing.Decorate(&existing)
			return existing, false, nil
		}

		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := p.cache.SaveProduct(ctx, product); err != nil {
		p.log.Error("failed to cache product", slog.Int64("product_id", product.ID), sl.Err(err))
	}

	pricing.Decorate(&product)

	return product, true, nil
}

// ProductByID reads through the cache.
func (p *ProductOperator) ProductByID(ctx context.Context, productID int64) (models.Product, error) {
	const op = "products.ProductByID"

	cached, err := p.cache.Product(ctx, productID)
	if err == nil {
		pricing.Decorate(&cached)
		return cached, nil
	}
	if !errors.Is(err, storage.ErrProductNotFound) {
		p.log.Error("cache lookup failed", slog.Int64("product_id", productID), sl.Err(err))
	}

	product, err := p.storage.ProductByID(ctx, productID)
	if err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := p.cache.SaveProduct(ctx, product); err != nil {
		p.log.Error("failed to cache product", slog.Int64("product_id", productID), sl.Err(err))
	}

	pricing.Decorate(&product)

	return product, nil
}

// ProductDetail returns the product together with its recorded price
// history and the alerts set on it.
func (p *ProductOperator) ProductDetail(ctx context.Context, productID int64) (models.Product, []models.PriceHistoryEntry, []models.PriceAlert, error) {
	const op = "products.ProductDetail"

	product, err := p.ProductByID(ctx, productID)
	if err != nil {
		return models.Product{}, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	history, err := p.storage.PriceHistory(ctx, productID)
	if err != nil {
		return models.Product{}, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	alerts, err := p.storage.AlertsByProduct(ctx, productID)
	if err != nil {
		return models.Product{}, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return product, history, alerts, nil
}

// Products returns one page of tracked products, newest first, plus
// the total count.
func (p *ProductOperator) Products(ctx context.Context, limit, offset int64) ([]models.Product, int64, error) {
	const op = "products.Products"

	list, total, err := p.storage.Products(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	for i := range list {
		pricing.Decorate(&list[i])
	}

	return list, total, nil
}

// RefreshProduct re-scrapes the product page, applies the snapshot and
// evaluates alerts against the fresh price. A failed fetch still
// advances last_checked so a broken page does not look permanently
// overdue.
func (p *ProductOperator) RefreshProduct(ctx context.Context, productID int64) (RefreshOutcome, error) {
	const op = "products.RefreshProduct"

	product, err := p.storage.ProductByID(ctx, productID)
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	snap, err := p.scraper.Snapshot(ctx, product.URL)
	if err != nil {
		if touchErr := p.storage.TouchLastChecked(ctx, productID, time.Now()); touchErr != nil {
			p.log.Error("failed to update last_checked", slog.Int64("product_id", productID), sl.Err(touchErr))
		}

		return RefreshOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	changed, err := p.storage.ApplySnapshot(ctx, productID, snap)
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	fresh, err := p.storage.ProductByID(ctx, productID)
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	fired, err := p.evaluator.Evaluate(ctx, fresh)
	if err != nil {
		p.log.Error("alert evaluation failed", slog.Int64("product_id", productID), sl.Err(err))
	}

	if err := p.cache.DeleteProduct(ctx, productID); err != nil {
		p.log.Error("failed to invalidate cache", slog.Int64("product_id", productID), sl.Err(err))
	}

	pricing.Decorate(&fresh)

	return RefreshOutcome{
		Product:      fresh,
		Snapshot:     snap,
		PriceChanged: changed,
		AlertsFired:  fired,
	}, nil
}

// DeleteProduct removes the product, its history and its alerts.
func (p *ProductOperator) DeleteProduct(ctx context.Context, productID int64) error {
	const op = "products.DeleteProduct"

	if err := p.storage.DeleteProduct(ctx, productID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.cache.DeleteProduct(ctx, productID); err != nil {
		p.log.Error("failed to invalidate cache", slog.Int64("product_id", productID), sl.Err(err))
	}

	return nil
}
