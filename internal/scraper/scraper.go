package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pricetracker/internal/models"
)

// Scraper runs fetch + extract for one product URL.
type Scraper struct {
	log       *slog.Logger
	fetcher   *Fetcher
	extractor *Extractor
}

func New(log *slog.Logger, timeout time.Duration) *Scraper {
	return &Scraper{
		log:       log,
		fetcher:   NewFetcher(timeout),
		extractor: NewExtractor(),
	}
}

// Snapshot fetches the page at url and extracts a product snapshot.
// Failures are *TransportError or *ParseError, reachable through
// errors.As on the wrapped return.
func (s *Scraper) Snapshot(ctx context.Context, url string) (models.ProductSnapshot, error) {
	const op = "scraper.Snapshot"

	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return models.ProductSnapshot{}, fmt.Errorf("%s: %w", op, err)
	}

	snap, err := s.extractor.Extract(page, url)
	if err != nil {
		return models.ProductSnapshot{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug("snapshot extracted",
		slog.String("url", url),
		slog.Bool("has_price", snap.CurrentPrice.Valid),
		slog.Bool("available", snap.IsAvailable),
	)

	return snap, nil
}
