package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/middleware/products"
	"pricetracker/internal/models"
)

// ErrSweepRunning is returned by TriggerNow while a sweep is in
// flight; manual triggers never queue up behind a running sweep.
var ErrSweepRunning = errors.New("a sweep is already running")

type ProductSource interface {
	AllProducts(ctx context.Context) ([]models.Product, error)
}

type Refresher interface {
	RefreshProduct(ctx context.Context, productID int64) (products.RefreshOutcome, error)
}

// originLimiter throttles checks per shop host so a sweep over many
// products from one store does not hammer it.
type originLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newOriginLimiter(rps float64, burst int) *originLimiter {
	return &originLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *originLimiter) wait(ctx context.Context, rawURL string) error {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	l.mu.Lock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[host] = lim
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running bool                 `json:"running"`
	NextRun time.Time            `json:"next_run"`
	LastRun *models.SweepSummary `json:"last_run,omitempty"`
}

// Scheduler re-checks every tracked product on a fixed interval,
// fanning the checks out over a bounded worker pool.
type Scheduler struct {
	log       *slog.Logger
	products  ProductSource
	refresher Refresher
	interval  time.Duration
	workers   int
	limiter   *originLimiter
	trigger   chan struct{}

	mu      sync.Mutex
	running bool
	nextRun time.Time
	lastRun *models.SweepSummary
}

func New(log *slog.Logger, source ProductSource, refresher Refresher, interval time.Duration, workers int, originRPS float64, originBurst int) *Scheduler {
	if workers < 1 {
		workers = 1
	}

	return &Scheduler{
		log:       log,
		products:  source,
		refresher: refresher,
		interval:  interval,
		workers:   workers,
		limiter:   newOriginLimiter(originRPS, originBurst),
		trigger:   make(chan struct{}),
	}
}

// Run loops until the context is cancelled, sweeping on every tick and
// on every accepted TriggerNow. In-flight checks finish before Run
// returns.
func (s *Scheduler) Run(ctx context.Context) {
	const op = "scheduler.Run"

	log := s.log.With(slog.String("op", op))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextRun(time.Now().Add(s.interval))

	log.Info("sweep scheduler started",
		slog.Duration("interval", s.interval),
		slog.Int("workers", s.workers),
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.setNextRun(time.Now().Add(s.interval))
			s.sweep(ctx)
		case <-s.trigger:
			s.sweep(ctx)
		}
	}
}

// TriggerNow starts a sweep immediately. While the run loop is busy
// sweeping nobody is listening on the trigger channel, so the send
// falls through to the error instead of queueing.
func (s *Scheduler) TriggerNow() error {
	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return ErrSweepRunning
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Running: s.running,
		NextRun: s.nextRun,
		LastRun: s.lastRun,
	}
}

func (s *Scheduler) setNextRun(at time.Time) {
	s.mu.Lock()
	s.nextRun = at
	s.mu.Unlock()
}

func (s *Scheduler) sweep(ctx context.Context) {
	const op = "scheduler.sweep"

	log := s.log.With(slog.String("op", op))

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	summary := models.SweepSummary{StartedAt: time.Now()}

	defer func() {
		summary.FinishedAt = time.Now()

		s.mu.Lock()
		s.running = false
		s.lastRun = &summary
		s.mu.Unlock()

		log.Info("sweep finished",
			slog.Int("succeeded", summary.Succeeded),
			slog.Int("unchanged", summary.Unchanged),
			slog.Int("failed", summary.Failed),
			slog.Int("alerts_fired", summary.AlertsFired),
			slog.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)),
		)
	}()

	items, err := s.products.AllProducts(ctx)
	if err != nil {
		log.Error("failed to list products", sl.Err(err))
		return
	}

	log.Info("sweep started", slog.Int("products", len(items)))

	var (
		wg  sync.WaitGroup
		smu sync.Mutex
	)

	sem := make(chan struct{}, s.workers)

loop:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}

		wg.Add(1)

		go func(product models.Product) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := s.checkOne(ctx, product)

			smu.Lock()
			defer smu.Unlock()

			if err != nil {
				summary.Failed++
				log.Warn("product check failed", slog.Int64("product_id", product.ID), sl.Err(err))
				return
			}

			summary.Succeeded++
			if !outcome.PriceChanged {
				summary.Unchanged++
			}
			summary.AlertsFired += outcome.AlertsFired
		}(item)
	}

	wg.Wait()
}

// checkOne runs a single product check. A panic inside one check is
// turned into that item's failure instead of ending the sweep.
func (s *Scheduler) checkOne(ctx context.Context, product models.Product) (outcome products.RefreshOutcome, err error) {
	const op = "scheduler.checkOne"

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", op, r)
		}
	}()

	if err := s.limiter.wait(ctx, product.URL); err != nil {
		return products.RefreshOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	outcome, err = s.refresher.RefreshProduct(ctx, product.ID)
	if err != nil {
		return products.RefreshOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	return outcome, nil
}
