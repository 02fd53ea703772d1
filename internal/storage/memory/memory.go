package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
	"pricetracker/internal/storage"
)

// Repo is an in-memory stand-in for the postgres repository with the
// same method set and the same atomicity guarantees. One lock covers
// everything, which trivially gives single-writer-per-product.
type Repo struct {
	mu sync.Mutex

	products map[int64]models.Product
	byURL    map[string]int64
	history  map[int64][]models.PriceHistoryEntry
	alerts   map[int64]models.PriceAlert

	nextProductID int64
	nextHistoryID int64
	nextAlertID   int64
}

func New() *Repo {
	return &Repo{
		products: make(map[int64]models.Product),
		byURL:    make(map[string]int64),
		history:  make(map[int64][]models.PriceHistoryEntry),
		alerts:   make(map[int64]models.PriceAlert),
	}
}

func (r *Repo) SaveProduct(_ context.Context, p models.Product) (models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byURL[p.URL]; ok {
		return models.Product{}, storage.ErrProductTracked
	}

	r.nextProductID++
	now := time.Now().UTC()

	p.ID = r.nextProductID
	p.CreatedAt = now
	p.LastChecked = now

	r.products[p.ID] = p
	r.byURL[p.URL] = p.ID

	if p.CurrentPrice.Valid {
		r.appendHistory(p.ID, p.CurrentPrice.Decimal, now)
	}

	return p, nil
}

func (r *Repo) Products(_ context.Context, limit, offset int64) ([]models.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.sortedProducts()
	// Newest first, like the list endpoint shows them.
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	if offset >= total {
		return []models.Product{}, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	return all[offset:end], total, nil
}

func (r *Repo) AllProducts(_ context.Context) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sortedProducts(), nil
}

func (r *Repo) ProductByID(_ context.Context, productID int64) (models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return models.Product{}, storage.ErrProductNotFound
	}

	return p, nil
}

func (r *Repo) ProductByURL(_ context.Context, url string) (models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byURL[url]
	if !ok {
		return models.Product{}, storage.ErrProductNotFound
	}

	return r.products[id], nil
}

// ApplySnapshot mirrors the postgres semantics: history appends iff
// the price moved, absent fields keep last-known-good values, the
// list price tracks the snapshot exactly, and everything lands (or
// nothing does) under one lock hold.
func (r *Repo) ApplySnapshot(_ context.Context, productID int64, snap models.ProductSnapshot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return false, storage.ErrProductNotFound
	}

	changed := snap.CurrentPrice.Valid &&
		(!p.CurrentPrice.Valid || !p.CurrentPrice.Decimal.Equal(snap.CurrentPrice.Decimal))

	if changed {
		r.appendHistory(productID, snap.CurrentPrice.Decimal, snap.ObservedAt)
		p.CurrentPrice = snap.CurrentPrice
	}

	if snap.Name != "" {
		p.Name = snap.Name
	}
	if snap.ImageURL != "" {
		p.ImageURL = snap.ImageURL
	}
	p.ListPrice = snap.ListPrice
	p.IsAvailable = snap.IsAvailable
	p.LastChecked = snap.ObservedAt

	r.products[productID] = p

	return changed, nil
}

func (r *Repo) TouchLastChecked(_ context.Context, productID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return storage.ErrProductNotFound
	}

	p.LastChecked = at
	r.products[productID] = p

	return nil
}

func (r *Repo) DeleteProduct(_ context.Context, productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return storage.ErrProductNotFound
	}

	delete(r.products, productID)
	delete(r.byURL, p.URL)
	delete(r.history, productID)
	for id, a := range r.alerts {
		if a.ProductID == productID {
			delete(r.alerts, id)
		}
	}

	return nil
}

func (r *Repo) PriceHistory(_ context.Context, productID int64) ([]models.PriceHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]models.PriceHistoryEntry, len(r.history[productID]))
	copy(entries, r.history[productID])

	return entries, nil
}

func (r *Repo) SaveAlert(_ context.Context, a models.PriceAlert) (models.PriceAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextAlertID++
	a.ID = r.nextAlertID
	a.CreatedAt = time.Now().UTC()

	r.alerts[a.ID] = a

	return a, nil
}

func (r *Repo) UpdateAlertTarget(_ context.Context, alertID int64, target decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok || a.Triggered {
		return storage.ErrAlertNotFound
	}

	a.TargetPrice = target
	r.alerts[alertID] = a

	return nil
}

func (r *Repo) AlertByProductEmail(_ context.Context, productID int64, email string) (models.PriceAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.sortedAlerts() {
		if a.ProductID == productID && a.Email == email && !a.Triggered {
			return a, nil
		}
	}

	return models.PriceAlert{}, storage.ErrAlertNotFound
}

func (r *Repo) AlertByToken(_ context.Context, token string) (models.PriceAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.alerts {
		if a.Token == token {
			return a, nil
		}
	}

	return models.PriceAlert{}, storage.ErrAlertNotFound
}

func (r *Repo) AlertsByProduct(_ context.Context, productID int64) ([]models.PriceAlert, error) {
	return r.alertsWhere(func(a models.PriceAlert) bool {
		return a.ProductID == productID
	}), nil
}

func (r *Repo) ActiveAlertsByProduct(_ context.Context, productID int64) ([]models.PriceAlert, error) {
	return r.alertsWhere(func(a models.PriceAlert) bool {
		return a.ProductID == productID && !a.Triggered
	}), nil
}

// MarkTriggered is the same compare-and-set as the postgres
// conditional update: exactly one concurrent caller wins.
func (r *Repo) MarkTriggered(_ context.Context, alertID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok || a.Triggered {
		return false, nil
	}

	a.Triggered = true
	a.TriggeredAt = &at
	r.alerts[alertID] = a

	return true, nil
}

func (r *Repo) DeleteAlertByToken(_ context.Context, token string) (models.PriceAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.alerts {
		if a.Token == token {
			delete(r.alerts, id)
			return a, nil
		}
	}

	return models.PriceAlert{}, storage.ErrAlertNotFound
}

func (r *Repo) appendHistory(productID int64, price decimal.Decimal, at time.Time) {
	r.nextHistoryID++
	r.history[productID] = append(r.history[productID], models.PriceHistoryEntry{
		ID:         r.nextHistoryID,
		ProductID:  productID,
		Price:      price,
		RecordedAt: at,
	})
}

func (r *Repo) sortedProducts() []models.Product {
	out := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (r *Repo) sortedAlerts() []models.PriceAlert {
	out := make([]models.PriceAlert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (r *Repo) alertsWhere(keep func(models.PriceAlert) bool) []models.PriceAlert {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.PriceAlert
	for _, a := range r.sortedAlerts() {
		if keep(a) {
			out = append(out, a)
		}
	}

	return out
}
