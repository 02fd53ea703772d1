package refreshProduct

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricetracker/internal/alerts"
	"pricetracker/internal/middleware/products"
	"pricetracker/internal/models"
	"pricetracker/internal/scraper"
	"pricetracker/internal/storage"
	"pricetracker/internal/storage/memory"
)

type stubScraper struct {
	snap models.ProductSnapshot
	err  error
}

func (s *stubScraper) Snapshot(context.Context, string) (models.ProductSnapshot, error) {
	return s.snap, s.err
}

type noopCache struct{}

func (noopCache) SaveProduct(context.Context, models.Product) error { return nil }
func (noopCache) Product(context.Context, int64) (models.Product, error) {
	return models.Product{}, storage.ErrProductNotFound
}
func (noopCache) DeleteProduct(context.Context, int64) error { return nil }

type countingSender struct {
	mu   sync.Mutex
	sent []models.EmailMessage
}

func (s *countingSender) Send(_ context.Context, msg models.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)

	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sent)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

// newHandler builds the refresh handler over a real operator, a real
// alert evaluator and an in-memory repository. Only the page fetch and
// the mail transport are stubbed.
func newHandler(sc products.Snapshotter) (http.HandlerFunc, *memory.Repo, *countingSender) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	sender := &countingSender{}
	evaluator := alerts.NewEvaluator(log, repo, alerts.NewDispatcher(sender, "http://localhost:8080"))
	op := products.New(log, repo, noopCache{}, sc, evaluator)

	return New(log, op), repo, sender
}

func seedProduct(t *testing.T, repo *memory.Repo, price string) models.Product {
	t.Helper()

	p, err := repo.SaveProduct(context.Background(), models.Product{
		URL:          "https://shop.example.com/p/1",
		Name:         "Trail Runner",
		CurrentPrice: nd(price),
		IsAvailable:  true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	return p
}

func seedAlert(t *testing.T, repo *memory.Repo, productID int64, target string) {
	t.Helper()

	_, err := repo.SaveAlert(context.Background(), models.PriceAlert{
		ProductID:   productID,
		Email:       "buyer@example.com",
		TargetPrice: decimal.RequireFromString(target),
		Token:       "tok-refresh",
	})
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}
}

func doRefresh(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, nil)
	w := httptest.NewRecorder()
	h(w, req)

	return w
}

func TestRefreshProductDropFiresAlert(t *testing.T) {
	sc := &stubScraper{snap: models.ProductSnapshot{
		Name:         "Trail Runner",
		CurrentPrice: nd("19.99"),
		IsAvailable:  true,
		ObservedAt:   time.Now(),
	}}

	h, repo, sender := newHandler(sc)
	p := seedProduct(t, repo, "30.00")
	seedAlert(t, repo, p.ID, "25.00")

	w := doRefresh(h, "/product/refresh?id="+itoa(p.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body)
	}

	var got Response
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !got.PriceChanged {
		t.Error("price_changed = false, want true")
	}
	if got.AlertsFired != 1 {
		t.Errorf("alerts_fired = %d, want 1", got.AlertsFired)
	}
	if !got.Product.CurrentPrice.Decimal.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("returned price = %s, want 19.99", got.Product.CurrentPrice.Decimal)
	}

	if n := sender.count(); n != 1 {
		t.Errorf("mails sent = %d, want 1", n)
	}

	history, err := repo.PriceHistory(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("PriceHistory: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history has %d points, want 2 (initial and refreshed)", len(history))
	}
}

func TestRefreshProductSamePrice(t *testing.T) {
	sc := &stubScraper{snap: models.ProductSnapshot{
		Name:         "Trail Runner",
		CurrentPrice: nd("30.00"),
		IsAvailable:  true,
		ObservedAt:   time.Now(),
	}}

	h, repo, sender := newHandler(sc)
	p := seedProduct(t, repo, "30.00")
	seedAlert(t, repo, p.ID, "25.00")

	w := doRefresh(h, "/product/refresh?id="+itoa(p.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body)
	}

	var got Response
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if got.PriceChanged {
		t.Error("price_changed = true, want false for identical price")
	}
	if got.AlertsFired != 0 {
		t.Errorf("alerts_fired = %d, want 0: 30.00 is above the 25.00 target", got.AlertsFired)
	}
	if sender.count() != 0 {
		t.Error("a mail was sent for a price above the target")
	}
}

func TestRefreshProductPricelessPage(t *testing.T) {
	observed := time.Now().Add(time.Hour).UTC()
	sc := &stubScraper{snap: models.ProductSnapshot{
		Name:        "Trail Runner",
		IsAvailable: false,
		ObservedAt:  observed,
	}}

	h, repo, _ := newHandler(sc)
	p := seedProduct(t, repo, "30.00")

	w := doRefresh(h, "/product/refresh?id="+itoa(p.ID))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 when the page shows no price", w.Code)
	}

	// The snapshot was still applied: availability flipped and the
	// check timestamp advanced even though the caller got an error.
	fresh, err := repo.ProductByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ProductByID: %v", err)
	}
	if fresh.IsAvailable {
		t.Error("availability was not updated from the priceless snapshot")
	}
	if !fresh.LastChecked.Equal(observed) {
		t.Errorf("last_checked = %v, want %v", fresh.LastChecked, observed)
	}
	if !fresh.CurrentPrice.Valid || !fresh.CurrentPrice.Decimal.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("stored price = %+v, want last known 30.00", fresh.CurrentPrice)
	}
}

func TestRefreshProductNotFound(t *testing.T) {
	h, _, _ := newHandler(&stubScraper{})

	if w := doRefresh(h, "/product/refresh?id=404"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRefreshProductInvalidID(t *testing.T) {
	for _, target := range []string{"/product/refresh", "/product/refresh?id=abc", "/product/refresh?id=-5"} {
		h, _, _ := newHandler(&stubScraper{})

		if w := doRefresh(h, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

func TestRefreshProductFetchFailureStillTouches(t *testing.T) {
	sc := &stubScraper{err: &scraper.TransportError{URL: "https://shop.example.com/p/1", Err: io.ErrUnexpectedEOF}}

	h, repo, _ := newHandler(sc)
	p := seedProduct(t, repo, "30.00")

	backdated := time.Now().Add(-time.Hour).UTC()
	if err := repo.TouchLastChecked(context.Background(), p.ID, backdated); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	w := doRefresh(h, "/product/refresh?id="+itoa(p.ID))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	fresh, err := repo.ProductByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ProductByID: %v", err)
	}
	if !fresh.LastChecked.After(backdated) {
		t.Errorf("last_checked = %v, want it advanced past %v after a failed fetch", fresh.LastChecked, backdated)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
