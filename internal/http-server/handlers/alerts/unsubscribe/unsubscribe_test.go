package unsubscribe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	"pricetracker/internal/alerts"
	"pricetracker/internal/models"
	"pricetracker/internal/storage/memory"
)

type silentSender struct{}

func (silentSender) Send(context.Context, models.EmailMessage) error { return nil }

func newRouter(t *testing.T) (*chi.Mux, *memory.Repo) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	manager := alerts.NewManager(log, repo, repo, alerts.NewDispatcher(silentSender{}, "http://localhost:8080"))

	router := chi.NewRouter()
	router.Get("/unsubscribe/{token}", New(log, manager))

	return router, repo
}

func seedAlert(t *testing.T, repo *memory.Repo) models.PriceAlert {
	t.Helper()

	p, err := repo.SaveProduct(context.Background(), models.Product{
		URL:  "https://shop.example.com/p/3",
		Name: "Rain Shell",
		CurrentPrice: decimal.NullDecimal{
			Decimal: decimal.RequireFromString("64.00"),
			Valid:   true,
		},
		IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	alert, err := repo.SaveAlert(context.Background(), models.PriceAlert{
		ProductID:   p.ID,
		Email:       "buyer@example.com",
		TargetPrice: decimal.RequireFromString("50.00"),
		Token:       "tok-unsub",
	})
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	return alert
}

func TestUnsubscribeRemovesAlert(t *testing.T) {
	router, repo := newRouter(t)
	alert := seedAlert(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe/tok-unsub", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body)
	}

	var got Response
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Message == "" {
		t.Error("response has no message")
	}

	if _, err := repo.AlertByToken(context.Background(), alert.Token); err == nil {
		t.Error("alert still present after unsubscribe")
	}
}

func TestUnsubscribeUnknownToken(t *testing.T) {
	router, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe/no-such-token", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUnsubscribeSameLinkTwice(t *testing.T) {
	router, repo := newRouter(t)
	seedAlert(t, repo)

	first := httptest.NewRequest(http.MethodGet, "/unsubscribe/tok-unsub", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, first)
	if w.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", w.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/unsubscribe/tok-unsub", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, second)
	if w.Code != http.StatusNotFound {
		t.Errorf("second status = %d, want 404: the link is single use", w.Code)
	}
}
