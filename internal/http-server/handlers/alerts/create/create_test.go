package createAlert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"pricetracker/internal/alerts"
	"pricetracker/internal/models"
	"pricetracker/internal/storage/memory"
)

type silentSender struct{}

func (silentSender) Send(context.Context, models.EmailMessage) error { return nil }

func newHandler(t *testing.T) (http.HandlerFunc, *memory.Repo) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	manager := alerts.NewManager(log, repo, repo, alerts.NewDispatcher(silentSender{}, "http://localhost:8080"))

	return New(log, manager, validator.New()), repo
}

func seedProduct(t *testing.T, repo *memory.Repo) models.Product {
	t.Helper()

	p, err := repo.SaveProduct(context.Background(), models.Product{
		URL:  "https://shop.example.com/p/9",
		Name: "Wool Beanie",
		CurrentPrice: decimal.NullDecimal{
			Decimal: decimal.RequireFromString("18.00"),
			Valid:   true,
		},
		IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	return p
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/alert", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h(w, req)

	return w
}

func TestCreateAlertNewThenRetarget(t *testing.T) {
	h, repo := newHandler(t)
	p := seedProduct(t, repo)

	first := postJSON(t, h,
		`{"product_id":1,"email":"buyer@example.com","target_price":"15.00"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201, body %s", first.Code, first.Body)
	}

	var created Response
	if err := json.NewDecoder(first.Body).Decode(&created); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if created.Message != "Alert created successfully" {
		t.Errorf("message = %q", created.Message)
	}
	if created.Alert.Token == "" {
		t.Error("alert has no unsubscribe token")
	}

	second := postJSON(t, h,
		`{"product_id":1,"email":"buyer@example.com","target_price":"12.50"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d, want 200, body %s", second.Code, second.Body)
	}

	var updated Response
	if err := json.NewDecoder(second.Body).Decode(&updated); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if updated.Message != "Alert updated successfully" {
		t.Errorf("message = %q", updated.Message)
	}
	if updated.Alert.ID != created.Alert.ID {
		t.Errorf("retarget created a new alert: %d vs %d", updated.Alert.ID, created.Alert.ID)
	}
	if !updated.Alert.TargetPrice.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("target = %s, want 12.50", updated.Alert.TargetPrice)
	}

	all, err := repo.AlertsByProduct(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("AlertsByProduct: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("repo holds %d alerts, want 1", len(all))
	}
}

func TestCreateAlertUnknownProduct(t *testing.T) {
	h, _ := newHandler(t)

	w := postJSON(t, h, `{"product_id":42,"email":"buyer@example.com","target_price":"15.00"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateAlertRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing email", `{"product_id":1,"target_price":"15.00"}`},
		{"bad email", `{"product_id":1,"email":"not-an-email","target_price":"15.00"}`},
		{"missing product", `{"email":"buyer@example.com","target_price":"15.00"}`},
		{"missing target", `{"product_id":1,"email":"buyer@example.com"}`},
		{"zero target", `{"product_id":1,"email":"buyer@example.com","target_price":"0"}`},
		{"negative target", `{"product_id":1,"email":"buyer@example.com","target_price":"-3.00"}`},
		{"broken json", `{"product_id":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, repo := newHandler(t)
			seedProduct(t, repo)

			if w := postJSON(t, h, tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body %s", w.Code, w.Body)
			}
		})
	}
}

func TestCreateAlertNumericTargetAccepted(t *testing.T) {
	h, repo := newHandler(t)
	seedProduct(t, repo)

	// Clients send the target either as a JSON string or a number.
	w := postJSON(t, h, `{"product_id":1,"email":"buyer@example.com","target_price":15.5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", w.Code, w.Body)
	}

	var got Response
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.Alert.TargetPrice.Equal(decimal.RequireFromString("15.5")) {
		t.Errorf("target = %s, want 15.5", got.Alert.TargetPrice)
	}
}
