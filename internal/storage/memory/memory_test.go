package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
	"pricetracker/internal/storage"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func seedProduct(t *testing.T, r *Repo, url string) models.Product {
	t.Helper()

	p, err := r.SaveProduct(context.Background(), models.Product{
		URL:         url,
		Name:        "Fleece Hoodie",
		IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("SaveProduct: %v", err)
	}

	return p
}

func snapAt(price string, at time.Time) models.ProductSnapshot {
	snap := models.ProductSnapshot{
		Name:        "Fleece Hoodie",
		IsAvailable: true,
		ObservedAt:  at,
	}
	if price != "" {
		snap.CurrentPrice = nd(price)
	}

	return snap
}

func TestHistoryAppendsOnlyOnPriceChange(t *testing.T) {
	ctx := context.Background()
	r := New()
	p := seedProduct(t, r, "https://shop.example.com/p/1")

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	prices := []string{"10", "10", "8", "8", "8", "12"}
	for i, price := range prices {
		if _, err := r.ApplySnapshot(ctx, p.ID, snapAt(price, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("ApplySnapshot #%d: %v", i, err)
		}
	}

	entries, err := r.PriceHistory(ctx, p.ID)
	if err != nil {
		t.Fatalf("PriceHistory: %v", err)
	}

	want := []string{"10", "8", "12"}
	if len(entries) != len(want) {
		t.Fatalf("history has %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if !entries[i].Price.Equal(decimal.RequireFromString(w)) {
			t.Errorf("entry %d price = %s, want %s", i, entries[i].Price, w)
		}
		if i > 0 && entries[i].RecordedAt.Before(entries[i-1].RecordedAt) {
			t.Errorf("entry %d out of order", i)
		}
	}
}

func TestApplySnapshotAvailabilityFlipAddsNoHistory(t *testing.T) {
	ctx := context.Background()
	r := New()
	p := seedProduct(t, r, "https://shop.example.com/p/2")

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := r.ApplySnapshot(ctx, p.ID, snapAt("25", at)); err != nil {
		t.Fatal(err)
	}

	flip := snapAt("25", at.Add(time.Hour))
	flip.IsAvailable = false
	changed, err := r.ApplySnapshot(ctx, p.ID, flip)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("availability-only change reported as a price change")
	}

	entries, _ := r.PriceHistory(ctx, p.ID)
	if len(entries) != 1 {
		t.Fatalf("history has %d entries, want 1", len(entries))
	}

	got, _ := r.ProductByID(ctx, p.ID)
	if got.IsAvailable {
		t.Error("availability flip not applied")
	}
	if !got.LastChecked.Equal(at.Add(time.Hour)) {
		t.Error("last_checked did not advance")
	}
}

func TestApplySnapshotKeepsLastKnownGoodFields(t *testing.T) {
	ctx := context.Background()
	r := New()
	p := seedProduct(t, r, "https://shop.example.com/p/3")

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	full := snapAt("30", at)
	full.ImageURL = "https://img.example.com/a.jpg"
	if _, err := r.ApplySnapshot(ctx, p.ID, full); err != nil {
		t.Fatal(err)
	}

	partial := models.ProductSnapshot{IsAvailable: true, ObservedAt: at.Add(time.Hour)}
	changed, err := r.ApplySnapshot(ctx, p.ID, partial)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("priceless snapshot reported as a price change")
	}

	got, _ := r.ProductByID(ctx, p.ID)
	if got.Name != "Fleece Hoodie" {
		t.Errorf("name clobbered: %q", got.Name)
	}
	if !got.CurrentPrice.Valid || !got.CurrentPrice.Decimal.Equal(decimal.RequireFromString("30")) {
		t.Errorf("current price clobbered: %v", got.CurrentPrice)
	}
	if got.ImageURL != "https://img.example.com/a.jpg" {
		t.Errorf("image clobbered: %q", got.ImageURL)
	}
	if !got.LastChecked.Equal(at.Add(time.Hour)) {
		t.Error("last_checked did not advance")
	}
}

func TestSaveProductDuplicateURL(t *testing.T) {
	r := New()
	seedProduct(t, r, "https://shop.example.com/p/4")

	_, err := r.SaveProduct(context.Background(), models.Product{URL: "https://shop.example.com/p/4", Name: "Again"})
	if !errors.Is(err, storage.ErrProductTracked) {
		t.Fatalf("err = %v, want ErrProductTracked", err)
	}
}

func TestMarkTriggeredExactlyOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	r := New()
	p := seedProduct(t, r, "https://shop.example.com/p/5")

	alert, err := r.SaveAlert(ctx, models.PriceAlert{
		ProductID:   p.ID,
		Email:       "buyer@example.com",
		TargetPrice: decimal.RequireFromString("20"),
		Token:       "tok-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	const attempts = 64
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := r.MarkTriggered(ctx, alert.ID, time.Now().UTC())
			if err != nil {
				t.Error(err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	var total int
	for won := range wins {
		if won {
			total++
		}
	}
	if total != 1 {
		t.Fatalf("%d callers won the transition, want exactly 1", total)
	}

	got, _ := r.AlertByToken(ctx, "tok-1")
	if !got.Triggered || got.TriggeredAt == nil {
		t.Error("alert not left in the Fired state")
	}
}

func TestDeleteProductCascades(t *testing.T) {
	ctx := context.Background()
	r := New()
	p := seedProduct(t, r, "https://shop.example.com/p/6")

	if _, err := r.ApplySnapshot(ctx, p.ID, snapAt("15", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SaveAlert(ctx, models.PriceAlert{ProductID: p.ID, Email: "a@b.c", TargetPrice: decimal.RequireFromString("10"), Token: "tok-2"}); err != nil {
		t.Fatal(err)
	}

	if err := r.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := r.ProductByID(ctx, p.ID); !errors.Is(err, storage.ErrProductNotFound) {
		t.Error("product still present")
	}
	if entries, _ := r.PriceHistory(ctx, p.ID); len(entries) != 0 {
		t.Error("history survived the delete")
	}
	if _, err := r.AlertByToken(ctx, "tok-2"); !errors.Is(err, storage.ErrAlertNotFound) {
		t.Error("alert survived the delete")
	}
}
