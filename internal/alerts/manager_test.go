package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricetracker/internal/storage"
	"pricetracker/internal/storage/memory"
)

func newManager(repo *memory.Repo, sender MailSender) *Manager {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewManager(log, repo, repo, NewDispatcher(sender, "http://localhost:8080"))
}

func TestUpsertAlertCreatesThenRetargets(t *testing.T) {
	repo := memory.New()
	sender := &stubSender{}

	product := seed(t, repo, "30.00", true)
	m := newManager(repo, sender)

	ctx := context.Background()

	alert, created, err := m.UpsertAlert(ctx, product.ID, "buyer@example.com", decimal.RequireFromString("20.00"), nil)
	if err != nil {
		t.Fatalf("UpsertAlert: %v", err)
	}
	if !created {
		t.Error("created = false, want true for a first alert")
	}
	if alert.Token == "" {
		t.Error("alert has no unsubscribe token")
	}
	if sender.count() != 1 {
		t.Errorf("sent %d confirmations, want 1", sender.count())
	}

	retargeted, created, err := m.UpsertAlert(ctx, product.ID, "buyer@example.com", decimal.RequireFromString("15.00"), nil)
	if err != nil {
		t.Fatalf("UpsertAlert retarget: %v", err)
	}
	if created {
		t.Error("created = true, want false when an active alert exists")
	}
	if retargeted.ID != alert.ID {
		t.Errorf("retargeted alert ID = %d, want %d", retargeted.ID, alert.ID)
	}
	if !retargeted.TargetPrice.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("target = %s, want 15.00", retargeted.TargetPrice)
	}

	all, err := repo.AlertsByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("AlertsByProduct: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("alerts = %d, want the single retargeted alert", len(all))
	}
}

func TestUpsertAlertAfterFiredCreatesFreshAlert(t *testing.T) {
	repo := memory.New()
	sender := &stubSender{}

	product := seed(t, repo, "30.00", true)
	m := newManager(repo, sender)

	ctx := context.Background()

	first, _, err := m.UpsertAlert(ctx, product.ID, "buyer@example.com", decimal.RequireFromString("20.00"), nil)
	if err != nil {
		t.Fatalf("UpsertAlert: %v", err)
	}

	if _, err := repo.MarkTriggered(ctx, first.ID, time.Now()); err != nil {
		t.Fatalf("MarkTriggered: %v", err)
	}

	second, created, err := m.UpsertAlert(ctx, product.ID, "buyer@example.com", decimal.RequireFromString("18.00"), nil)
	if err != nil {
		t.Fatalf("UpsertAlert after fire: %v", err)
	}
	if !created {
		t.Error("created = false, want a fresh alert once the old one fired")
	}
	if second.ID == first.ID {
		t.Error("fired alert was reused instead of keeping it as history")
	}

	all, err := repo.AlertsByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("AlertsByProduct: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("alerts = %d, want fired + fresh", len(all))
	}
}

func TestUpsertAlertUnknownProduct(t *testing.T) {
	repo := memory.New()
	m := newManager(repo, &stubSender{})

	_, _, err := m.UpsertAlert(context.Background(), 404, "buyer@example.com", decimal.RequireFromString("20.00"), nil)
	if !errors.Is(err, storage.ErrProductNotFound) {
		t.Errorf("err = %v, want ErrProductNotFound", err)
	}
}

func TestUpsertAlertSurvivesConfirmationFailure(t *testing.T) {
	repo := memory.New()
	sender := &stubSender{fail: true}

	product := seed(t, repo, "30.00", true)
	m := newManager(repo, sender)

	alert, created, err := m.UpsertAlert(context.Background(), product.ID, "buyer@example.com", decimal.RequireFromString("20.00"), nil)
	if err != nil {
		t.Fatalf("UpsertAlert: %v", err)
	}
	if !created || alert.ID == 0 {
		t.Errorf("alert not saved: created=%v id=%d", created, alert.ID)
	}
}

func TestUnsubscribeDeletesAlert(t *testing.T) {
	repo := memory.New()
	sender := &stubSender{}

	product := seed(t, repo, "30.00", true)
	m := newManager(repo, sender)

	ctx := context.Background()

	alert, _, err := m.UpsertAlert(ctx, product.ID, "buyer@example.com", decimal.RequireFromString("20.00"), nil)
	if err != nil {
		t.Fatalf("UpsertAlert: %v", err)
	}

	removed, err := m.Unsubscribe(ctx, alert.Token)
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if removed.ID != alert.ID {
		t.Errorf("removed alert %d, want %d", removed.ID, alert.ID)
	}

	if _, err := m.Unsubscribe(ctx, alert.Token); !errors.Is(err, storage.ErrAlertNotFound) {
		t.Errorf("second unsubscribe err = %v, want ErrAlertNotFound", err)
	}

	all, err := repo.AlertsByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("AlertsByProduct: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("alerts = %d, want none after unsubscribe", len(all))
	}
}
