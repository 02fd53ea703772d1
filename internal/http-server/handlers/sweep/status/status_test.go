package sweepStatus

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pricetracker/internal/models"
	"pricetracker/internal/scheduler"
)

type stubReporter struct {
	status scheduler.Status
}

func (s stubReporter) Status() scheduler.Status { return s.status }

func doStatus(reporter StatusReporter) *httptest.ResponseRecorder {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(log, reporter)

	req := httptest.NewRequest(http.MethodGet, "/sweep/status", nil)
	w := httptest.NewRecorder()
	h(w, req)

	return w
}

func TestStatusIdle(t *testing.T) {
	next := time.Date(2025, 4, 1, 12, 30, 0, 0, time.UTC)

	w := doStatus(stubReporter{status: scheduler.Status{NextRun: next}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got Response
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if got.Sweep.Running {
		t.Error("running = true, want false")
	}
	if !got.Sweep.NextRun.Equal(next) {
		t.Errorf("next_run = %v, want %v", got.Sweep.NextRun, next)
	}
	if got.Sweep.LastRun != nil {
		t.Errorf("last_run = %+v, want absent before the first sweep", got.Sweep.LastRun)
	}
}

func TestStatusAfterSweep(t *testing.T) {
	started := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	summary := models.SweepSummary{
		StartedAt:   started,
		FinishedAt:  started.Add(40 * time.Second),
		Succeeded:   12,
		Unchanged:   9,
		Failed:      1,
		AlertsFired: 2,
	}

	w := doStatus(stubReporter{status: scheduler.Status{LastRun: &summary}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got Response
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	last := got.Sweep.LastRun
	if last == nil {
		t.Fatal("last_run missing")
	}
	if last.Succeeded != 12 || last.Failed != 1 || last.AlertsFired != 2 {
		t.Errorf("last_run = %+v", *last)
	}
}
