package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a tracked retailer product: its identity, the latest
// observed snapshot fields and bookkeeping timestamps.
type Product struct {
	ID           int64               `db:"id" json:"id"`
	URL          string              `db:"url" json:"url"`
	Name         string              `db:"name" json:"name"`
	CurrentPrice decimal.NullDecimal `db:"current_price" json:"current_price"`
	ListPrice    decimal.NullDecimal `db:"list_price" json:"list_price"`
	ImageURL     string              `db:"image_url" json:"image_url,omitempty"`
	IsAvailable  bool                `db:"is_available" json:"is_available"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	LastChecked  time.Time           `db:"last_checked" json:"last_checked"`

	// Derived from CurrentPrice/ListPrice, never stored.
	IsOnSale    bool  `db:"-" json:"is_on_sale"`
	DiscountPct int64 `db:"-" json:"discount_percentage,omitempty"`
}

// ProductSnapshot is one point-in-time observation extracted from a
// product page. Absent fields stay absent: a missing price is never a
// zero price, an empty name means no name was extracted.
type ProductSnapshot struct {
	Name         string              `json:"name,omitempty"`
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	ListPrice    decimal.NullDecimal `json:"list_price"`
	ImageURL     string              `json:"image_url,omitempty"`
	IsAvailable  bool                `json:"is_available"`
	ObservedAt   time.Time           `json:"observed_at"`
}

// PriceHistoryEntry is an immutable history point. Entries are
// append-only and ordered ascending by RecordedAt.
type PriceHistoryEntry struct {
	ID         int64           `db:"id" json:"id"`
	ProductID  int64           `db:"product_id" json:"-"`
	Price      decimal.Decimal `db:"price" json:"price"`
	RecordedAt time.Time       `db:"recorded_at" json:"recorded_at"`
}

// PriceAlert is a standing request to be mailed once when a product's
// price reaches TargetPrice. Triggered flips to true exactly once.
type PriceAlert struct {
	ID          int64           `db:"id" json:"id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	UserID      *int64          `db:"user_id" json:"user_id,omitempty"`
	Email       string          `db:"email" json:"email"`
	TargetPrice decimal.Decimal `db:"target_price" json:"target_price"`
	Triggered   bool            `db:"triggered" json:"triggered"`
	Token       string          `db:"token" json:"token"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	TriggeredAt *time.Time      `db:"triggered_at" json:"triggered_at,omitempty"`
}

// EmailMessage is the payload handed to the mail transport. When mail
// is queue-backed this is also the wire format of a queue job.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SweepSummary aggregates one full sweep over the tracked set.
// Unchanged counts the subset of Succeeded items whose price did not
// move, so Succeeded+Failed equals the number of swept products.
type SweepSummary struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Succeeded   int       `json:"succeeded"`
	Unchanged   int       `json:"unchanged"`
	Failed      int       `json:"failed"`
	AlertsFired int       `json:"alerts_fired"`
}
