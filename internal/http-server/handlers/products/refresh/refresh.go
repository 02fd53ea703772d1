package refreshProduct

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	resp "pricetracker/internal/lib/api/response"
	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/middleware/products"
	"pricetracker/internal/models"
	"pricetracker/internal/scraper"
	"pricetracker/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Product      models.Product `json:"product"`
	PriceChanged bool           `json:"price_changed"`
	AlertsFired  int            `json:"alerts_fired"`
}

type ProductRefresher interface {
	RefreshProduct(ctx context.Context, productID int64) (products.RefreshOutcome, error)
}

func New(
	log *slog.Logger,
	refresher ProductRefresher,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		productID := parseProductID(r)
		if productID == -1 {
			log.Error("Invalid id")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid id"))

			return
		}

		outcome, err := refresher.RefreshProduct(r.Context(), productID)
		if err != nil {
			respondRefreshError(w, r, log, productID, err)
			return
		}

		// Availability and last_checked were still recorded, but a
		// manual refresh that cannot see a price is an error to the
		// caller.
		if !outcome.Snapshot.CurrentPrice.Valid {
			log.Warn("Refresh found no price", slog.Int64("product_id", productID))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Could not fetch current price"))

			return
		}

		log.Info("Product refreshed",
			slog.Int64("product_id", productID),
			slog.Bool("price_changed", outcome.PriceChanged),
			slog.Int("alerts_fired", outcome.AlertsFired),
		)

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			Product:      outcome.Product,
			PriceChanged: outcome.PriceChanged,
			AlertsFired:  outcome.AlertsFired,
		})
	}
}

func respondRefreshError(w http.ResponseWriter, r *http.Request, log *slog.Logger, productID int64, err error) {
	var (
		transportErr *scraper.TransportError
		parseErr     *scraper.ParseError
	)

	switch {
	case errors.Is(err, storage.ErrProductNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("Product not found"))

	case errors.As(err, &parseErr):
		log.Error("Failed to extract product data", sl.Err(err), slog.Int64("product_id", productID))

		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, resp.Error("Could not extract product data"))

	case errors.As(err, &transportErr):
		log.Error("Failed to fetch product page", sl.Err(err), slog.Int64("product_id", productID))

		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, resp.Error("Could not fetch product page"))

	default:
		log.Error("Failed to refresh product", sl.Err(err), slog.Int64("product_id", productID))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error("Internal error"))
	}
}

func parseProductID(r *http.Request) int64 {
	productIDStr := r.URL.Query().Get("id")
	if productIDStr == "" {
		return -1
	}

	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID < 0 {
		return -1
	}

	return productID
}
