package getByID

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	resp "pricetracker/internal/lib/api/response"
	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/models"
	"pricetracker/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Product models.Product             `json:"product"`
	History []models.PriceHistoryEntry `json:"price_history"`
	Alerts  []models.PriceAlert        `json:"alerts"`
}

type ProductDetailer interface {
	ProductDetail(ctx context.Context, productID int64) (models.Product, []models.PriceHistoryEntry, []models.PriceAlert, error)
}

func New(
	log *slog.Logger,
	detailer ProductDetailer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.get_by_id.New"

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

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		product, history, alerts, err := detailer.ProductDetail(ctx, productID)
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))

				return
			}

			log.Error("Failed to get product", sl.Err(err), slog.Int64("product_id", productID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if history == nil {
			history = []models.PriceHistoryEntry{}
		}
		if alerts == nil {
			alerts = []models.PriceAlert{}
		}

		w.Header().Set("Cache-Control", "private, max-age=60")

		ResponseOK(w, r, product, history, alerts)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, product models.Product, history []models.PriceHistoryEntry, alerts []models.PriceAlert) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
		Product:  product,
		History:  history,
		Alerts:   alerts,
	})
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
