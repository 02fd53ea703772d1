package unsubscribe

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "pricetracker/internal/lib/api/response"
	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/models"
	"pricetracker/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

type AlertRemover interface {
	Unsubscribe(ctx context.Context, token string) (models.PriceAlert, error)
}

func New(
	log *slog.Logger,
	remover AlertRemover,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.alerts.unsubscribe.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := chi.URLParam(r, "token")
		if token == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing token"))

			return
		}

		alert, err := remover.Unsubscribe(r.Context(), token)
		if err != nil {
			if errors.Is(err, storage.ErrAlertNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Alert not found or already removed"))

				return
			}

			log.Error("Failed to remove alert", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Alert removed",
			slog.Int64("alert_id", alert.ID),
			slog.Int64("product_id", alert.ProductID),
		)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "You will no longer receive price alerts for this product",
		})
	}
}
