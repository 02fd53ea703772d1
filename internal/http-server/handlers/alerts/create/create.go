package createAlert

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "pricetracker/internal/lib/api/response"
	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/middleware/auth"
	"pricetracker/internal/models"
	"pricetracker/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type Request struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Email       string          `json:"email" validate:"required,email"`
	TargetPrice decimal.Decimal `json:"target_price" validate:"required"`
}

type Response struct {
	resp.Response
	Message string            `json:"message"`
	Alert   models.PriceAlert `json:"alert"`
}

type AlertUpserter interface {
	UpsertAlert(ctx context.Context, productID int64, email string, target decimal.Decimal, userID *int64) (models.PriceAlert, bool, error)
}

func New(
	log *slog.Logger,
	upserter AlertUpserter,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.alerts.create.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		if req.TargetPrice.Sign() <= 0 {
			log.Error("Invalid target price", slog.String("target", req.TargetPrice.String()))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid target price"))

			return
		}

		var userID *int64
		if id, ok := auth.UserID(r.Context()); ok {
			userID = &id
		}

		alert, created, err := upserter.UpsertAlert(r.Context(), req.ProductID, req.Email, req.TargetPrice, userID)
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))

				return
			}

			log.Error("Failed to save alert", sl.Err(err), slog.Int64("product_id", req.ProductID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		message := "Alert updated successfully"
		if created {
			message = "Alert created successfully"
			render.Status(r, http.StatusCreated)
		}

		log.Info("Alert saved",
			slog.Int64("alert_id", alert.ID),
			slog.Int64("product_id", alert.ProductID),
			slog.Bool("created", created),
		)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  message,
			Alert:    alert,
		})
	}
}
