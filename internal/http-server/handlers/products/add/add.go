package addProduct

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "pricetracker/internal/lib/api/response"
	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/middleware/products"
	"pricetracker/internal/models"
	"pricetracker/internal/scraper"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	validator "github.com/go-playground/validator/v10"
)

type Request struct {
	URL string `json:"url" validate:"required,url"`
}

type Response struct {
	resp.Response
	Product models.Product `json:"product"`
}

type ProductTracker interface {
	TrackProduct(ctx context.Context, url string) (models.Product, bool, error)
}

func New(
	log *slog.Logger,
	tracker ProductTracker,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.add.New"

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

		product, created, err := tracker.TrackProduct(r.Context(), req.URL)
		if err != nil {
			respondTrackError(w, r, log, err)
			return
		}

		if !created {
			log.Info("Product already tracked", slog.Int64("product_id", product.ID))

			ResponseOK(w, r, product)

			return
		}

		log.Info("Product tracked",
			slog.Int64("product_id", product.ID),
			slog.String("url", product.URL),
		)

		render.Status(r, http.StatusCreated)
		ResponseOK(w, r, product)
	}
}

func respondTrackError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var (
		transportErr *scraper.TransportError
		parseErr     *scraper.ParseError
	)

	switch {
	case errors.Is(err, products.ErrNameNotFound):
		log.Error("Product name missing from page", sl.Err(err))

		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, resp.Error("Could not extract product name"))

	case errors.As(err, &parseErr):
		log.Error("Failed to extract product data", sl.Err(err))

		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, resp.Error("Could not extract product data"))

	case errors.As(err, &transportErr):
		log.Error("Failed to fetch product page", sl.Err(err))

		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, resp.Error("Could not fetch product page. Please check the URL."))

	default:
		log.Error("Failed to track product", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error("Internal error"))
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, product models.Product) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
		Product:  product,
	})
}
