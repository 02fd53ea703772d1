package scrape

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "pricetracker/internal/lib/api/response"
	sl "pricetracker/internal/lib/logger"
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
	Snapshot models.ProductSnapshot `json:"snapshot"`
}

type Snapshotter interface {
	Snapshot(ctx context.Context, url string) (models.ProductSnapshot, error)
}

// New returns the stateless extraction preview: fetch and extract,
// persist nothing.
func New(
	log *slog.Logger,
	snapshotter Snapshotter,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.scrape.New"

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

		snap, err := snapshotter.Snapshot(r.Context(), req.URL)
		if err != nil {
			var (
				transportErr *scraper.TransportError
				parseErr     *scraper.ParseError
			)

			switch {
			case errors.As(err, &parseErr):
				log.Error("Failed to extract product data", sl.Err(err))

				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Could not extract product data"))

			case errors.As(err, &transportErr):
				log.Error("Failed to fetch page", sl.Err(err))

				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, resp.Error("Could not fetch product page. Please check the URL."))

			default:
				log.Error("Scrape failed", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Page scraped", slog.String("url", req.URL), slog.String("name", snap.Name))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Snapshot: snap,
		})
	}
}
