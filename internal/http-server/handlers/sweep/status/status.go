package sweepStatus

import (
	"log/slog"
	"net/http"

	resp "pricetracker/internal/lib/api/response"
	"pricetracker/internal/scheduler"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Sweep scheduler.Status `json:"sweep"`
}

type StatusReporter interface {
	Status() scheduler.Status
}

func New(
	log *slog.Logger,
	reporter StatusReporter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sweep.status.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		status := reporter.Status()

		log.Debug("Sweep status requested", slog.Bool("running", status.Running))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Sweep:    status,
		})
	}
}
