package sweepTrigger

import (
	"errors"
	"log/slog"
	"net/http"

	resp "pricetracker/internal/lib/api/response"
	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/scheduler"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

type SweepTrigger interface {
	TriggerNow() error
}

func New(
	log *slog.Logger,
	trigger SweepTrigger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sweep.trigger.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if err := trigger.TriggerNow(); err != nil {
			if errors.Is(err, scheduler.ErrSweepRunning) {
				log.Info("Sweep trigger rejected, already running")

				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("A sweep is already running"))

				return
			}

			log.Error("Failed to trigger sweep", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Sweep triggered")

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "Sweep started",
		})
	}
}
