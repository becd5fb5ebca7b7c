package scheduler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/lifeos-notify/internal/apperr"
)

// RegisterRoutes mounts the manual tick trigger under /api/scheduler.
func RegisterRoutes(r chi.Router, s *Scheduler) {
	r.Route("/api/scheduler", func(r chi.Router) {
		r.Post("/tick", handleTick(s))
	})
}

func handleTick(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.Tick(r.Context())
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(sum)
	}
}
