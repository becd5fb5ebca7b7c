package engagement

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/lifeos-notify/internal/apperr"
)

// Routes returns the interaction endpoints for mounting under
// /api/notifications, keyed by notification id.
func Routes(store *Store) func(r chi.Router) {
	return func(r chi.Router) {
		r.Post("/{id}/interactions", handleRecord(store))
		r.Get("/{id}/interactions", handleList(store))
		r.Get("/{id}/interactions/summary", handleCounts(store))
	}
}

func handleRecord(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in Interaction
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			apperr.Write(w, apperr.BadRequest("invalid request body", err))
			return
		}
		in.ID = ""
		in.NotificationID = chi.URLParam(r, "id")

		saved, err := store.Record(r.Context(), in)
		switch {
		case errors.Is(err, ErrNotFound):
			apperr.Write(w, apperr.NotFound("notification", err))
		case errors.Is(err, ErrInvalid):
			apperr.Write(w, apperr.BadRequest(err.Error(), nil))
		case err != nil:
			apperr.Write(w, apperr.Internal(err))
		default:
			writeJSON(w, http.StatusCreated, saved)
		}
	}
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := Filter{
			NotificationID: chi.URLParam(r, "id"),
			Kind:           Kind(q.Get("kind")),
		}
		if v := q.Get("since"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Since = t
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}

		list, err := store.List(r.Context(), filter)
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		if list == nil {
			list = []Interaction{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCounts(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.Counts(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
