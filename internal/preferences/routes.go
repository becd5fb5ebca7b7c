package preferences

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/lifeos-notify/internal/apperr"
)

// RegisterRoutes mounts preference endpoints under /api/preferences.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/preferences", func(r chi.Router) {
		r.Get("/{userID}", handleGet(store))
		r.Put("/{userID}", handlePut(store))
	})
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pref, err := store.Get(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, pref)
	}
}

func handlePut(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pref Preference
		if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
			apperr.Write(w, apperr.BadRequest("invalid request body", err))
			return
		}
		pref.UserID = chi.URLParam(r, "userID")

		saved, err := store.Put(r.Context(), pref)
		if errors.Is(err, ErrInvalid) {
			apperr.Write(w, apperr.BadRequest(err.Error(), nil))
			return
		}
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
