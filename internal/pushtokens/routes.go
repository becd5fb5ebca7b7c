package pushtokens

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/lifeos-notify/internal/apperr"
)

// RegisterRoutes mounts push token endpoints under /api/push-tokens.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/push-tokens", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Post("/", handleRegister(store))
		r.Delete("/{id}", handleDeregister(store))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			apperr.Write(w, apperr.BadRequest("user_id is required", nil))
			return
		}
		var active *bool
		if v := r.URL.Query().Get("active"); v != "" {
			b := v == "true" || v == "1"
			active = &b
		}

		tokens, err := store.List(r.Context(), userID, active)
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		if tokens == nil {
			tokens = []Token{}
		}
		writeJSON(w, http.StatusOK, tokens)
	}
}

func handleRegister(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t Token
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			apperr.Write(w, apperr.BadRequest("invalid request body", err))
			return
		}
		saved, err := store.Register(r.Context(), t)
		if errors.Is(err, ErrInvalid) {
			apperr.Write(w, apperr.BadRequest(err.Error(), nil))
			return
		}
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func handleDeregister(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.Deregister(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			apperr.Write(w, apperr.NotFound("push token", err))
			return
		}
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
