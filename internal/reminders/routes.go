package reminders

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/lifeos-notify/internal/apperr"
)

// RegisterRoutes mounts reminder definition endpoints under /api/reminders.
func RegisterRoutes(r chi.Router, store *Store, gen *Generator) {
	r.Route("/api/reminders", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Post("/", handleCreate(store))
		r.Post("/generate", handleGenerate(gen))
		r.Get("/{id}", handleGet(store))
		r.Put("/{id}", handleUpdate(store))
		r.Delete("/{id}", handleDelete(store))
		r.Get("/{id}/runs", handleRuns(store))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs, err := store.List(r.Context(), r.URL.Query().Get("user_id"))
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		if defs == nil {
			defs = []Definition{}
		}
		writeJSON(w, http.StatusOK, defs)
	}
}

func handleCreate(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d Definition
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			apperr.Write(w, apperr.BadRequest("invalid request body", err))
			return
		}
		created, err := store.Create(r.Context(), d)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleUpdate(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d Definition
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			apperr.Write(w, apperr.BadRequest("invalid request body", err))
			return
		}
		d.ID = chi.URLParam(r, "id")
		updated, err := store.Update(r.Context(), d)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleDelete(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRuns(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := store.Get(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		runs, err := store.Runs(r.Context(), id)
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		if runs == nil {
			runs = []Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGenerate(gen *Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := gen.Generate(r.Context())
		if err != nil && sum.Evaluated == 0 {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		apperr.Write(w, apperr.NotFound("reminder definition", err))
	case errors.Is(err, ErrInvalid):
		apperr.Write(w, apperr.BadRequest(err.Error(), nil))
	default:
		apperr.Write(w, apperr.Internal(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
