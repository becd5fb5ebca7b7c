package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/lifeos-notify/internal/apperr"
	"github.com/ziadkadry99/lifeos-notify/internal/events"
	"github.com/ziadkadry99/lifeos-notify/internal/logger"
)

// Lifecycle applies user-initiated state changes.
type Lifecycle interface {
	Snooze(ctx context.Context, id string, minutes int) (*Notification, error)
	Cancel(ctx context.Context, id string) (*Notification, error)
}

// RouteConfig wires the notification endpoints.
type RouteConfig struct {
	Lifecycle Lifecycle
	Events    events.Publisher
	Log       *logger.Logger

	// DefaultMaxSnooze applies when a create request omits max_snooze_count.
	DefaultMaxSnooze int

	// Subroutes are mounted under /api/notifications next to the core routes.
	Subroutes []func(r chi.Router)
}

// RegisterRoutes mounts notification endpoints under /api/notifications and
// the attempt log under /api/attempts.
func RegisterRoutes(r chi.Router, store *Store, cfg RouteConfig) {
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	r.Route("/api/notifications", func(r chi.Router) {
		r.Post("/", handleCreate(store, cfg))
		r.Get("/", handleList(store))
		r.Get("/{id}", handleGet(store))
		r.Post("/{id}/cancel", handleCancel(cfg))
		r.Post("/{id}/snooze", handleSnooze(cfg))
		r.Get("/{id}/attempts", handleNotificationAttempts(store))
		for _, sub := range cfg.Subroutes {
			sub(r)
		}
	})
	r.Get("/api/attempts", handleAttempts(store))
}

type createRequest struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	Data            map[string]any `json:"data"`
	Category        string         `json:"category"`
	ScheduledAt     *time.Time     `json:"scheduled_at"`
	DeliveryMethods []Channel      `json:"delivery_methods"`
	Priority        Priority       `json:"priority"`
	RepeatPattern   RepeatPattern  `json:"repeat_pattern"`
	MaxSnoozeCount  *int           `json:"max_snooze_count"`
	ReferenceType   string         `json:"reference_type"`
	ReferenceID     string         `json:"reference_id"`
}

func handleCreate(store *Store, cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperr.Write(w, apperr.BadRequest("invalid request body", err))
			return
		}

		n := Notification{
			ID:              req.ID,
			UserID:          req.UserID,
			Title:           req.Title,
			Body:            req.Body,
			Data:            req.Data,
			Category:        req.Category,
			DeliveryMethods: req.DeliveryMethods,
			Priority:        req.Priority,
			RepeatPattern:   req.RepeatPattern,
			MaxSnoozeCount:  cfg.DefaultMaxSnooze,
			ReferenceType:   req.ReferenceType,
			ReferenceID:     req.ReferenceID,
		}
		if req.ScheduledAt != nil {
			n.ScheduledAt = req.ScheduledAt.UTC()
		}
		if req.MaxSnoozeCount != nil {
			n.MaxSnoozeCount = *req.MaxSnoozeCount
		}

		created, err := store.Create(r.Context(), n)
		if err != nil {
			writeError(w, err)
			return
		}
		publish(r.Context(), cfg, events.Created, created)
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := ListFilter{
			UserID:   q.Get("user_id"),
			Status:   Status(q.Get("status")),
			Category: q.Get("category"),
		}
		if v := q.Get("is_reminder"); v != "" {
			b, err := strconv.ParseBool(v)
			if err == nil {
				filter.IsReminder = &b
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		list, err := store.List(r.Context(), filter)
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		if list == nil {
			list = []Notification{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func handleCancel(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := cfg.Lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		publish(r.Context(), cfg, events.Cancelled, n)
		writeJSON(w, http.StatusOK, n)
	}
}

func handleSnooze(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Minutes int `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperr.Write(w, apperr.BadRequest("invalid request body", err))
			return
		}

		n, err := cfg.Lifecycle.Snooze(r.Context(), chi.URLParam(r, "id"), req.Minutes)
		if err != nil {
			writeError(w, err)
			return
		}
		publish(r.Context(), cfg, events.Snoozed, n)
		writeJSON(w, http.StatusOK, n)
	}
}

func handleNotificationAttempts(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := store.Get(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		list, err := store.ListAttempts(r.Context(), AttemptFilter{NotificationID: id})
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		if list == nil {
			list = []Attempt{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleAttempts(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := AttemptFilter{
			NotificationID: q.Get("notification_id"),
			Channel:        Channel(q.Get("channel")),
			Outcome:        Outcome(q.Get("outcome")),
		}
		if v := q.Get("since"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Since = t
			}
		}
		if v := q.Get("until"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Until = t
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		list, err := store.ListAttempts(r.Context(), filter)
		if err != nil {
			apperr.Write(w, apperr.Internal(err))
			return
		}
		if list == nil {
			list = []Attempt{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// writeError maps store and lifecycle errors onto HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var ce *ConflictError
	switch {
	case errors.Is(err, ErrNotFound):
		apperr.Write(w, apperr.NotFound("notification", err))
	case errors.Is(err, ErrInvalid):
		apperr.Write(w, apperr.BadRequest(err.Error(), nil))
	case errors.Is(err, ErrSnoozeLimitExceeded):
		apperr.Write(w, apperr.SnoozeLimit(err))
	case errors.Is(err, ErrInvalidTransition), errors.As(err, &ce):
		apperr.Write(w, apperr.Conflict(err.Error(), nil))
	default:
		apperr.Write(w, apperr.Internal(err))
	}
}

// publish is best effort; the lifecycle change has already been persisted.
func publish(ctx context.Context, cfg RouteConfig, t events.Type, n *Notification) {
	err := cfg.Events.Publish(ctx, events.Event{
		Type:           t,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Status:         string(n.Status),
		At:             time.Now().UTC(),
	})
	if err != nil {
		cfg.Log.Error(err, "publishing event", "type", string(t), "notification_id", n.ID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
