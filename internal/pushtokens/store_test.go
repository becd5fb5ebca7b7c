package pushtokens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/lifeos-notify/internal/db"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestRegisterAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a, err := store.Register(ctx, Token{UserID: "u-1", DeviceID: "phone", Platform: PlatformAndroid, Token: "tok-a"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !a.IsActive || a.ID == "" {
		t.Errorf("unexpected token: %+v", a)
	}
	if _, err := store.Register(ctx, Token{UserID: "u-1", DeviceID: "laptop", Platform: PlatformWeb, Token: "tok-b"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := store.Register(ctx, Token{UserID: "u-2", DeviceID: "phone", Platform: PlatformIOS, Token: "tok-c"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	active, err := store.ListActive(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("len(active) = %d, want 2", len(active))
	}
}

func TestRegisterSameDeviceReplacesToken(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, _ := store.Register(ctx, Token{UserID: "u-1", DeviceID: "phone", Platform: PlatformIOS, Token: "old"})
	if err := store.Deactivate(ctx, first.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	second, err := store.Register(ctx, Token{UserID: "u-1", DeviceID: "phone", Platform: PlatformIOS, Token: "new"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ID = %q, want %q", second.ID, first.ID)
	}
	if second.Token != "new" || !second.IsActive {
		t.Errorf("token not replaced and reactivated: %+v", second)
	}
}

func TestRegisterValidation(t *testing.T) {
	store := setupTestStore(t)

	tests := []struct {
		name string
		tok  Token
	}{
		{"missing user", Token{DeviceID: "d", Platform: PlatformWeb, Token: "t"}},
		{"missing token", Token{UserID: "u", DeviceID: "d", Platform: PlatformWeb}},
		{"bad platform", Token{UserID: "u", DeviceID: "d", Platform: "blackberry", Token: "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Register(context.Background(), tt.tok); !errors.Is(err, ErrInvalid) {
				t.Errorf("error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestDeactivateIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tok, _ := store.Register(ctx, Token{UserID: "u-1", DeviceID: "phone", Platform: PlatformAndroid, Token: "t"})
	for i := 0; i < 3; i++ {
		if err := store.Deactivate(ctx, tok.ID); err != nil {
			t.Fatalf("Deactivate %d: %v", i, err)
		}
	}
	if err := store.Deactivate(ctx, "unknown"); err != nil {
		t.Errorf("Deactivate unknown: %v", err)
	}

	got, _ := store.Get(ctx, tok.ID)
	if got.IsActive {
		t.Error("token still active")
	}
	active, _ := store.ListActive(ctx, "u-1")
	if len(active) != 0 {
		t.Errorf("len(active) = %d, want 0", len(active))
	}
}

func TestDeregister(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tok, _ := store.Register(ctx, Token{UserID: "u-1", DeviceID: "phone", Platform: PlatformAndroid, Token: "t"})
	if err := store.Deregister(ctx, tok.ID); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := store.Deregister(ctx, tok.ID); err != nil {
		t.Errorf("second Deregister: %v", err)
	}
	if err := store.Deregister(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deregister missing error = %v, want ErrNotFound", err)
	}
}

func TestTouch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tok, _ := store.Register(ctx, Token{UserID: "u-1", DeviceID: "phone", Platform: PlatformAndroid, Token: "t"})
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Touch(ctx, tok.ID, at); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, _ := store.Get(ctx, tok.ID)
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(at) {
		t.Errorf("LastUsedAt = %v, want %v", got.LastUsedAt, at)
	}
}

func TestRoutes(t *testing.T) {
	store := setupTestStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store)

	var created Token
	t.Run("register", func(t *testing.T) {
		body, _ := json.Marshal(Token{UserID: "u-1", DeviceID: "phone", Platform: PlatformWeb, Token: "tok"})
		req := httptest.NewRequest(http.MethodPost, "/api/push-tokens/", bytes.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
		}
		json.NewDecoder(w.Body).Decode(&created)
	})

	t.Run("register invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/push-tokens/", bytes.NewReader([]byte(`{"user_id":"u-1"}`)))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/push-tokens/?user_id=u-1", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		var tokens []Token
		json.NewDecoder(w.Body).Decode(&tokens)
		if len(tokens) != 1 {
			t.Errorf("len(tokens) = %d, want 1", len(tokens))
		}
	})

	t.Run("deregister", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/push-tokens/"+created.ID, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}

		req = httptest.NewRequest(http.MethodDelete, "/api/push-tokens/nope", nil)
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}
