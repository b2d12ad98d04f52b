package actorauth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/pkg/requestcontext"
)

type fakeValidator struct {
	claims *Claims
	err    error
}

func (f *fakeValidator) ValidateToken(string) (*Claims, error) {
	return f.claims, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireActor(t *testing.T) {
	okHandler := func(captured *requestcontext.Actor) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor, ok := requestcontext.ActorFrom(r.Context()); ok {
				*captured = actor
			}
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("valid token resolves actor", func(t *testing.T) {
		validator := &fakeValidator{claims: &Claims{UserID: "u1", Email: "a@example.org", Role: "admin"}}
		var actor requestcontext.Actor
		handler := RequireActor(validator, discardLogger())(okHandler(&actor))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", actor.ID)
		assert.Equal(t, "admin", actor.Role)
	})

	t.Run("missing header rejected with unauthorized envelope", func(t *testing.T) {
		var actor requestcontext.Actor
		handler := RequireActor(&fakeValidator{}, discardLogger())(okHandler(&actor))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusUnauthorized, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "unauthorized", body["error"])
		assert.Empty(t, actor.ID)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		validator := &fakeValidator{err: errors.New("expired")}
		var actor requestcontext.Actor
		handler := RequireActor(validator, discardLogger())(okHandler(&actor))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer bad")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("matching role passes", func(t *testing.T) {
		handler := RequireRole("admin", discardLogger())(next)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(requestcontext.WithActor(r.Context(), requestcontext.Actor{ID: "u1", Role: "admin"}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("role mismatch forbidden", func(t *testing.T) {
		handler := RequireRole("admin", discardLogger())(next)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(requestcontext.WithActor(r.Context(), requestcontext.Actor{ID: "u2", Role: "individual"}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no actor unauthorized", func(t *testing.T) {
		handler := RequireRole("admin", discardLogger())(next)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
