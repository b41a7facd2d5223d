package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/auth"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondJSON(t *testing.T) {
	t.Run("200 with body", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("204 with nil body", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondJSON(w, http.StatusNoContent, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err        *domain.AppError
		wantStatus int
	}{
		{domain.ErrInsufficientFunds(domain.CurrencyCash, 5, 10), 400},
		{domain.ErrAccountNotFound("a"), 404},
		{domain.ErrAccountDisabled("a"), 403},
		{domain.ErrRoomClosed("r"), 409},
		{domain.ErrBettingClosed("e"), 409},
		{domain.ErrPoolUnderfunded(10, 20), 409},
		{domain.ErrRequestAlreadyProcessed("q", domain.RequestApproved), 409},
		{domain.ErrContention(8, nil), 503},
		{domain.ErrNotFound("event", "e"), 404},
		{domain.ErrValidation("bad input"), 400},
		{domain.ErrUnauthorized("no token"), 401},
		{domain.ErrForbidden("not allowed"), 403},
		{domain.ErrConflict("duplicate"), 409},
		{domain.ErrRateLimited("slow down"), 429},
		{domain.ErrInternal("oops", nil), 500},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondError(w, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.err.Code, body["code"])
			assert.Equal(t, tt.err.Message, body["message"])
		})
	}

	t.Run("wrapped AppError keeps its status", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, errors.Join(errors.New("context"), domain.ErrRoomClosed("r")))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("generic error hides details", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, errors.New("pq: connection reset"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq:")
	})
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"stake":5}`))
		var dst struct {
			Stake int64 `json:"stake"`
		}
		require.NoError(t, DecodeJSON(r, &dst))
		assert.Equal(t, int64(5), dst.Stake)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"stake":5,"extra":1}`))
		var dst struct {
			Stake int64 `json:"stake"`
		}
		require.Error(t, DecodeJSON(r, &dst))
	})

	t.Run("body over 1MiB rejected", func(t *testing.T) {
		big := `{"note":"` + strings.Repeat("x", 1<<20) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(big))
		var dst map[string]interface{}
		require.Error(t, DecodeJSON(r, &dst))
	})
}

func TestBind(t *testing.T) {
	type body struct {
		Stake    int64           `json:"stake" validate:"required,gt=0"`
		Currency domain.Currency `json:"currency" validate:"required,oneof=points cash"`
	}
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"valid", `{"stake":10,"currency":"cash"}`, ""},
		{"malformed", `{"stake":`, "invalid request body"},
		{"zero stake", `{"stake":0,"currency":"cash"}`, "stake failed required"},
		{"bad currency", `{"stake":1,"currency":"gold"}`, "currency failed oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var dst body
			err := Bind(r, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25&cursor=40", nil)
	assert.Equal(t, 25, queryLimit(r))
	cur, err := queryCursor(r)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, int64(40), *cur)

	r = httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	assert.Equal(t, 0, queryLimit(r))
	cur, err = queryCursor(r)
	require.NoError(t, err)
	assert.Nil(t, cur)

	r = httptest.NewRequest(http.MethodGet, "/?cursor=-3", nil)
	_, err = queryCursor(r)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	var got uuid.UUID
	var gotErr error
	r := chi.NewRouter()
	r.Get("/rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = pathUUID(r, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rooms/"+id.String(), nil))
	require.NoError(t, gotErr)
	assert.Equal(t, id, got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rooms/not-a-uuid", nil))
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(gotErr))
}

func TestSubject(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := subject(r)
	assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err))

	id := uuid.New()
	ctx := auth.WithClaims(r.Context(), &auth.Claims{Realm: auth.RealmPlayer, RegisteredClaims: jwtSubject(id)})
	got, err := subject(r.WithContext(ctx))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"single forwarded hop", "1.2.3.4", "", "1.2.3.4"},
		{"first of many hops", "1.2.3.4, 5.6.7.8", "", "1.2.3.4"},
		{"trims spaces", "  1.2.3.4  ", "", "1.2.3.4"},
		{"remote addr with port", "", "10.0.0.1:54321", "10.0.0.1"},
		{"remote addr without port", "", "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Run("generates ID when none provided", func(t *testing.T) {
		var seen string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("keeps provided X-Request-ID", func(t *testing.T) {
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "trace-7", GetRequestID(r.Context()))
		}))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "trace-7")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, "trace-7", w.Header().Get("X-Request-ID"))
	})

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestCORSWithOrigins(t *testing.T) {
	called := false
	h := CORSWithOrigins("https://chat.example")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/rooms", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, called, "preflight never reaches the handler")
	assert.Equal(t, "https://chat.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.True(t, called)
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), domain.CodeInternal)
}

func TestRateLimit(t *testing.T) {
	limiter := guard.NewRateLimiter(2, time.Minute)
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ctx context.Context, ip string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		r.RemoteAddr = ip + ":1000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	bg := context.Background()
	assert.Equal(t, http.StatusOK, send(bg, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, send(bg, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send(bg, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, send(bg, "10.0.0.2"), "other IPs keep their own budget")

	// Authenticated callers are keyed by subject, not address.
	authed := auth.WithClaims(bg, &auth.Claims{Realm: auth.RealmPlayer, RegisteredClaims: jwtSubject(uuid.New())})
	assert.Equal(t, http.StatusOK, send(authed, "10.0.0.1"))
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler(stubPinger{})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = httptest.NewRecorder()
	HealthHandler(stubPinger{err: errors.New("db down")})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db down")
}

func jwtSubject(id uuid.UUID) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: id.String()}
}
