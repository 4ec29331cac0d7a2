package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechain/pkg/domain"
	"tracechain/pkg/requestcontext"
)

func captureCaller(got *domain.Address) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = requestcontext.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireCaller_Header(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("header present", func(t *testing.T) {
		var got domain.Address
		h := RequireCaller(HeaderResolver{}, logger)(captureCaller(&got))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CallerHeader, "  0xfactory ")
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, domain.Address("0xfactory"), got)
	})

	t.Run("header missing", func(t *testing.T) {
		var got domain.Address
		h := RequireCaller(HeaderResolver{}, logger)(captureCaller(&got))
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "unauthorized")
		assert.Empty(t, got)
	})
}

func TestRequireCaller_JWT(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	resolver := NewJWTResolver("test-signing-key", "tracechain")

	t.Run("valid token", func(t *testing.T) {
		token, err := resolver.SignCaller("0xretailer", jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		require.NoError(t, err)

		var got domain.Address
		h := RequireCaller(resolver, logger)(captureCaller(&got))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, domain.Address("0xretailer"), got)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := resolver.SignCaller("0xretailer", jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		_, err = resolver.ResolveCaller(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewJWTResolver("another-key", "tracechain")
		token, err := other.SignCaller("0xretailer", jwt.RegisteredClaims{})
		require.NoError(t, err)

		var got domain.Address
		h := RequireCaller(resolver, logger)(captureCaller(&got))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("header ignored when jwt configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CallerHeader, "0xretailer")
		_, err := resolver.ResolveCaller(req)
		require.Error(t, err)
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-123", seen)
}

func TestRecovery(t *testing.T) {
	h := Recovery(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()

	require.NotPanics(t, func() {
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
