package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	"tracechain/pkg/requestcontext"
)

// CallerHeader carries the caller address when no signing key is configured.
const CallerHeader = "X-Caller-Address"

// CallerResolver extracts the authenticated caller address from a request.
type CallerResolver interface {
	ResolveCaller(r *http.Request) (domain.Address, error)
}

// HeaderResolver trusts the X-Caller-Address header. Use it only behind a
// gateway that has already authenticated the caller.
type HeaderResolver struct{}

func (HeaderResolver) ResolveCaller(r *http.Request) (domain.Address, error) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing caller address")
	}
	return domain.ParseAddress(raw)
}

// JWTResolver reads the caller address from the sub claim of an HS256 bearer token.
type JWTResolver struct {
	signingKey []byte
	issuer     string
}

func NewJWTResolver(signingKey, issuer string) *JWTResolver {
	return &JWTResolver{signingKey: []byte(signingKey), issuer: issuer}
}

func (j *JWTResolver) ResolveCaller(r *http.Request) (domain.Address, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return j.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return domain.ParseAddress(claims.Subject)
}

// SignCaller issues a token for addr. Used by tooling and tests.
func (j *JWTResolver) SignCaller(addr domain.Address, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = addr.String()
	if claims.Issuer == "" {
		claims.Issuer = j.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.signingKey)
}

// RequireCaller rejects requests without a resolvable caller and stores the
// address in the request context.
func RequireCaller(resolver CallerResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			addr, err := resolver.ResolveCaller(r)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - caller not resolved",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				if _, err := w.Write([]byte(`{"error":"unauthorized","error_description":"caller identity required"}`)); err != nil {
					logger.ErrorContext(ctx, "failed to write unauthorized response", "error", err)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, addr)))
		})
	}
}
