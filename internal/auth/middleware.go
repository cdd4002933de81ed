package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"todo-serverless/internal/token"
)

type contextKey struct{}

type Authenticator interface {
	Authenticate(accessToken string) (uuid.UUID, error)
}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(contextKey{}).(uuid.UUID)
	return userID, ok
}

// Middleware admits requests carrying a valid access-audience bearer token and
// stores its subject in the request context.
func Middleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			userID, err := authenticator.Authenticate(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, tokenErrorMessage(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

var (
	errMissingAuthorization = errors.New("missing authorization token")
	errAuthorizationFormat  = errors.New("invalid authorization format")
)

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errMissingAuthorization
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errAuthorizationFormat
	}

	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", errAuthorizationFormat
	}
	return raw, nil
}

func isTokenError(err error) bool {
	return errors.Is(err, token.ErrMalformed) ||
		errors.Is(err, token.ErrSignatureInvalid) ||
		errors.Is(err, token.ErrExpired) ||
		errors.Is(err, token.ErrNotYetValid) ||
		errors.Is(err, token.ErrWrongAudience)
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "token expired"
	case errors.Is(err, token.ErrWrongAudience):
		return "wrong token audience"
	default:
		return "invalid token"
	}
}
