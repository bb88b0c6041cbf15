package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"feedrank/pkg/auth"
	"feedrank/pkg/common"
	pkgerrors "feedrank/pkg/errors"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Authenticator resolves the caller from the Authorization header
type Authenticator struct {
	validator TokenValidator
	errors    *pkgerrors.ErrorHandler
	logger    *zap.Logger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(validator TokenValidator, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		validator: validator,
		errors:    errorHandler,
		logger:    logger,
	}
}

// Optional attaches the caller's identity when a token is present.
// Requests without a token proceed anonymously; a present but invalid token is rejected.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		a.serveAuthenticated(w, r, token, next)
	})
}

// Required rejects requests without a valid token
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.GetUserID(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		token := extractToken(r)
		if token == "" {
			a.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("missing authorization header"))
			return
		}
		a.serveAuthenticated(w, r, token, next)
	})
}

func (a *Authenticator) serveAuthenticated(w http.ResponseWriter, r *http.Request, token string, next http.Handler) {
	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		a.logger.Debug("Invalid token",
			zap.Error(err),
			zap.String("path", r.URL.Path),
		)
		a.errors.Handle(w, r, pkgerrors.NewUnauthorizedError(tokenErrorMessage(err)))
		return
	}

	ctx := common.WithUserID(r.Context(), claims.UserID())
	ctx = common.WithUserEmail(ctx, claims.Email)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "token has expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid token signature"
	default:
		return "invalid token"
	}
}

// extractToken reads a bearer token from the Authorization header
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
