package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/pkg/httpmiddleware"
)

// SecurityHandler authenticates API requests by bearer token. A token is
// accepted only while its subject is a registered user; the role stored for
// the user wins over the role claimed by the token.
type SecurityHandler struct {
	verifier *auth.Verifier
	users    auth.Users
}

// NewSecurityHandler creates a SecurityHandler.
func NewSecurityHandler(verifier *auth.Verifier, users auth.Users) *SecurityHandler {
	return &SecurityHandler{
		verifier: verifier,
		users:    users,
	}
}

// Authenticate resolves the caller identity or answers 401.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		id, err := s.verifier.Verify(token)
		if err != nil {
			zctx.From(ctx).Debug("Token rejected", zap.Error(err))
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}

		u, err := s.users.FindByID(ctx, id.UserID)
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			zctx.From(ctx).Debug("Token subject unknown", zap.String("user_id", id.UserID))
			writeError(w, r, auth.ErrUnauthenticated)
			return
		case err != nil:
			writeError(w, r, errors.Wrap(err, "find user"))
			return
		}
		id.Role = u.Role

		ctx = auth.WithIdentity(ctx, id)
		ctx = zctx.With(ctx, zap.String("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin answers 403 unless the authenticated caller is an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := auth.FromContext(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !id.IsAdmin() {
			writeError(w, r, auth.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitKey keys rate limits by authenticated user, falling back to the
// client address.
func RateLimitKey(r *http.Request) string {
	if id, err := auth.FromContext(r.Context()); err == nil {
		return "user:" + id.UserID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
