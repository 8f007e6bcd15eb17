package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/pkg/logger"
)

const ActorHeader = "X-User-ID"

// TokenVerifier returns the user id a bearer token was issued for.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// ActorOptions selects how the acting user is established. TrustActorHeader
// accepts X-User-ID as-is and must only be enabled behind a gateway that
// strips the header from client traffic.
type ActorOptions struct {
	Verifier         TokenVerifier
	TrustActorHeader bool
}

// ActorContext puts the acting user into the request context. A bearer token
// is always verified; without one the request continues anonymously unless
// the actor header is trusted. Anonymous requests are stopped by RequireActor.
func ActorContext(opts ActorOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := actorFromRequest(r, opts)
			if err != nil {
				logger.From(r.Context()).Warn("actor rejected", "error", err, "path", r.URL.Path)
				if appErr, ok := internal.IsAppError(err); ok {
					writeAppError(w, appErr)
				} else {
					writeAppError(w, internal.ErrInvalidToken)
				}
				return
			}
			if userID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := internal.ContextWithUserID(r.Context(), userID)
			ctx = logger.With(ctx, "actor_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromRequest(r *http.Request, opts ActorOptions) (int64, error) {
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		scheme, token, found := strings.Cut(authz, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return 0, internal.ErrInvalidToken.WithMessagef("authorization header must be a bearer token")
		}
		if opts.Verifier == nil {
			return 0, internal.ErrInvalidToken.WithMessagef("bearer tokens are not accepted")
		}
		return opts.Verifier.Verify(strings.TrimSpace(token))
	}

	if !opts.TrustActorHeader {
		return 0, nil
	}
	raw := strings.TrimSpace(r.Header.Get(ActorHeader))
	if raw == "" {
		return 0, nil
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, internal.NewValidationError("X-User-ID must be a positive integer", internal.ErrCodeValidationFailed)
	}
	return userID, nil
}

// RequireActor rejects requests that reached it without an acting user.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := internal.UserIDFromContext(r.Context()); !ok {
			logger.From(r.Context()).Warn("request without acting user", "path", r.URL.Path)
			writeAppError(w, internal.ErrMissingActor)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAppError(w http.ResponseWriter, appErr *internal.AppError) {
	status, body := appErr.ToHTTPResponse()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
