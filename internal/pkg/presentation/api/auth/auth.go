package auth

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/accounts"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
)

var tracer = otel.Tracer("aquasmart/authz")

//go:embed authz.rego
var DefaultPolicy string

type userContextKey struct{ name string }

var userCtxKey = &userContextKey{"user"}

// User is the caller as described by a verified token.
type User struct {
	ID      uint   `json:"id"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

type Enticator func(http.Handler) http.Handler

// NewAuthenticator returns a middleware that asks the rego policy whether the
// caller may perform the request. It expects jwtauth.Verifier to run first.
func NewAuthenticator(ctx context.Context, policies io.Reader) (Enticator, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	query, err := rego.New(
		rego.Query("x = data.aquasmart.authz.allow"),
		rego.Module("authz.rego", string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error

			logger := logging.GetFromContext(r.Context())

			ctx, span := tracer.Start(r.Context(), "check-auth")
			defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

			user, hasUser := userFromToken(ctx)

			input := map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			}
			if hasUser {
				u := map[string]any{"id": int64(user.ID), "role": user.Role}
				if user.Purpose != "" {
					u["purpose"] = user.Purpose
				}
				input["user"] = u
			}

			results, err := query.Eval(ctx, rego.EvalInput(input))
			if err != nil {
				logger.Error().Err(err).Msg("opa eval failed")
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			if len(results) == 0 {
				err = errors.New("opa query could not be satisfied")
				logger.Error().Err(err).Msg("auth failed")
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			allowed, ok := results[0].Bindings["x"].(bool)
			if !ok || !allowed {
				err = errors.New("authorization failed")
				logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Uint("userID", user.ID).Msg(err.Error())

				if !hasUser || user.Purpose != "" {
					writeError(w, http.StatusUnauthorized, "Unauthorized")
				} else {
					writeError(w, http.StatusForbidden, "Forbidden")
				}
				return
			}

			if hasUser {
				r = r.WithContext(WithUser(r.Context(), user))
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func userFromToken(ctx context.Context) (User, bool) {
	token, claims, err := jwtauth.FromContext(ctx)
	if err != nil || token == nil {
		return User{}, false
	}

	id, ok := accounts.UserID(claims)
	if !ok {
		return User{}, false
	}

	user := User{ID: id}
	user.Email, _ = claims[accounts.ClaimEmail].(string)
	user.Role, _ = claims[accounts.ClaimRole].(string)
	user.Purpose, _ = claims[accounts.ClaimPurpose].(string)

	return user, true
}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// GetUserFromContext returns the authenticated caller, if any.
func GetUserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userCtxKey).(User)
	return user, ok
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
