package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const userContextKey = contextKey("user")

const RoleAdmin = "ADMIN"

type User struct {
	ID    string
	Email string
	Roles []string
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// Claims of the bearer tokens issued by the identity service.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (app *Application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")

				app.serverErrorResponse(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (app *Application) requireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := app.parseBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			app.contextGetLogger(r).Info("rejected bearer token", "error", err)
			app.unauthorizedAccessResponse(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *Application) requireAdmin(next http.Handler) http.Handler {
	return app.requireAuthentication(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := app.contextGetUser(r)
		if !user.HasRole(RoleAdmin) {
			app.contextGetLogger(r).Warn("admin route accessed without admin role")
			app.forbiddenResponse(w, r)
			return
		}

		next.ServeHTTP(w, r)
	}))
}

func (app *Application) parseBearerToken(header string) (*User, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return nil, errors.New("missing bearer token")
	}

	var claims Claims

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return []byte(app.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &User{
		ID:    claims.Subject,
		Email: claims.Email,
		Roles: claims.Roles,
	}, nil
}

// contextGetUser must only be used behind requireAuthentication.
func (app *Application) contextGetUser(r *http.Request) *User {
	user, ok := r.Context().Value(userContextKey).(*User)
	if !ok {
		panic("missing user value in request context")
	}

	return user
}

func (app *Application) contextGetLogger(r *http.Request) *slog.Logger {
	logger := app.logger.With("request_id", middleware.GetReqID(r.Context()))

	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		logger = logger.With("trace_id", sc.TraceID().String())
	}

	if user, ok := r.Context().Value(userContextKey).(*User); ok {
		logger = logger.With("user_id", user.ID)
	}

	return logger
}
