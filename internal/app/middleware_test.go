package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/metinatakli/booking-service/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthcheck(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantHealth string
	}{
		{
			name:       "dependencies reachable",
			wantStatus: http.StatusOK,
			wantHealth: "UP",
		},
		{
			name:       "redis unreachable",
			pingErr:    errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: "DOWN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb, redisMock := redismock.NewClientMock()
			if tt.pingErr != nil {
				redisMock.ExpectPing().SetErr(tt.pingErr)
			} else {
				redisMock.ExpectPing().SetVal("PONG")
			}

			app, _ := newTestApplication(func(app *Application) {
				app.redis = rdb
			})

			w, r := executeRequest(t, http.MethodGet, "/healthcheck", nil)
			app.Routes().ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)

			var got api.HealthcheckResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Equal(t, tt.wantHealth, got.Status)
			assert.Equal(t, "test", got.SystemInfo.Environment)
			assert.NoError(t, redisMock.ExpectationsWereMet())
		})
	}
}

func TestOpenAPISpec(t *testing.T) {
	app, _ := newTestApplication()

	w, r := executeRequest(t, http.MethodGet, "/openapi.json", nil)
	app.Routes().ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/v1/bookings")
}

func TestRouterFallbacks(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		url            string
		wantStatus     int
		wantErrMessage string
	}{
		{
			name:           "unknown route",
			method:         http.MethodGet,
			url:            "/api/v1/movies",
			wantStatus:     http.StatusNotFound,
			wantErrMessage: ErrNotFound,
		},
		{
			name:           "unsupported method",
			method:         http.MethodDelete,
			url:            "/healthcheck",
			wantStatus:     http.StatusMethodNotAllowed,
			wantErrMessage: "the DELETE method is not supported for this resource",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApplication()

			w, r := executeRequest(t, tt.method, tt.url, nil)
			app.Routes().ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			checkErrorResponse(t, w, struct {
				wantStatus     int
				wantErrMessage string
			}{
				wantStatus:     tt.wantStatus,
				wantErrMessage: tt.wantErrMessage,
			})
		})
	}
}

func TestRequireAuthentication(t *testing.T) {
	sign := func(method jwt.SigningMethod, claims Claims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testJWTSecret))
		require.NoError(t, err)
		return token
	}

	valid := jwt.RegisteredClaims{Subject: testUserID, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{
			name:       "valid token",
			header:     "Bearer " + sign(jwt.SigningMethodHS256, Claims{RegisteredClaims: valid}),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer token",
			header:     "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			header:     "Bearer not-a-jwt",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token",
			header: "Bearer " + sign(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject:   testUserID,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "token without expiry",
			header:     "Bearer " + sign(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: testUserID}}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unexpected signing method",
			header:     "Bearer " + sign(jwt.SigningMethodHS512, Claims{RegisteredClaims: valid}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "missing subject",
			header: "Bearer " + sign(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			header: "Bearer " + func() string {
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: valid}).SignedString([]byte("other"))
				require.NoError(t, err)
				return token
			}(),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApplication()

			var gotUser *User
			handler := app.requireAuthentication(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = app.contextGetUser(r)
				w.WriteHeader(http.StatusOK)
			}))

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, gotUser)
				assert.Equal(t, testUserID, gotUser.ID)
				return
			}

			assert.Nil(t, gotUser)
			assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			checkErrorResponse(t, w, struct {
				wantStatus     int
				wantErrMessage string
			}{
				wantStatus:     tt.wantStatus,
				wantErrMessage: ErrUnauthorizedAccess,
			})
		})
	}
}

func TestRecoverPanic(t *testing.T) {
	app, _ := newTestApplication()

	handler := app.recoverPanic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
	checkErrorResponse(t, w, struct {
		wantStatus     int
		wantErrMessage string
	}{
		wantStatus:     http.StatusInternalServerError,
		wantErrMessage: ErrInternalServer,
	})
}
