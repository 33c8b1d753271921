package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
	persona "github.com/pilab-dev/persona-client"
	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) ValidateRequest(ctx context.Context, in persona.InboundRequest, scope string) (*persona.Validation, error) {
	args := m.Called(ctx, in, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*persona.Validation), args.Error(1)
}

var testClaims = &persona.Claims{Subject: "user-1", ClientID: "client-1", Scopes: []string{"read"}}

type outcome struct {
	name       string
	validation *persona.Validation
	err        error
	status     int
	code       string
	challenge  string
}

func outcomes() []outcome {
	return []outcome{
		{"valid", &persona.Validation{Result: perrors.Valid, Claims: testClaims}, nil, http.StatusOK, "", ""},
		{"no token", nil, perrors.ErrNoTokenSupplied, http.StatusUnauthorized, "missing_token", "Bearer"},
		{"malformed header", nil, perrors.ErrMalformedAuthHeader, http.StatusUnauthorized, "invalid_authorization_header", `Bearer error="invalid_token"`},
		{"invalid", &persona.Validation{Result: perrors.InvalidToken}, nil, http.StatusUnauthorized, "invalid_token", `Bearer error="invalid_token"`},
		{"expired", &persona.Validation{Result: perrors.Expired}, nil, http.StatusUnauthorized, "token_expired", `Bearer error="invalid_token"`},
		{"insufficient scope", &persona.Validation{Result: perrors.InsufficientScope}, nil, http.StatusForbidden, "insufficient_scope", `Bearer error="insufficient_scope"`},
		{"remote unavailable", &persona.Validation{Result: perrors.RemoteUnavailable}, nil, http.StatusServiceUnavailable, "validation_unavailable", ""},
		{"empty response", &persona.Validation{Result: perrors.EmptyResponse}, nil, http.StatusServiceUnavailable, "validation_unavailable", ""},
	}
}

func validatorFor(tc outcome) *MockValidator {
	v := new(MockValidator)
	v.On("ValidateRequest", mock.Anything, mock.Anything, "read").Return(tc.validation, tc.err)
	return v
}

func assertOutcome(t *testing.T, tc outcome, rec *httptest.ResponseRecorder) {
	t.Helper()

	assert.Equal(t, tc.status, rec.Code)
	assert.Equal(t, tc.challenge, rec.Header().Get("WWW-Authenticate"))

	if tc.status == http.StatusOK {
		assert.Equal(t, "user-1", rec.Body.String())
		return
	}

	var body Rejection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, tc.code, body.Code)
	assert.NotEmpty(t, body.Msg)
}

func newRequest() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer abc")
	return req
}

func TestRequireToken(t *testing.T) {
	for _, tc := range outcomes() {
		t.Run(tc.name, func(t *testing.T) {
			v := validatorFor(tc)
			handler := RequireToken(v, "read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims, ok := ClaimsFromContext(r.Context())
				require.True(t, ok)
				_, _ = w.Write([]byte(claims.Subject))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, newRequest())

			assertOutcome(t, tc, rec)
			v.AssertExpectations(t)
		})
	}
}

func TestRequireToken_PassesInboundRequest(t *testing.T) {
	v := new(MockValidator)
	v.On("ValidateRequest", mock.Anything, mock.MatchedBy(func(in persona.InboundRequest) bool {
		return in.Header.Get("Authorization") == "Bearer abc" && in.Query.Get("xid") == "req-9"
	}), "").Return(&persona.Validation{Result: perrors.Valid, Claims: testClaims}, nil)

	handler := RequireToken(v, "")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected?xid=req-9", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	v.AssertExpectations(t)
}

func TestEchoRequireToken(t *testing.T) {
	for _, tc := range outcomes() {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			e.Use(EchoRequireToken(validatorFor(tc), "read"))
			e.GET("/protected", func(c echo.Context) error {
				claims, ok := c.Get(ClaimsKey).(*persona.Claims)
				require.True(t, ok)
				fromCtx, ok := ClaimsFromContext(c.Request().Context())
				require.True(t, ok)
				assert.Same(t, claims, fromCtx)
				return c.String(http.StatusOK, claims.Subject)
			})

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, newRequest())

			assertOutcome(t, tc, rec)
		})
	}
}

func TestGinRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, tc := range outcomes() {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(GinRequireToken(validatorFor(tc), "read"))
			r.GET("/protected", func(c *gin.Context) {
				claims, ok := GinClaims(c)
				require.True(t, ok)
				_, ok = ClaimsFromContext(c.Request.Context())
				require.True(t, ok)
				c.String(http.StatusOK, claims.Subject)
			})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, newRequest())

			assertOutcome(t, tc, rec)
		})
	}
}

func TestClaimsFromContext_Missing(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)
}
