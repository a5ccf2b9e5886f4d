package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinohall/cinema-ticketing/internal/config"
	"github.com/kinohall/cinema-ticketing/internal/utils"
)

const testSecret = "test-jwt-secret"

func runWithAuth(t *testing.T, authHeader string) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	h := JWTAuth(testSecret)(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, c, reached
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	access, err := utils.NewAccessToken(testSecret, 7, "CUSTOMER", 15)
	require.NoError(t, err)

	rec, c, reached := runWithAuth(t, "Bearer "+access.Token)
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(7), UserID(c))
	assert.Equal(t, "CUSTOMER", c.Get("role"))
}

func TestJWTAuthRejectsMissingOrBadToken(t *testing.T) {
	rec, c, reached := runWithAuth(t, "")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, UserID(c))

	rec, _, reached = runWithAuth(t, "Bearer not-a-token")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token signed with a different secret.
	access, err := utils.NewAccessToken("other-secret", 7, "CUSTOMER", 15)
	require.NoError(t, err)
	rec, _, reached = runWithAuth(t, "Bearer "+access.Token)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	handler := RequireRole("ADMIN")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	run := func(role any) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if role != nil {
			c.Set("role", role)
		}
		require.NoError(t, handler(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, run("ADMIN").Code)
	assert.Equal(t, http.StatusForbidden, run("CUSTOMER").Code)
	assert.Equal(t, http.StatusForbidden, run(nil).Code)
	assert.Equal(t, http.StatusForbidden, run(123).Code)
}

func TestTokenBucketPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	err := mw(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestBuildRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/orders")
	c.Set("user_id", uint64(99))

	cfg := config.RateLimitConfig{Prefix: "rl"}

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.1.2.3", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:99", buildRateKey(cfg, c))

	cfg.KeyStrategy = "route"
	assert.Equal(t, "rl:route:POST /v1/orders", buildRateKey(cfg, c))

	cfg.KeyStrategy = "anything-else"
	assert.Equal(t, "rl:ip:10.1.2.3:user:99:route:POST /v1/orders", buildRateKey(cfg, c))
}
