package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cafesys/internal/audit"
	"cafesys/internal/auth"
	"cafesys/internal/config"
	"cafesys/internal/credits"
	"cafesys/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	engine *gin.Engine
	store  *credits.MemoryStore
	audit  *audit.MemoryRepo
	tokens *auth.Manager
}

func newTestEnv(t *testing.T, uid int64, role string) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	store := credits.NewMemoryStore()
	repo := audit.NewMemoryRepo()
	h := Handlers{
		Credits: credits.NewService(store, audit.NewService(repo), credits.Config{}),
		Tokens:  tokens,
	}

	r := gin.New()
	r.POST("/v1/auth/refresh", h.RefreshToken)
	v1 := r.Group("/v1", func(c *gin.Context) {
		if uid > 0 {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), uid, role))
		}
		c.Next()
	})
	v1.POST("/credits/refill", h.Refill)
	v1.POST("/credits/import", h.Import)
	v1.GET("/credits/history", h.History)
	v1.GET("/credits/codes/:code", rbac.RequireAnyRole(rbac.RoleBoard), h.CodeStatus)

	return testEnv{engine: r, store: store, audit: repo, tokens: tokens}
}

func (e testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	e.engine.ServeHTTP(w, req)
	return w
}

func TestRefill(t *testing.T) {
	env := newTestEnv(t, 1, rbac.RoleMember)
	env.store.PutProfile(credits.Balance{UserID: 1, Amount: 10, Currency: "SEK"})
	env.store.AddBalanceCode(credits.BalanceCode{Code: "ABC", Value: 100, Currency: "SEK"})

	w := env.do(http.MethodPost, "/v1/credits/refill", `{"code":"ABC"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bal credits.Balance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, int64(110), bal.Amount)
	assert.Equal(t, "SEK", bal.Currency)

	w = env.do(http.MethodPost, "/v1/credits/refill", `{"code":"ABC"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "reused code")
	assert.JSONEq(t, `{"error":"invalid code"}`, w.Body.String())

	evs := env.audit.Events()
	require.Len(t, evs, 2)
	assert.NotEmpty(t, evs[0].IPAddress, "client ip recorded")
}

func TestRefill_BadInput(t *testing.T) {
	env := newTestEnv(t, 1, rbac.RoleMember)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/v1/credits/refill", `nope`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/v1/credits/refill", `{"code":"  "}`).Code)
}

func TestRefill_RequiresUser(t *testing.T) {
	env := newTestEnv(t, 0, "")
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/v1/credits/refill", `{"code":"ABC"}`).Code)
}

func TestImportAndHistory(t *testing.T) {
	env := newTestEnv(t, 1, rbac.RoleMember)
	env.store.PutProfile(credits.Balance{UserID: 1, Currency: "SEK"})
	env.store.AddOldCard(credits.OldCoffeeCard{CardID: 77, Code: 123456, Left: 4, Expires: time.Now().Add(24 * time.Hour)})

	w := env.do(http.MethodPost, "/v1/credits/import", `{"code":"77123456"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/v1/credits/import", `{"code":"77123456"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "already imported")

	w = env.do(http.MethodGet, "/v1/credits/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var hist credits.History
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Len(t, hist.Cards, 1)
	assert.Empty(t, hist.Codes)
}

func TestCodeStatus(t *testing.T) {
	env := newTestEnv(t, 2, rbac.RoleBoard)
	env.store.AddBalanceCode(credits.BalanceCode{Code: "FRESH", Value: 100, Currency: "SEK"})

	w := env.do(http.MethodGet, "/v1/credits/codes/FRESH", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"kind":"balance_code","used":false}`, w.Body.String())

	w = env.do(http.MethodGet, "/v1/credits/codes/1234560000015?kind=legacy", "")
	assert.JSONEq(t, `{"kind":"old_card","used":true}`, w.Body.String())

	w = env.do(http.MethodGet, "/v1/credits/codes/FRESH?kind=gift", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCodeStatus_MembersForbidden(t *testing.T) {
	env := newTestEnv(t, 1, rbac.RoleMember)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/v1/credits/codes/FRESH", "").Code)
}

func TestRefreshToken(t *testing.T) {
	env := newTestEnv(t, 0, "")
	pair, err := env.tokens.IssuePair(time.Now(), 5, rbac.RoleBoard)
	require.NoError(t, err)

	w := env.do(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+pair.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	claims, err := env.tokens.Verify(out["access_token"], auth.TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(5), claims.UserID)
	assert.Equal(t, rbac.RoleBoard, claims.Role)

	// An access token is not a refresh token.
	w = env.do(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+pair.AccessToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/v1/auth/refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
