package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "campus-test"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("u1", RoleAdmin, testIssuer, testKey, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.ExpiresAt, 2*time.Second)

	claims, err := Parse(tok.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestParseRejects(t *testing.T) {
	good, err := Issue("u1", RoleStudent, testIssuer, testKey, time.Minute)
	require.NoError(t, err)
	expired, err := Issue("u1", RoleStudent, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)

	_, err = Parse(good.AccessToken, "other-key", testIssuer)
	assert.Error(t, err, "wrong key")
	_, err = Parse(good.AccessToken, testKey, "other-issuer")
	assert.Error(t, err, "wrong issuer")
	_, err = Parse(expired.AccessToken, testKey, testIssuer)
	assert.Error(t, err, "expired")
	_, err = Parse("not-a-token", testKey, testIssuer)
	assert.Error(t, err, "garbage")

	_, err = Issue("", RoleStudent, testIssuer, testKey, time.Minute)
	assert.Error(t, err)
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Bearer(testKey, testIssuer))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c))
	})
	r.GET("/admin", RequireRole(RoleAdmin, RoleSuperadmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func call(t *testing.T, r http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearerMiddleware(t *testing.T) {
	r := newRouter()
	tok, err := Issue("student-7", RoleStudent, testIssuer, testKey, time.Minute)
	require.NoError(t, err)

	w := call(t, r, "/me", tok.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student-7", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call(t, r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, r, "/me", "garbage").Code)
}

func TestRequireRole(t *testing.T) {
	r := newRouter()
	for role, want := range map[string]int{
		RoleStudent:    http.StatusForbidden,
		RoleAdmin:      http.StatusNoContent,
		RoleSuperadmin: http.StatusNoContent,
	} {
		tok, err := Issue("u", role, testIssuer, testKey, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, call(t, r, "/admin", tok.AccessToken).Code, role)
	}
}

func TestCurrentUserIDWithoutClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, CurrentUserID(c))
}
