package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken("u1", "ann", []string{RoleReader})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.True(t, claims.HasRole(RoleReader))
	assert.False(t, claims.HasRole(RoleAdmin))

	_, err = NewJWTManager("other", time.Hour).ValidateToken(token)
	assert.Error(t, err)

	expired := NewJWTManager("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.GenerateToken("u1", "ann", nil)
	require.NoError(t, err)
	_, err = m.ValidateToken(old)
	assert.Error(t, err)
}

func TestAdminHoldsEveryRole(t *testing.T) {
	c := &Claims{Roles: []string{RoleAdmin}}
	assert.True(t, c.HasRole(RoleReader))
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = BearerToken("Basic abc")
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("secret", time.Hour)
	am := NewAuthMiddleware(m)

	r := gin.New()
	r.GET("/read", am.RequireAuth(), am.RequireRole(RoleReader), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin", am.RequireAuth(), am.RequireRole(RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	reader, err := m.GenerateToken("u1", "ann", []string{RoleReader})
	require.NoError(t, err)

	call := func(path, token string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, call("/read", ""))
	assert.Equal(t, http.StatusUnauthorized, call("/read", "garbage"))
	assert.Equal(t, http.StatusOK, call("/read", reader))
	assert.Equal(t, http.StatusForbidden, call("/admin", reader))
}
