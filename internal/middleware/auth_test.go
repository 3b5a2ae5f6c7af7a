package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"activamigos-chat/internal/auth"
	"activamigos-chat/internal/models"
)

func setupRouter(tokens TokenValidator, roles ...models.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := []gin.HandlerFunc{AuthMiddleware(tokens)}
	if len(roles) > 0 {
		chain = append(chain, RequireRole(roles...))
	}
	chain = append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetInt64("userID"),
			"username": c.GetString("username"),
			"role":     c.MustGet("role"),
		})
	})
	r.GET("/protected", chain...)
	return r
}

func doRequest(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "test", time.Hour)
	token, err := tokens.Issue(12, "ana", models.RoleOrganizer)
	require.NoError(t, err)
	r := setupRouter(tokens)

	rec := doRequest(r, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(r, "Token "+token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(r, "Bearer not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(r, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user_id":12,"username":"ana","role":"ORGANIZER"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "test", time.Hour)
	r := setupRouter(tokens, models.RoleSuperAdmin)

	userToken, err := tokens.Issue(1, "bob", models.RoleUser)
	require.NoError(t, err)
	rec := doRequest(r, "Bearer "+userToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	adminToken, err := tokens.Issue(2, "root", models.RoleSuperAdmin)
	require.NoError(t, err)
	rec = doRequest(r, "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingRoleDefaultsToUser(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "test", time.Hour)
	token, err := tokens.Issue(3, "cy", "")
	require.NoError(t, err)

	rec := doRequest(setupRouter(tokens, models.RoleUser), "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
}
