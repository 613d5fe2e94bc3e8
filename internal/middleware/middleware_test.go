package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reportaciudad/internal/auth"
	"reportaciudad/internal/models"
	"reportaciudad/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(tokens *auth.TokenManager) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	protected := r.Group("/", AuthRequired(tokens))
	protected.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUserID(c), "role": CurrentRole(c)})
	})
	protected.GET("/admin", RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func issue(t *testing.T, tokens *auth.TokenManager, role models.Role) string {
	t.Helper()
	token, _, err := tokens.Issue(&models.User{ID: "u-1", Role: role})
	require.NoError(t, err)
	return token
}

func TestAuthRequired(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	r := newRouter(tokens)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"UNAUTHORIZED"`)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, tokens, models.RoleCitizen))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u-1","role":"CIUDADANO"}`, w.Body.String())
}

func TestTokenFromQuery(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	w := httptest.NewRecorder()
	newRouter(tokens).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+issue(t, tokens, models.RoleAdmin), nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireStaff(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	r := newRouter(tokens)

	for role, want := range map[models.Role]int{
		models.RoleCitizen:   http.StatusForbidden,
		models.RoleModerator: http.StatusNoContent,
		models.RoleAdmin:     http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, tokens, role))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com"}), SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(3)
	r := gin.New()
	r.POST("/login", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 200, 429}, codes)

	assert.True(t, l.Allow("10.0.0.2"), "other IPs have their own bucket")
}

type accounts map[string]*models.User

func (a accounts) Get(_ context.Context, id string) (*models.User, error) {
	if id == "boom" {
		return nil, errors.New("db down")
	}
	u, ok := a[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func TestActiveAccountRechecksStaff(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	users := accounts{}
	r := gin.New()
	r.GET("/admin", AuthRequired(tokens), ActiveAccount(users), RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	call := func(id string) *httptest.ResponseRecorder {
		token, _, err := tokens.Issue(&models.User{ID: id, Role: models.RoleModerator})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	users["mod"] = &models.User{ID: "mod", Role: models.RoleModerator, Active: true}
	assert.Equal(t, http.StatusNoContent, call("mod").Code)

	// 令牌仍有效，但账号已停用
	users["mod"].Active = false
	w := call("mod")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"ACCOUNT_DISABLED"`)

	// 角色被降级为市民
	users["mod"] = &models.User{ID: "mod", Role: models.RoleCitizen, Active: true}
	w = call("mod")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"FORBIDDEN"`)

	assert.Equal(t, http.StatusUnauthorized, call("gone").Code)
	assert.Equal(t, http.StatusInternalServerError, call("boom").Code)
}
