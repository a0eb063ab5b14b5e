package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkvault/internal/auth"
	"github.com/linkvault/internal/models"
	"github.com/linkvault/internal/store"
)

func newAuthFixture(t *testing.T) (*auth.Service, string, *models.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemoryStore()
	svc := auth.NewService(mem, mem, store.SystemClock{}, time.Hour)

	user, err := svc.Register(context.Background(), &models.UserCreateRequest{
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	token, _, err := svc.Issue(context.Background(), user.ID)
	require.NoError(t, err)
	return svc, token, user
}

func TestRequireAuth_AnonymousNeverReachesHandler(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	handlerRan := false
	router := gin.New()
	router.GET("/protected", RequireAuth(svc), func(c *gin.Context) {
		handlerRan = true
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, handlerRan, "protected handler must not run for anonymous requests")
}

func TestRequireAuth_InvalidTokenRejected(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	handlerRan := false
	router := gin.New()
	router.GET("/protected", RequireAuth(svc), func(c *gin.Context) {
		handlerRan = true
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, handlerRan)
}

func TestRequireAuth_ValidTokenAdmitted(t *testing.T) {
	svc, token, user := newAuthFixture(t)

	router := gin.New()
	router.GET("/protected", RequireAuth(svc), func(c *gin.Context) {
		caller := CurrentUser(c)
		require.NotNil(t, caller)
		assert.Equal(t, user.ID, caller.ID)
		assert.Equal(t, token, BearerToken(c))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalAuth_AnonymousProceeds(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	router := gin.New()
	router.GET("/open", OptionalAuth(svc), func(c *gin.Context) {
		assert.Nil(t, CurrentUser(c))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalAuth_AttachesIdentity(t *testing.T) {
	svc, token, user := newAuthFixture(t)

	router := gin.New()
	router.GET("/open", OptionalAuth(svc), func(c *gin.Context) {
		caller := CurrentUser(c)
		require.NotNil(t, caller)
		assert.Equal(t, user.ID, caller.ID)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
