package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/quickmatch-backend/internal/logging"
	"github.com/chachabrian/quickmatch-backend/pkg/utils"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	c.JSON(200, gin.H{"userId": c.GetUint("userId"), "userType": c.GetString("userType")})
}

func token(t *testing.T, id uint, userType string) string {
	t.Helper()
	tok, err := utils.GenerateToken(id, userType, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), whoami)

	tests := []struct {
		name   string
		setup  func(req *http.Request)
		status int
		body   string
	}{
		{
			name:   "bearer header",
			setup:  func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token(t, 5, "client")) },
			status: 200,
			body:   `{"userId":5,"userType":"client"}`,
		},
		{
			name: "query token",
			setup: func(req *http.Request) {
				q := req.URL.Query()
				q.Set("token", token(t, 9, "business"))
				req.URL.RawQuery = q.Encode()
			},
			status: 200,
			body:   `{"userId":9,"userType":"business"}`,
		},
		{
			name:   "missing",
			setup:  func(*http.Request) {},
			status: 401,
		},
		{
			name:   "bad token",
			setup:  func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") },
			status: 401,
		},
		{
			name:   "driver accounts are not parties",
			setup:  func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token(t, 5, "driver")) },
			status: 403,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestAdminKey(t *testing.T) {
	r := gin.New()
	r.POST("/admin", AdminKey("k1"), func(c *gin.Context) { c.Status(204) })

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, 401, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("X-Admin-Key", "k1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, 204, w.Code)

	empty := gin.New()
	empty.POST("/admin", AdminKey(""), func(c *gin.Context) { c.Status(204) })
	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("X-Admin-Key", "")
	w = httptest.NewRecorder()
	empty.ServeHTTP(w, req)
	assert.Equal(t, 401, w.Code)
}

func TestRateLimit_PerUser(t *testing.T) {
	limit, err := RateLimit("2-M", NewMemoryStore(), logging.Discard())
	require.NoError(t, err)

	r := gin.New()
	r.POST("/requests", AuthMiddleware(secret), limit, func(c *gin.Context) { c.Status(201) })

	send := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/requests", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	alice := token(t, 1, "client")
	assert.Equal(t, 201, send(alice).Code)
	w := send(alice)
	assert.Equal(t, 201, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 429, send(alice).Code)

	assert.Equal(t, 201, send(token(t, 2, "client")).Code, "limits are per user")
}

func TestRateLimit_InvalidRate(t *testing.T) {
	_, err := RateLimit("lots", NewMemoryStore(), logging.Discard())
	assert.Error(t, err)
}
