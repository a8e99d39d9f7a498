package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/rideshare/internal/auth"
	"github.com/ammar1510/rideshare/internal/models"
)

// setupAuthTestRouter echoes the identity the middleware put in the context
func setupAuthTestRouter(middleware gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware)
	router.GET("/test", func(c *gin.Context) {
		userID, _ := c.Get("userID")
		email, _ := c.Get("email")
		c.JSON(http.StatusOK, gin.H{"userID": userID, "email": email})
	})
	return router
}

func testToken(t *testing.T) (*models.User, string) {
	t.Helper()
	auth.InitJWTKey([]byte("test-secret-key-for-api-tests"))
	user := &models.User{ID: uuid.New(), Email: "test@example.com"}
	token, _, err := auth.GenerateToken(user)
	require.NoError(t, err)
	return user, token
}

func TestAuthMiddleware(t *testing.T) {
	user, token := testToken(t)
	router := setupAuthTestRouter(AuthMiddleware())

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "no token", header: "", wantStatus: http.StatusUnauthorized},
		{name: "invalid token format", header: "Bearer invalid.token.string", wantStatus: http.StatusUnauthorized},
		{name: "missing Bearer prefix", header: token, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var response struct {
				UserID string `json:"userID"`
				Email  string `json:"email"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, user.ID.String(), response.UserID)
			assert.Equal(t, user.Email, response.Email)
		})
	}
}

func TestTokenAuthMiddleware(t *testing.T) {
	user, token := testToken(t)
	router := setupAuthTestRouter(TokenAuthMiddleware())

	tests := []struct {
		name       string
		query      string
		header     string
		wantStatus int
	}{
		{name: "token in query", query: "?token=" + token, wantStatus: http.StatusOK},
		{name: "token in header", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "header wins over query", query: "?token=invalid", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "no token", wantStatus: http.StatusUnauthorized},
		{name: "invalid query token", query: "?token=invalid.token", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), user.ID.String())
			}
		})
	}
}
