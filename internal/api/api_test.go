package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/auth"
	"github.com/ammar1510/rideshare/internal/booking"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/directory"
	"github.com/ammar1510/rideshare/internal/messaging"
	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/notifications"
	"github.com/ammar1510/rideshare/internal/realtime"
	"github.com/ammar1510/rideshare/internal/websocket"
)

type testAPI struct {
	db     *database.MemoryDB
	hub    *realtime.Hub
	router *gin.Engine
	ws     *websocket.Manager
}

type testUser struct {
	ID    uuid.UUID
	Token string
}

// newTestAPI serves the full route table over the in-memory backend
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	auth.InitJWTKey([]byte("test-secret-key-for-api-tests"))
	gin.SetMode(gin.TestMode)

	db := database.NewMemoryDB()
	hub := realtime.NewHub(nil)
	db.SetPublisher(hub.Publish)

	profiles := directory.New(db, nil)
	messages := messaging.NewService(db)
	store := notifications.NewStore(db, nil)
	manager := websocket.NewManager(hub, messages, store)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Run(ctx)
	t.Cleanup(cancel)

	router := gin.New()
	RegisterRoutes(router, Handlers{
		Auth:          NewAuthHandler(db, profiles),
		Profiles:      NewProfileHandler(profiles),
		Messages:      NewMessageHandler(messages, messaging.NewIndex(db, db, profiles)),
		Notifications: NewNotificationHandler(store),
		Bookings:      NewBookingHandler(booking.NewLifecycle(db, store, profiles)),
		WS:            manager,
		Hub:           hub,
	})
	return &testAPI{db: db, hub: hub, router: router, ws: manager}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// user registers an account and logs it in
func (a *testAPI) user(t *testing.T, email, first, last string) testUser {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/auth/register", "", models.UserRegistration{
		Email: email, Password: "password123", FirstName: first, LastName: last,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/auth/login", "", models.UserLogin{Email: email, Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string              `json:"token"`
		User  models.UserResponse `json:"user"`
	}
	decode(t, w, &resp)
	return testUser{ID: resp.User.ID, Token: resp.Token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code apperr.Code) ErrorResponse {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	var resp ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, code, resp.Code)
	assert.NotEmpty(t, resp.Error)
	return resp
}

type countResponse struct {
	Count int    `json:"count"`
	Label string `json:"label"`
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status   string         `json:"status"`
		Realtime realtime.Stats `json:"realtime"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, realtime.Stats{}, resp.Realtime)
}

func TestRespondErrorHidesUnknownErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/boom", func(c *gin.Context) {
		respondError(c, assert.AnError)
	})
	router.GET("/busy", func(c *gin.Context) {
		respondError(c, apperr.Transient("load thread", assert.AnError))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	resp := assertError(t, w, http.StatusInternalServerError, apperr.CodeUnknown)
	assert.Equal(t, "Internal server error", resp.Error)
	assert.False(t, resp.Retryable)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/busy", nil))
	resp = assertError(t, w, http.StatusServiceUnavailable, apperr.CodeUnavailable)
	assert.Equal(t, "load thread failed", resp.Error)
	assert.True(t, resp.Retryable)
}
