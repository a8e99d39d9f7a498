package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/auth"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/directory"
	"github.com/ammar1510/rideshare/internal/models"
)

// AuthHandler handles authentication routes
type AuthHandler struct {
	DB       database.UserRepository
	Profiles *directory.Directory
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db database.UserRepository, profiles *directory.Directory) *AuthHandler {
	return &AuthHandler{DB: db, Profiles: profiles}
}

func (h *AuthHandler) response(c *gin.Context, user *models.User) models.UserResponse {
	resp := models.UserResponse{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}
	profile, err := h.Profiles.Get(c.Request.Context(), user.ID)
	if err != nil {
		log.Warn("Profile of %s unavailable: %v", user.ID, err)
	} else {
		resp.Profile = profile
	}
	return resp
}

// Register creates a user and its profile
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.UserRegistration
	if !bindJSON(c, &input) {
		return
	}

	hashedPassword, err := auth.HashPassword(input.Password)
	if err != nil {
		log.Error("Failed to hash password: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to process password", Code: apperr.CodeInternal})
		return
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	user, err := h.DB.CreateUser(c.Request.Context(), email, hashedPassword,
		strings.TrimSpace(input.FirstName), strings.TrimSpace(input.LastName))
	if errors.Is(err, database.ErrUserAlreadyExists) {
		respondError(c, apperr.ErrUserAlreadyExists)
		return
	}
	if err != nil {
		respondError(c, apperr.Transient("create user", err))
		return
	}

	log.Info("User registered: %s", user.ID)
	c.JSON(http.StatusCreated, h.response(c, user))
}

// Login exchanges credentials for a token
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.UserLogin
	if !bindJSON(c, &input) {
		return
	}

	user, err := h.DB.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(input.Email)))
	if errors.Is(err, database.ErrUserNotFound) {
		respondError(c, apperr.Unauthorized("Invalid credentials"))
		return
	}
	if err != nil {
		respondError(c, apperr.Transient("get user", err))
		return
	}

	if !auth.CheckPasswordHash(input.Password, user.PasswordHash) {
		respondError(c, apperr.Unauthorized("Invalid credentials"))
		return
	}

	token, expiry, err := auth.GenerateToken(user)
	if err != nil {
		log.Error("Failed to generate token for %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate token", Code: apperr.CodeInternal})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"expiry": expiry,
		"user":   h.response(c, user),
	})
}

// GetMe returns the current user with their profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}

	user, err := h.DB.GetUserByID(c.Request.Context(), userID)
	if errors.Is(err, database.ErrUserNotFound) {
		respondError(c, apperr.ErrUserNotFound)
		return
	}
	if err != nil {
		respondError(c, apperr.Transient("get user", err))
		return
	}

	c.JSON(http.StatusOK, h.response(c, user))
}

// ProfileHandler serves the participant directory
type ProfileHandler struct {
	Profiles *directory.Directory
}

func NewProfileHandler(profiles *directory.Directory) *ProfileHandler {
	return &ProfileHandler{Profiles: profiles}
}

// Get returns a user's public profile
func (h *ProfileHandler) Get(c *gin.Context) {
	if _, ok := viewer(c); !ok {
		return
	}
	id, ok := idParam(c, "id", "user")
	if !ok {
		return
	}

	profile, err := h.Profiles.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateMe edits the caller's own profile
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	var update models.ProfileUpdate
	if !bindJSON(c, &update) {
		return
	}

	profile, err := h.Profiles.Update(c.Request.Context(), userID, update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
