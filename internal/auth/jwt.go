package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/models"
)

const (
	// TokenTTL is how long an issued session token stays valid
	TokenTTL = 24 * time.Hour
	issuer   = "rideshare"
)

var (
	// replaced by InitJWTKey once configuration is loaded
	signingKey = []byte(os.Getenv("JWT_SECRET"))
	log        = logger.New("auth")
)

// InitJWTKey sets the HMAC key used to sign and verify session tokens
func InitJWTKey(key []byte) {
	signingKey = key
}

// sessionClaims carries the user id in the standard subject claim
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Session is the identity recovered from a verified token
type Session struct {
	UserID    uuid.UUID
	Email     string
	ExpiresAt time.Time
}

// GenerateToken issues a signed session token for user
func GenerateToken(user *models.User) (string, time.Time, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", time.Time{}, apperr.InvalidArg("a persisted user is required to issue a token")
	}

	now := time.Now()
	expiry := now.Add(TokenTTL)
	claims := &sessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.CodeInternal, "sign token", err)
	}
	return signed, expiry, nil
}

// ValidateToken verifies tokenString and returns the session it names.
// Every failure is UNAUTHENTICATED.
func ValidateToken(tokenString string) (*Session, error) {
	if tokenString == "" {
		return nil, apperr.Unauthorized("token is empty")
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperr.Wrap(apperr.CodeUnauthenticated, "token expired", err)
		}
		log.Debug("Rejected token: %v", err)
		return nil, apperr.Wrap(apperr.CodeUnauthenticated, "invalid token", err)
	}
	if !token.Valid || claims.Issuer != issuer {
		return nil, apperr.Unauthorized("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return nil, apperr.Unauthorized("token does not name a user")
	}

	s := &Session{UserID: userID, Email: claims.Email}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
