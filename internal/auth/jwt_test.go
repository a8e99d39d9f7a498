package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/models"
)

const testKey = "test-secret-key-for-jwt-tests"

func rider() *models.User {
	return &models.User{ID: uuid.New(), Email: "rider@example.com"}
}

func sign(t *testing.T, claims *sessionClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestGenerateTokenRoundTrip(t *testing.T) {
	InitJWTKey([]byte(testKey))
	user := rider()

	token, expiry, err := GenerateToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), expiry, 5*time.Second)

	session, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, user.Email, session.Email)
	assert.WithinDuration(t, expiry, session.ExpiresAt, time.Second)
}

func TestGenerateTokenRequiresPersistedUser(t *testing.T) {
	InitJWTKey([]byte(testKey))

	for name, user := range map[string]*models.User{
		"nil user":   nil,
		"missing id": {Email: "rider@example.com"},
	} {
		t.Run(name, func(t *testing.T) {
			token, _, err := GenerateToken(user)
			assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
			assert.Empty(t, token)
		})
	}
}

func TestValidateTokenRejections(t *testing.T) {
	InitJWTKey([]byte(testKey))
	valid, _, err := GenerateToken(rider())
	require.NoError(t, err)

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "not.a.valid.jwt.token"},
		{name: "tampered", token: valid + "tampered"},
		{name: "other key", token: sign(t, &sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: uuid.NewString(), Issuer: issuer, ExpiresAt: future,
		}}, "another-key")},
		{name: "expired", token: sign(t, &sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: uuid.NewString(), Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}, testKey)},
		{name: "foreign issuer", token: sign(t, &sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: uuid.NewString(), Issuer: "someone-else", ExpiresAt: future,
		}}, testKey)},
		{name: "subject is not a uuid", token: sign(t, &sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "driver-42", Issuer: issuer, ExpiresAt: future,
		}}, testKey)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := ValidateToken(tt.token)
			assert.Nil(t, session)
			assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
		})
	}
}

func TestInitJWTKeyInvalidatesEarlierTokens(t *testing.T) {
	InitJWTKey([]byte("first-key"))
	token, _, err := GenerateToken(rider())
	require.NoError(t, err)

	InitJWTKey([]byte("second-key"))
	_, err = ValidateToken(token)
	assert.Error(t, err)
}
