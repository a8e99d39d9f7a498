package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	testCases := []struct {
		name     string
		password string
	}{
		{name: "Common password", password: "password123"},
		{name: "Empty password", password: ""},
		{name: "Long password", password: "thisissuperlongpasswordwithmanycharacters123456789!@#$%^&*()"},
		{name: "Special characters", password: "p@$$w0rd!#%&*()_+"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := HashPassword(tc.password)
			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tc.password, hash)

			assert.True(t, CheckPasswordHash(tc.password, hash))
			assert.False(t, CheckPasswordHash(tc.password+"wrong", hash))
		})
	}
}

func TestCheckPasswordHash(t *testing.T) {
	password := "testpassword"
	hash, err := HashPassword(password)
	require.NoError(t, err)

	testCases := []struct {
		name     string
		password string
		hash     string
		expected bool
	}{
		{name: "Correct password", password: password, hash: hash, expected: true},
		{name: "Incorrect password", password: "wrongpassword", hash: hash, expected: false},
		{name: "Empty password", password: "", hash: hash, expected: false},
		{name: "Invalid hash", password: password, hash: "invalid$hash$format", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CheckPasswordHash(tc.password, tc.hash))
		})
	}
}
