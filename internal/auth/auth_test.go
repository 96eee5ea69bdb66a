package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createService(t *testing.T, secret string) (*AuthService, *time.Time) {
	t.Helper()

	svc, err := NewAuthService(context.Background(), Config{
		Secret:      secret,
		TokenExpiry: time.Hour,
	})
	require.NoError(t, err)

	currentTime := time.Unix(1700000000, 0)
	svc.now = func() time.Time {
		return currentTime
	}

	return svc, &currentTime
}

func TestAuthService(t *testing.T) {
	t.Run("IssueVerifyRoundTrip", func(t *testing.T) {
		svc, _ := createService(t, "server-secret")

		token, err := svc.Issue("u1", "u1@example.com")
		require.NoError(t, err)

		userID, err := svc.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)

		// Second verification is served from the cache.
		userID, err = svc.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		issuer, _ := createService(t, "secret-a")
		verifier, _ := createService(t, "secret-b")

		token, err := issuer.Issue("u1", "")
		require.NoError(t, err)

		_, err = verifier.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		svc, now := createService(t, "server-secret")

		token, err := svc.Issue("u1", "")
		require.NoError(t, err)

		*now = now.Add(2 * time.Hour)

		_, err = svc.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		svc, _ := createService(t, "server-secret")

		_, err := svc.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)

		_, err = svc.Verify("")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("MissingSecret", func(t *testing.T) {
		_, err := NewAuthService(context.Background(), Config{})
		assert.Error(t, err)
	})
}
