package lifecycle

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSigner_RoundTrip(t *testing.T) {
	s, err := NewStateSigner("secret", time.Minute)
	require.NoError(t, err)

	token, err := s.Sign(StateClaims{ProviderID: "p1", Origin: "/settings", UserID: "alice"})
	require.NoError(t, err)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", claims.ProviderID)
	assert.Equal(t, "/settings", claims.Origin)
	assert.Equal(t, "alice", claims.UserID)
	assert.NotEmpty(t, claims.Nonce)

	other, err := s.Sign(StateClaims{ProviderID: "p1"})
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "every state carries a fresh nonce")
}

func TestStateSigner_Rejects(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewStateSigner("secret", time.Minute)
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	token, err := s.Sign(StateClaims{ProviderID: "p1"})
	require.NoError(t, err)

	t.Run("Expired", func(t *testing.T) {
		late := *s
		late.now = func() time.Time { return now.Add(2 * time.Minute) }
		_, err := late.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other, err := NewStateSigner("other", time.Minute)
		require.NoError(t, err)
		other.now = s.now
		_, err = other.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("Tampered", func(t *testing.T) {
		_, err := s.Parse(token[:len(token)-2] + "xx")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, StateClaims{
			ProviderID: "p1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = s.Parse(unsigned)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("MissingExpiry", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, StateClaims{ProviderID: "p1"}).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = s.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestStateSigner_Validation(t *testing.T) {
	_, err := NewStateSigner("", time.Minute)
	assert.Error(t, err)

	s, err := NewStateSigner("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, s.ttl)

	_, err = s.Sign(StateClaims{})
	assert.Error(t, err)
}
