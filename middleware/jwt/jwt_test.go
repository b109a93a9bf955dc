package jwt

import (
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	tm := NewTokenManager("secret", 1)

	token, err := tm.GenerateToken(1001, "Ada", []string{"pm.chat.create_channel"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), claims.UserID)
	assert.Equal(t, "Ada", claims.DisplayName)
	assert.True(t, claims.HasPermission("pm.chat.create_channel"))
	assert.False(t, claims.HasPermission("pm.chat.delete_channel"))
}

func TestHasPermissionWildcard(t *testing.T) {
	c := &Claims{Permissions: []string{"pm.chat.*"}}
	assert.True(t, c.HasPermission("pm.chat.pin_message"))
}

func TestParseToken_Errors(t *testing.T) {
	tm := NewTokenManager("secret", 1)

	t.Run("garbage", func(t *testing.T) {
		_, err := tm.ParseToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other", 1)
		token, err := other.GenerateToken(1, "x", nil)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		issued := NewTokenManager("secret", 1)
		issued.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := issued.GenerateToken(1, "x", nil)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		issued := NewTokenManager("secret", 1)
		issued.now = func() time.Time { return time.Now().Add(30 * time.Minute) }
		token, err := issued.GenerateToken(1, "x", nil)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("missing user id", func(t *testing.T) {
		token, err := tm.GenerateToken(0, "x", nil)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, Claims{UserID: 1})
		s, err := token.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tm.ParseToken(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestConcurrentTokenGeneration(t *testing.T) {
	tm := NewTokenManager("secret", 1)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := range 50 {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			token, err := tm.GenerateToken(id, "u", nil)
			if err != nil {
				errs <- err
				return
			}
			claims, err := tm.ParseToken(token)
			if err != nil {
				errs <- err
				return
			}
			if claims.UserID != id {
				errs <- assert.AnError
			}
		}(int64(i + 1))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
}
