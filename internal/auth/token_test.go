package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"one-plate/internal/errs"
)

var secret = []byte("test-secret")

func TestInspect(t *testing.T) {
	tok, err := Issue(secret, "user-1", time.Hour)
	require.NoError(t, err)

	c := Inspect(tok)
	assert.False(t, c.Opaque)
	assert.Equal(t, "user-1", c.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), c.ExpiresAt, 5*time.Second)

	assert.True(t, Inspect("not-a-jwt").Opaque)
}

func TestCheck(t *testing.T) {
	tok, err := Issue(secret, "user-1", time.Minute)
	require.NoError(t, err)

	assert.NoError(t, Check(tok, time.Now()))
	assert.NoError(t, Check("opaque-token", time.Now()))

	err = Check(tok, time.Now().Add(2*time.Minute))
	assert.True(t, errs.Is(err, errs.Unauthorized))

	err = Check("", time.Now())
	assert.True(t, errs.Is(err, errs.Unauthorized))
}

func TestVerify(t *testing.T) {
	tok, err := Issue(secret, "user-1", time.Hour)
	require.NoError(t, err)

	sub, err := Verify(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = Verify([]byte("other"), tok)
	assert.Error(t, err)

	expired, err := Issue(secret, "user-1", -time.Hour)
	require.NoError(t, err)
	_, err = Verify(secret, expired)
	assert.Error(t, err)
}
