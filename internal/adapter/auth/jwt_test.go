package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

const testUser = "7b0e4a0a-4c55-4b5e-9d7e-0d9a4f3c2b11"

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, err := v.Sign(testUser, time.Hour)
	require.NoError(t, err)

	id, err := v.UserID(tok)
	require.NoError(t, err)
	assert.Equal(t, testUser, id)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret")
	past := NewVerifier("s3cret")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.Sign(testUser, time.Hour)
	require.NoError(t, err)

	other, err := NewVerifier("other").Sign(testUser, time.Hour)
	require.NoError(t, err)
	badClaim, err := NewVerifier("s3cret").Sign("not-a-uuid", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{UserIDClaim: testUser}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":     "",
		"garbage":   "abc.def.ghi",
		"expired":   expired,
		"wrong key": other,
		"bad claim": badClaim,
		"alg none":  none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.UserID(tok)
			require.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestVerifier_EmptySecret(t *testing.T) {
	v := NewVerifier("")
	_, err := v.Sign(testUser, 0)
	require.Error(t, err)
	_, err = v.UserID("anything")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken("Bearer"))
}
