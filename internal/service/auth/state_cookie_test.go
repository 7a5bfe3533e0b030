package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSignerRoundTrip(t *testing.T) {
	signer, err := NewStateSigner(testSecret)
	require.NoError(t, err)

	in := StateClaims{
		UserID:    uuid.New(),
		Token:     "handshake-token",
		ExpiresAt: time.Now().Add(-time.Minute).Truncate(time.Second),
	}
	value, err := signer.Sign(in)
	require.NoError(t, err)

	out, err := signer.Parse(value)
	require.NoError(t, err, "expired handshakes still parse")
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.Token, out.Token)
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
}

func TestStateSignerRejects(t *testing.T) {
	signer, err := NewStateSigner(testSecret)
	require.NoError(t, err)
	other, err := NewStateSigner("another-secret-that-is-long-enough!!")
	require.NoError(t, err)

	forged, err := other.Sign(StateClaims{UserID: uuid.New(), Token: "t", ExpiresAt: time.Now().Add(time.Minute)})
	require.NoError(t, err)

	svc := newTestJWTService(t, testSecret, time.Hour, time.Now)
	access, err := svc.mintToken(uuid.New())
	require.NoError(t, err)

	valid, err := signer.Sign(StateClaims{UserID: uuid.New(), Token: "t", ExpiresAt: time.Now().Add(time.Minute)})
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, value := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-cookie",
		"other key":    forged,
		"access token": access,
		"tampered":     tampered,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := signer.Parse(value)
			assert.ErrorIs(t, err, ErrInvalidStateCookie)
		})
	}

	_, err = NewStateSigner("short")
	assert.Error(t, err)
}
