package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	id := uuid.New()

	token, expiresAt, err := issuer.Issue(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	parsed, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	id := uuid.New()

	foreign, _, err := NewIssuer("other-secret", time.Hour).Issue(id)
	require.NoError(t, err)
	_, err = NewIssuer("test-secret", time.Hour).Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, _, err := NewIssuer("test-secret", -time.Minute).Issue(id)
	require.NoError(t, err)
	_, err = NewIssuer("test-secret", time.Hour).Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewIssuer("test-secret", time.Hour).Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
