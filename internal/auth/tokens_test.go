// internal/auth/tokens_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer, err := NewIssuer()
	require.NoError(t, err)

	token, err := issuer.Issue("p_abcd1234")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	playerID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "p_abcd1234", playerID)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer, err := NewIssuer()
	require.NoError(t, err)

	_, err = issuer.Verify("not.a.token")
	assert.Error(t, err)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a, err := NewIssuer()
	require.NoError(t, err)
	b, err := NewIssuer()
	require.NoError(t, err)

	token, err := a.Issue("p_abcd1234")
	require.NoError(t, err)

	// A token signed by one process must not verify on another key pair.
	_, err = b.Verify(token)
	assert.Error(t, err)
}
