package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner("unit-secret", time.Hour)

	token, expiresAt, err := signer.Issue("job-1", "reports/job-1.pdf")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	grant, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "job-1", grant.JobID)
	assert.Equal(t, "reports/job-1.pdf", grant.Path)
	assert.WithinDuration(t, expiresAt, grant.ExpiresAt, time.Second)
}

func TestTokenSignerRejectsExpired(t *testing.T) {
	signer := NewTokenSigner("unit-secret", time.Hour)
	signer.ttl = -time.Minute

	token, _, err := signer.Issue("job-1", "reports/job-1.pdf")
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestTokenSignerRejectsTampering(t *testing.T) {
	signer := NewTokenSigner("unit-secret", time.Hour)
	token, _, err := signer.Issue("job-1", "reports/job-1.pdf")
	require.NoError(t, err)

	forged, err := NewTokenSigner("other-secret", time.Hour).Verify(token)
	require.Error(t, err)
	assert.Zero(t, forged)

	_, err = signer.Verify("AAAA~BBBB")
	require.Error(t, err)

	_, err = signer.Verify("no-separator")
	require.Error(t, err)
}
