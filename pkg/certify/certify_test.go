package certify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalCertifier {
	t.Helper()
	keys, err := NewMemoryKeyring()
	require.NoError(t, err)
	c, err := NewLocalCertifier(keys)
	require.NoError(t, err)
	return c
}

func TestLocalCertifierAcceptsCleanResult(t *testing.T) {
	c := newLocal(t)

	verdict, err := c.Certify(context.Background(), map[string]any{
		"status":       "applied",
		"fixes_failed": 0,
	})
	require.NoError(t, err)

	assert.True(t, verdict.Certified)
	assert.Equal(t, "accepted", verdict.Reason)
	require.NotEmpty(t, verdict.CertificateID)

	cert, ok := c.Certificate(verdict.CertificateID)
	require.True(t, ok)
	assert.NotEmpty(t, cert.Signature)
}

func TestLocalCertifierRejectsErrorStatus(t *testing.T) {
	c := newLocal(t)

	verdict, err := c.Certify(context.Background(), map[string]any{"status": "error"})
	require.NoError(t, err)
	assert.False(t, verdict.Certified)
	assert.Contains(t, verdict.Reason, "rule rejected")
}

func TestLocalCertifierRejectsFailedFixes(t *testing.T) {
	c := newLocal(t)

	verdict, err := c.Certify(context.Background(), map[string]any{
		"status":       "applied",
		"fixes_failed": 2,
	})
	require.NoError(t, err)
	assert.False(t, verdict.Certified)
}

func TestLocalCertifierRejectsSchemaViolation(t *testing.T) {
	c := newLocal(t)

	verdict, err := c.Certify(context.Background(), map[string]any{"fixes_failed": 0})
	require.NoError(t, err)
	assert.False(t, verdict.Certified)
	assert.Contains(t, verdict.Reason, "schema violation")
}

func TestCertificateVerifiesOffline(t *testing.T) {
	c := newLocal(t)
	payload := map[string]any{"status": "applied"}

	verdict, err := c.Certify(context.Background(), payload)
	require.NoError(t, err)
	cert, ok := c.Certificate(verdict.CertificateID)
	require.True(t, ok)

	normalized, err := roundTripJSON(payload)
	require.NoError(t, err)
	require.NoError(t, c.VerifyCertificate(cert, normalized))

	tampered := map[string]any{"status": "forged"}
	assert.Error(t, c.VerifyCertificate(cert, tampered))
}

type unavailableCertifier struct{}

func (unavailableCertifier) Certify(context.Context, map[string]any) (Result, error) {
	return Result{}, errors.New("connection refused")
}

func TestGateFailOpen(t *testing.T) {
	gate := NewGate(unavailableCertifier{}, FailOpen)

	verdict, err := gate.Certify(context.Background(), map[string]any{"status": "applied"})
	require.NoError(t, err)
	assert.True(t, verdict.Certified)
	assert.Equal(t, ReasonUnavailable, verdict.Reason)
}

func TestGateFailClosed(t *testing.T) {
	gate := NewGate(unavailableCertifier{}, FailClosed)

	verdict, err := gate.Certify(context.Background(), map[string]any{"status": "applied"})
	require.NoError(t, err)
	assert.False(t, verdict.Certified)
	assert.Equal(t, ReasonUnavailable, verdict.Reason)
}

func TestGateWithNilInner(t *testing.T) {
	open := NewGate(nil, FailOpen)
	verdict, err := open.Certify(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, verdict.Certified)

	closed := NewGate(nil, FailClosed)
	verdict, err = closed.Certify(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, verdict.Certified)
}

func TestGatePassesThroughRealVerdicts(t *testing.T) {
	gate := NewGate(newLocal(t), FailClosed)

	verdict, err := gate.Certify(context.Background(), map[string]any{"status": "applied"})
	require.NoError(t, err)
	assert.True(t, verdict.Certified)
	assert.NotEqual(t, ReasonUnavailable, verdict.Reason)
}

func TestKeyringDeriveIsDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	k1, err := NewMemoryKeyringFromSeed(seed)
	require.NoError(t, err)
	k2, err := NewMemoryKeyringFromSeed(seed)
	require.NoError(t, err)

	id1, key1, err := k1.Active()
	require.NoError(t, err)
	id2, key2, err := k2.Active()
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, key1, key2)

	scopeA, err := k1.Derive("secrets")
	require.NoError(t, err)
	assert.NotEqual(t, id1, scopeA)
}
