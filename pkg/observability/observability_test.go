package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/remedy/pkg/config"
)

func TestDisabledProviderIsInert(t *testing.T) {
	p, err := New(context.Background(), &config.Config{OTelEnabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		p.RecordDecision(ctx, "SYNC_ENVS", "env_drift")
		p.RecordExecution(ctx, "applied", 120*time.Millisecond)
		p.RecordRollback(ctx, true)
		p.RecordCertification(ctx, true, "accepted")
	})

	spanCtx, span := p.StartSpan(ctx, "execute")
	assert.NotNil(t, spanCtx)
	span.End()

	assert.NoError(t, p.Shutdown(ctx))
}
