package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

func TestBeginRejectsDuplicates(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, _, err := c.Begin(ctx, "run-1", "subscribers")
	require.NoError(t, err)

	_, _, err = c.Begin(ctx, "run-1", "other")
	assert.Error(t, err, "duplicate run ID must be rejected")

	_, _, err = c.Begin(ctx, "run-2", "subscribers")
	assert.Error(t, err, "concurrent run for the same table must be rejected")

	c.Finish("run-1", types.RunStatusCompleted, nil)

	// Table slot is free again after the run finished.
	_, _, err = c.Begin(ctx, "run-3", "subscribers")
	assert.NoError(t, err)
}

func TestCancelPropagatesToRunContext(t *testing.T) {
	c := New()

	runCtx, _, err := c.Begin(context.Background(), "run-1", "subscribers")
	require.NoError(t, err)

	require.NoError(t, c.Cancel("run-1"))

	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("run context not cancelled")
	}
	assert.Error(t, c.Cancel("missing"))
}

func TestWaitAndStatus(t *testing.T) {
	c := New()

	_, _, err := c.Begin(context.Background(), "run-1", "subscribers")
	require.NoError(t, err)

	c.Update("run-1", types.RunStatusEncrypting, nil)
	run := c.Get("run-1")
	require.NotNil(t, run)
	assert.Equal(t, types.RunStatusEncrypting, run.Status)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Finish("run-1", types.RunStatusCompleted, nil)
	}()

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Wait(waitCtx, "run-1"))
	assert.Equal(t, types.RunStatusCompleted, c.Get("run-1").Status)
}

func TestShutdownCancelsActiveRuns(t *testing.T) {
	c := New()

	runCtx, _, err := c.Begin(context.Background(), "run-1", "subscribers")
	require.NoError(t, err)

	go func() {
		<-runCtx.Done()
		c.Finish("run-1", types.RunStatusAborted, runCtx.Err())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.Equal(t, types.RunStatusAborted, c.Get("run-1").Status)
}
