package recovery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSchedulerStartStop verifies the loop's own lifecycle — launch, then a
// bounded Stop returns promptly — without exercising Sweeper.Run itself
// (which needs live durable and ephemeral stores and has no unit test of
// its own). The interval is set well beyond the test's
// deadline so the ticker never fires during it.
func TestSchedulerStartStop(t *testing.T) {
	sweeper := New(nil, 0, discardLogger())
	sched := NewScheduler(sweeper, time.Hour)

	require.NoError(t, sched.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, sched.Stop(stopCtx))
}
