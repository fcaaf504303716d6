package cli

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/threeway/jobs"
)

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	err := Migrate("postgres://localhost/threeway", "sideways", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorContains(t, err, "unknown direction")
}

func TestJobsCLITriggerStaleScan(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewJobsCLI(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	info, err := c.Trigger(context.Background(), jobs.TaskStaleExceptionScan, 48*time.Hour)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskStaleExceptionScan, info.Type)

	_, err = c.Trigger(context.Background(), "threeway:unknown", 0)
	require.ErrorContains(t, err, "unsupported job")
}
