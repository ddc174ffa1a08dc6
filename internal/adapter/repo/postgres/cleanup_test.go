package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-coach/internal/adapter/repo/postgres"
)

func TestCleanupService_DeletesStaleSessions(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 3")}
	svc := postgres.NewCleanupService(pool, 30)

	n, err := svc.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, pool.calls, 1)
	cutoff, ok := pool.calls[0].args[0].(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), cutoff, time.Minute)
}

func TestCleanupService_DefaultRetentionAndError(t *testing.T) {
	svc := postgres.NewCleanupService(&poolStub{execErr: errors.New("down")}, 0)
	assert.Equal(t, 90, svc.RetentionDays)
	_, err := svc.CleanupOldData(context.Background())
	require.Error(t, err)
}

func TestCleanupService_RunPeriodicStopsOnCancel(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 0")}
	svc := postgres.NewCleanupService(pool, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunPeriodic(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool {
		pool.mu.Lock()
		defer pool.mu.Unlock()
		return len(pool.calls) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}
