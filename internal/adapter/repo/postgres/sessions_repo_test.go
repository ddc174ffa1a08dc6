package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-coach/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/interview-coach/internal/domain"
)

func TestSessionRepo_Get(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*[]byte)) = []byte(`{"stage":"intro"}`)
		return nil
	}}}
	blob, err := postgres.NewSessionRepo(pool).Get(context.Background(), "u1", "i1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"intro"}`, string(blob))
	require.Len(t, pool.calls, 1)
	assert.Equal(t, []any{"u1", "i1"}, pool.calls[0].args)
}

func TestSessionRepo_GetNotFound(t *testing.T) {
	pool := &poolStub{row: scanErr(pgx.ErrNoRows)}
	_, err := postgres.NewSessionRepo(pool).Get(context.Background(), "u1", "i1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionRepo_GetError(t *testing.T) {
	pool := &poolStub{row: scanErr(errors.New("conn reset"))}
	_, err := postgres.NewSessionRepo(pool).Get(context.Background(), "u1", "i1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=session.get")
}

func TestSessionRepo_Upsert(t *testing.T) {
	pool := &poolStub{}
	err := postgres.NewSessionRepo(pool).Upsert(context.Background(), "u1", "i1", []byte(`{}`))
	require.NoError(t, err)
	require.Len(t, pool.calls, 1)
	assert.Contains(t, pool.calls[0].sql, "ON CONFLICT (user_id, interview_id)")
	assert.Equal(t, []byte(`{}`), pool.calls[0].args[2])

	pool.execErr = errors.New("boom")
	err = postgres.NewSessionRepo(pool).Upsert(context.Background(), "u1", "i1", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=session.upsert")
}

func TestSessionRepo_Delete(t *testing.T) {
	pool := &poolStub{}
	require.NoError(t, postgres.NewSessionRepo(pool).Delete(context.Background(), "u1", "i1"))
	assert.Contains(t, pool.calls[0].sql, "DELETE FROM interview_sessions")

	pool.execErr = errors.New("boom")
	require.Error(t, postgres.NewSessionRepo(pool).Delete(context.Background(), "u1", "i1"))
}
