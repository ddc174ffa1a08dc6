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

func TestCreditRepo_Balance(t *testing.T) {
	bal, err := postgres.NewCreditRepo(&poolStub{row: scanInt64(42)}).Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal)

	bal, err = postgres.NewCreditRepo(&poolStub{row: scanErr(pgx.ErrNoRows)}).Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, bal)

	_, err = postgres.NewCreditRepo(&poolStub{row: scanErr(errors.New("down"))}).Balance(context.Background(), "u1")
	require.Error(t, err)
}

func TestCreditRepo_Spend(t *testing.T) {
	tx := &txStub{row: scanInt64(15)}
	pool := &poolStub{tx: tx}

	ct, err := postgres.NewCreditRepo(pool).Spend(context.Background(), "u1", 5, domain.FeatureResumeAnalysis, "resume")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), ct.Amount)
	assert.Equal(t, int64(15), ct.BalanceAfter)
	assert.Equal(t, domain.CreditTxUsage, ct.Type)
	assert.NotEmpty(t, ct.ID)
	assert.True(t, tx.committed)
	require.Len(t, pool.calls, 2)
	assert.Contains(t, pool.calls[0].sql, "balance >= $2")
	assert.Contains(t, pool.calls[1].sql, "INSERT INTO credit_transactions")
}

func TestCreditRepo_SpendInsufficient(t *testing.T) {
	tx := &txStub{row: scanErr(pgx.ErrNoRows)}
	pool := &poolStub{tx: tx}

	_, err := postgres.NewCreditRepo(pool).Spend(context.Background(), "u1", 50, domain.FeatureJobAnalysis, "job")
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
	assert.Len(t, pool.calls, 1)
}

func TestCreditRepo_SpendFailures(t *testing.T) {
	_, err := postgres.NewCreditRepo(&poolStub{}).Spend(context.Background(), "u1", 0, "f", "d")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = postgres.NewCreditRepo(&poolStub{beginErr: errors.New("no conn")}).Spend(context.Background(), "u1", 1, "f", "d")
	require.Error(t, err)

	tx := &txStub{row: scanInt64(1), execErr: errors.New("constraint")}
	_, err = postgres.NewCreditRepo(&poolStub{tx: tx}).Spend(context.Background(), "u1", 1, "f", "d")
	require.Error(t, err)
	assert.True(t, tx.rolledBack)

	tx = &txStub{row: scanInt64(1), commitErr: errors.New("serialization")}
	_, err = postgres.NewCreditRepo(&poolStub{tx: tx}).Spend(context.Background(), "u1", 1, "f", "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=credits.spend")
}

func TestCreditRepo_Refund(t *testing.T) {
	tx := &txStub{row: scanInt64(20)}
	pool := &poolStub{tx: tx}

	ct, err := postgres.NewCreditRepo(pool).Refund(context.Background(), "u1", 5, "analysis failed")
	require.NoError(t, err)
	assert.Equal(t, int64(5), ct.Amount)
	assert.Equal(t, int64(20), ct.BalanceAfter)
	assert.Equal(t, domain.CreditTxRefund, ct.Type)
	assert.Equal(t, "analysis failed", ct.Description)
	assert.True(t, tx.committed)
	assert.Contains(t, pool.calls[0].sql, "ON CONFLICT (user_id)")

	_, err = postgres.NewCreditRepo(&poolStub{}).Refund(context.Background(), "u1", -1, "x")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
