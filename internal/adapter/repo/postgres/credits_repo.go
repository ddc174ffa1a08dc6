package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// CreditRepo is the authoritative credit ledger. Every balance change writes
// a credit_transactions row in the same transaction.
type CreditRepo struct{ Pool PgxPool }

// NewCreditRepo constructs a CreditRepo with the given pool.
func NewCreditRepo(p PgxPool) *CreditRepo { return &CreditRepo{Pool: p} }

var _ domain.CreditRepository = (*CreditRepo)(nil)

// Balance returns the user's balance; users without a row have zero credits.
func (r *CreditRepo) Balance(ctx domain.Context, userID string) (int64, error) {
	tracer := otel.Tracer("repo.credits")
	ctx, span := tracer.Start(ctx, "credits.Balance")
	defer span.End()

	var bal int64
	err := r.Pool.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE user_id=$1`, userID).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("op=credits.balance: %w", err)
	}
	return bal, nil
}

// Spend debits amount only when the balance covers it.
func (r *CreditRepo) Spend(ctx domain.Context, userID string, amount int64, feature, description string) (domain.CreditTransaction, error) {
	tracer := otel.Tracer("repo.credits")
	ctx, span := tracer.Start(ctx, "credits.Spend")
	defer span.End()
	span.SetAttributes(attribute.String("credits.feature", feature), attribute.Int64("credits.amount", amount))

	if amount <= 0 {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.spend: %w: amount must be positive", domain.ErrInvalidArgument)
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.spend: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var after int64
	q := `UPDATE credit_balances SET balance = balance - $2, updated_at = $3
	WHERE user_id = $1 AND balance >= $2
	RETURNING balance`
	if err := tx.QueryRow(ctx, q, userID, amount, time.Now().UTC()).Scan(&after); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CreditTransaction{}, fmt.Errorf("op=credits.spend: %w", domain.ErrInsufficientCredits)
		}
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.spend: %w", err)
	}

	ct := domain.CreditTransaction{
		ID:           uuid.New().String(),
		UserID:       userID,
		Type:         domain.CreditTxUsage,
		Amount:       -amount,
		BalanceAfter: after,
		Feature:      feature,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
	if err := insertTransaction(ctx, tx, ct); err != nil {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.spend: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.spend: %w", err)
	}
	return ct, nil
}

// Refund credits amount back and records a refund entry.
func (r *CreditRepo) Refund(ctx domain.Context, userID string, amount int64, reason string) (domain.CreditTransaction, error) {
	tracer := otel.Tracer("repo.credits")
	ctx, span := tracer.Start(ctx, "credits.Refund")
	defer span.End()
	span.SetAttributes(attribute.Int64("credits.amount", amount))

	if amount <= 0 {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.refund: %w: amount must be positive", domain.ErrInvalidArgument)
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.refund: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var after int64
	now := time.Now().UTC()
	q := `INSERT INTO credit_balances (user_id, balance, updated_at) VALUES ($1,$2,$3)
	ON CONFLICT (user_id)
	DO UPDATE SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	RETURNING balance`
	if err := tx.QueryRow(ctx, q, userID, amount, now).Scan(&after); err != nil {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.refund: %w", err)
	}

	ct := domain.CreditTransaction{
		ID:           uuid.New().String(),
		UserID:       userID,
		Type:         domain.CreditTxRefund,
		Amount:       amount,
		BalanceAfter: after,
		Feature:      "refund",
		Description:  reason,
		CreatedAt:    now,
	}
	if err := insertTransaction(ctx, tx, ct); err != nil {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.refund: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CreditTransaction{}, fmt.Errorf("op=credits.refund: %w", err)
	}
	return ct, nil
}

func insertTransaction(ctx domain.Context, tx pgx.Tx, ct domain.CreditTransaction) error {
	q := `INSERT INTO credit_transactions (id, user_id, type, amount, balance_after, feature, description, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := tx.Exec(ctx, q, ct.ID, ct.UserID, string(ct.Type), ct.Amount, ct.BalanceAfter, ct.Feature, ct.Description, ct.CreatedAt)
	return err
}
