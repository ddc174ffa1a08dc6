// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/domain"
	obsctx "github.com/fairyhunter13/interview-coach/internal/observability"
)

// CreditLedger is what the interview and analysis flows need from the ledger.
type CreditLedger interface {
	CheckAndSpend(ctx domain.Context, userID string, amount int64, feature, description string) (bool, error)
	Refund(ctx domain.Context, userID string, amount int64, reason string) error
}

// Ledger fronts the credit backend with a balance cache and refresh notifications.
type Ledger struct {
	repo     domain.CreditRepository
	cache    domain.BalanceCache
	notifier domain.BalanceNotifier
}

// NewLedger constructs a Ledger. cache and notifier may be nil.
func NewLedger(repo domain.CreditRepository, cache domain.BalanceCache, notifier domain.BalanceNotifier) *Ledger {
	return &Ledger{repo: repo, cache: cache, notifier: notifier}
}

// Balance returns the cached balance, loading it from the backend on a miss.
func (l *Ledger) Balance(ctx domain.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrUnauthenticated
	}
	lg := obsctx.LoggerFromContext(ctx)
	if l.cache != nil {
		bal, ok, err := l.cache.Get(ctx, userID)
		if err != nil {
			lg.Warn("balance cache read failed", slog.String("user_id", userID), slog.Any("error", err))
		} else if ok {
			return bal, nil
		}
	}
	bal, err := l.repo.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("op=ledger.Balance: %w", ledgerTransport(err))
	}
	l.storeCached(ctx, userID, bal)
	return bal, nil
}

// CheckAndSpend debits amount when the balance covers it. It fails closed:
// an insufficient cached balance never reaches the backend.
func (l *Ledger) CheckAndSpend(ctx domain.Context, userID string, amount int64, feature, description string) (bool, error) {
	if userID == "" {
		return false, domain.ErrUnauthenticated
	}
	if amount <= 0 {
		return true, nil
	}
	lg := obsctx.LoggerFromContext(ctx)

	bal, err := l.Balance(ctx, userID)
	if err != nil {
		observability.RejectSpend(feature, "balance_unavailable")
		return false, err
	}
	if bal < amount {
		observability.RejectSpend(feature, "insufficient")
		lg.Info("spend refused: insufficient credits", slog.String("user_id", userID), slog.String("feature", feature), slog.Int64("balance", bal), slog.Int64("amount", amount))
		return false, fmt.Errorf("%w: %d needed, %d available", domain.ErrInsufficientCredits, amount, bal)
	}

	tx, err := l.repo.Spend(ctx, userID, amount, feature, description)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			// Cache was stale; resync so the next check is accurate.
			observability.RejectSpend(feature, "insufficient")
			if fresh, berr := l.repo.Balance(ctx, userID); berr == nil {
				l.refreshed(ctx, userID, fresh)
			}
			return false, fmt.Errorf("op=ledger.CheckAndSpend: %w", err)
		}
		observability.RejectSpend(feature, "backend_error")
		lg.Error("credit spend failed", slog.String("user_id", userID), slog.String("feature", feature), slog.Any("error", err))
		return false, fmt.Errorf("op=ledger.CheckAndSpend: %w", ledgerTransport(err))
	}

	observability.SpendCredits(feature, amount)
	lg.Info("credits spent", slog.String("user_id", userID), slog.String("feature", feature), slog.Int64("amount", amount), slog.Int64("balance_after", tx.BalanceAfter))
	l.refreshed(ctx, userID, tx.BalanceAfter)
	return true, nil
}

// Refund returns amount to the user. A failure is escalated as ErrRefundFailed
// because credits are lost until someone intervenes.
func (l *Ledger) Refund(ctx domain.Context, userID string, amount int64, reason string) error {
	if userID == "" {
		return domain.ErrUnauthenticated
	}
	if amount <= 0 {
		return nil
	}
	lg := obsctx.LoggerFromContext(ctx)
	tx, err := l.repo.Refund(ctx, userID, amount, reason)
	if err != nil {
		observability.RefundFailed()
		lg.Error("credit refund failed", slog.String("user_id", userID), slog.Int64("amount", amount), slog.String("reason", reason), slog.Any("error", err))
		return fmt.Errorf("op=ledger.Refund: %w: %v", domain.ErrRefundFailed, err)
	}
	observability.RefundCredits(amount)
	lg.Info("credits refunded", slog.String("user_id", userID), slog.Int64("amount", amount), slog.String("reason", reason), slog.Int64("balance_after", tx.BalanceAfter))
	l.refreshed(ctx, userID, tx.BalanceAfter)
	return nil
}

// refreshed records a balance the backend just reported and tells observers.
func (l *Ledger) refreshed(ctx domain.Context, userID string, balance int64) {
	l.storeCached(ctx, userID, balance)
	if l.notifier == nil {
		return
	}
	if err := l.notifier.NotifyBalance(ctx, userID, balance); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("balance notify failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (l *Ledger) storeCached(ctx domain.Context, userID string, balance int64) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, userID, balance); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("balance cache write failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// ledgerTransport marks backend failures as transport errors unless they already carry a domain meaning.
func ledgerTransport(err error) error {
	if domain.IsTransport(err) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return &domain.TransportError{Detail: "credit ledger: " + err.Error(), Err: errors.Join(domain.ErrUpstreamUnavailable, err)}
}
