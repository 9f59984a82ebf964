package quickmatch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chachabrian/quickmatch-backend/internal/repository"
)

// CreditGate enforces the per-client request quota.
type CreditGate struct {
	store repository.CreditStore
}

// Reserve consumes one credit with a single conditional decrement and returns the
// remaining balance.
func (g *CreditGate) Reserve(ctx context.Context, clientID uint) (int, error) {
	remaining, ok, err := g.store.ReserveCredit(ctx, clientID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrInsufficientCredits
	}
	return remaining, nil
}

// Refund returns a credit taken by Reserve when the request could not be stored.
func (g *CreditGate) Refund(ctx context.Context, clientID uint) error {
	return g.store.RefundCredit(ctx, clientID)
}

func (g *CreditGate) Grant(ctx context.Context, clientID uint, amount int) (int, error) {
	if clientID == 0 {
		return 0, validationf("clientId is required")
	}
	if amount <= 0 {
		return 0, validationf("amount must be positive")
	}
	bal, err := g.store.GrantCredits(ctx, clientID, amount)
	return bal, errors.WithMessage(err, "grant credits")
}

func (g *CreditGate) Balance(ctx context.Context, clientID uint) (int, error) {
	return g.store.CreditBalance(ctx, clientID)
}
