package usecase

import (
	"context"

	"golang.org/x/sync/errgroup"

	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ BalanceUseCase = (*balanceUC)(nil)

// BalanceUseCase reads wallet and Nol card balances. Reads never fail: a missing
// instrument and a transport error both come back as an unavailable balance.
type BalanceUseCase interface {
	Wallet(ctx context.Context, userID string) model.Balance
	Card(ctx context.Context, userID string) model.Balance
	// Both issues the two reads concurrently.
	Both(ctx context.Context, userID string) (wallet, card model.Balance)
}

type balanceUC struct {
	backend adapter.LedgerBackend
	log     *zerolog.Logger
}

func NewBalanceUseCase(backend adapter.LedgerBackend, logger *zerolog.Logger) *balanceUC {
	return &balanceUC{backend: backend, log: logger}
}

func (u *balanceUC) Wallet(ctx context.Context, userID string) model.Balance {
	amt, err := u.backend.WalletBalance(ctx, userID)
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("wallet balance not available")
		return model.UnavailableBalance()
	}
	return model.Balance{Amount: amt, Available: true}
}

func (u *balanceUC) Card(ctx context.Context, userID string) model.Balance {
	amt, err := u.backend.CardBalance(ctx, userID)
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("nol card balance not available")
		return model.UnavailableBalance()
	}
	return model.Balance{Amount: amt, Available: true}
}

func (u *balanceUC) Both(ctx context.Context, userID string) (wallet, card model.Balance) {
	defer logging.TraceDuration(u.log, "BalanceUC.Both")()

	var g errgroup.Group
	g.Go(func() error {
		wallet = u.Wallet(ctx, userID)
		return nil
	})
	g.Go(func() error {
		card = u.Card(ctx, userID)
		return nil
	})
	_ = g.Wait()
	return wallet, card
}
