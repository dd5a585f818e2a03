// Package wallet moves cash in and out of a user's wallet outside of trading.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/pkg/retry"
)

// Service deposits to and withdraws from user wallets.
type Service struct {
	store ledger.Store
	log   *zap.Logger
	Retry retry.Config
}

func NewService(s ledger.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, log: log, Retry: retry.DefaultConfig()}
}

// Get returns the user's wallet or ledger.ErrWalletNotFound.
func (s *Service) Get(ctx context.Context, userID string) (ledger.Wallet, error) {
	var w ledger.Wallet
	err := s.store.View(ctx, func(r ledger.Reader) error {
		var err error
		w, err = r.GetWallet(ctx, userID)
		return err
	})
	return w, err
}

// Deposit credits amount, opening the wallet on the first deposit.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (ledger.Wallet, error) {
	if err := ledger.ValidateAmount(userID, amount); err != nil {
		return ledger.Wallet{}, err
	}
	w, err := s.update(ctx, userID, func(tx ledger.Tx) (ledger.Wallet, error) {
		w, err := tx.LockWallet(ctx, userID)
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return tx.CreateWallet(ctx, userID, amount)
		}
		if err != nil {
			return ledger.Wallet{}, err
		}
		w.Balance = w.Balance.Add(amount)
		return w, tx.SetWalletBalance(ctx, userID, w.Balance)
	})
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("deposit %s: %w", amount, err)
	}
	s.log.Info("wallet deposit", zap.String("user", userID), zap.String("amount", amount.String()),
		zap.String("balance", w.Balance.String()))
	return w, nil
}

// Withdraw debits amount. The balance never goes below zero.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (ledger.Wallet, error) {
	if err := ledger.ValidateAmount(userID, amount); err != nil {
		return ledger.Wallet{}, err
	}
	w, err := s.update(ctx, userID, func(tx ledger.Tx) (ledger.Wallet, error) {
		w, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return ledger.Wallet{}, err
		}
		if w.Balance.LessThan(amount) {
			return ledger.Wallet{}, fmt.Errorf("%w: balance %s", ledger.ErrInsufficientFunds, w.Balance)
		}
		w.Balance = w.Balance.Sub(amount)
		return w, tx.SetWalletBalance(ctx, userID, w.Balance)
	})
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("withdraw %s: %w", amount, err)
	}
	s.log.Info("wallet withdrawal", zap.String("user", userID), zap.String("amount", amount.String()),
		zap.String("balance", w.Balance.String()))
	return w, nil
}

func (s *Service) update(ctx context.Context, userID string, fn func(ledger.Tx) (ledger.Wallet, error)) (ledger.Wallet, error) {
	return retry.Do(ctx, s.Retry,
		func(err error) bool { return errors.Is(err, ledger.ErrConflict) },
		func(attempt int, err error, backoff time.Duration) {
			s.log.Warn("store conflict, retrying wallet update",
				zap.String("user", userID), zap.Int("attempt", attempt), zap.Error(err))
		},
		func() (ledger.Wallet, error) {
			var w ledger.Wallet
			err := s.store.Update(ctx, func(tx ledger.Tx) error {
				var err error
				w, err = fn(tx)
				return err
			})
			return w, err
		})
}
