// Package ledger owns every balance mutation. Balances never go below
// zero and never leave the range a decimal(10,2) column can hold.
package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	dbt "ridebook/db/db"
	"ridebook/errs"
	"ridebook/logger"
	"ridebook/metrics"
	"ridebook/money"
)

type Ledger struct {
	store dbt.RideDBWrapper
	log   logger.ILogger
}

func New(store dbt.RideDBWrapper, log logger.ILogger) *Ledger {
	return &Ledger{store: store, log: log}
}

// Credit adds amount to the user's balance in its own transaction.
func (l *Ledger) Credit(ctx context.Context, userID int64, amount string) (*dbt.User, error) {
	var user *dbt.User
	err := l.run(ctx, "credit", amount, func(tx dbt.RideTx, amt decimal.Decimal) (err error) {
		user, err = l.CreditTx(tx, userID, amt)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("balance credited", logger.Int64("user_id", userID), logger.String("amount", amount))
	return user, nil
}

// Debit removes amount from the user's balance in its own transaction.
func (l *Ledger) Debit(ctx context.Context, userID int64, amount string) (*dbt.User, error) {
	var user *dbt.User
	err := l.run(ctx, "debit", amount, func(tx dbt.RideTx, amt decimal.Decimal) (err error) {
		user, err = l.DebitTx(tx, userID, amt)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("balance debited", logger.Int64("user_id", userID), logger.String("amount", amount))
	return user, nil
}

// Transfer moves amount between two users atomically.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID int64, amount string) error {
	err := l.run(ctx, "transfer", amount, func(tx dbt.RideTx, amt decimal.Decimal) error {
		return l.TransferTx(tx, fromID, toID, amt)
	})
	if err != nil {
		return err
	}
	l.log.Info("balance transferred",
		logger.Int64("from", fromID),
		logger.Int64("to", toID),
		logger.String("amount", amount),
	)
	return nil
}

func (l *Ledger) run(ctx context.Context, op, amount string, fn func(tx dbt.RideTx, amt decimal.Decimal) error) error {
	amt, err := money.ParseAmount(amount)
	if err == nil {
		err = l.store.Transaction(ctx, func(tx dbt.RideTx) error {
			return fn(tx, amt)
		})
	}
	metrics.LedgerOperations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		l.log.Warning("ledger operation failed", logger.String("op", op), logger.String("amount", amount), logger.Error(err))
	}
	return err
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", errs.ErrInvalidAmount, amount.String())
	}
	return nil
}

func credited(user *dbt.User, amount decimal.Decimal) (decimal.Decimal, error) {
	next := money.Quantize(user.Balance.Add(amount))
	if err := money.CheckRange(next); err != nil {
		return decimal.Zero, fmt.Errorf("%w: crediting %s to user %d: %v", errs.ErrInvalidAmount, amount, user.ID, err)
	}
	return next, nil
}

func debited(user *dbt.User, amount decimal.Decimal) (decimal.Decimal, error) {
	if user.Balance.LessThan(amount) {
		return decimal.Zero, fmt.Errorf("%w: user %d has %s, needs %s",
			errs.ErrInsufficientFunds, user.ID, money.Format(user.Balance), money.Format(amount))
	}
	return money.Quantize(user.Balance.Sub(amount)), nil
}

// CreditTx is Credit inside the caller's transaction.
func (l *Ledger) CreditTx(tx dbt.RideTx, userID int64, amount decimal.Decimal) (*dbt.User, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	user, err := tx.LockUser(userID)
	if err != nil {
		return nil, err
	}
	next, err := credited(user, amount)
	if err != nil {
		return nil, err
	}
	if err := tx.SetUserBalance(userID, next); err != nil {
		return nil, err
	}
	user.Balance = next
	return user, nil
}

// DebitTx is Debit inside the caller's transaction.
func (l *Ledger) DebitTx(tx dbt.RideTx, userID int64, amount decimal.Decimal) (*dbt.User, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	user, err := tx.LockUser(userID)
	if err != nil {
		return nil, err
	}
	next, err := debited(user, amount)
	if err != nil {
		return nil, err
	}
	if err := tx.SetUserBalance(userID, next); err != nil {
		return nil, err
	}
	user.Balance = next
	return user, nil
}

// TransferTx is Transfer inside the caller's transaction. Both rows are
// locked in ascending id order before anything is checked.
func (l *Ledger) TransferTx(tx dbt.RideTx, fromID, toID int64, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if fromID == toID {
		return fmt.Errorf("%w: cannot transfer to the same account", errs.ErrInvalidAmount)
	}

	users, err := LockUsers(tx, fromID, toID)
	if err != nil {
		return err
	}
	from, to := users[fromID], users[toID]

	fromNext, err := debited(from, amount)
	if err != nil {
		return err
	}
	toNext, err := credited(to, amount)
	if err != nil {
		return err
	}

	if err := tx.SetUserBalance(fromID, fromNext); err != nil {
		return err
	}
	return tx.SetUserBalance(toID, toNext)
}

// LockUsers locks the given users in ascending id order.
func LockUsers(tx dbt.RideTx, ids ...int64) (map[int64]*dbt.User, error) {
	ordered := append([]int64(nil), ids...)
	slices.Sort(ordered)

	users := make(map[int64]*dbt.User, len(ordered))
	for _, id := range ordered {
		if _, done := users[id]; done {
			continue
		}
		user, err := tx.LockUser(id)
		if err != nil {
			return nil, err
		}
		users[id] = user
	}
	return users, nil
}
