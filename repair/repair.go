// Package repair keeps corrupted balances from breaking reads. It works on
// the raw storage path, which never decodes, because the typed path is
// the one that fails.
package repair

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	dbt "ridebook/db/db"
	"ridebook/errs"
	"ridebook/logger"
	"ridebook/metrics"
	"ridebook/money"
)

type Reason string

const (
	// ReasonInvalid is a NULL or non-numeric balance.
	ReasonInvalid Reason = "invalid"
	// ReasonOutOfRange is a number the balance column cannot hold.
	ReasonOutOfRange Reason = "out_of_range"
)

// Correction is one balance that would be reset to zero.
type Correction struct {
	UserID int64   `json:"user_id"`
	Raw    *string `json:"raw"`
	Reason Reason  `json:"reason"`
}

type Repairer struct {
	store dbt.RideDBWrapper
	log   logger.ILogger
}

func New(store dbt.RideDBWrapper, log logger.ILogger) *Repairer {
	return &Repairer{store: store, log: log}
}

// GetUserSafe reads a user, zeroing a balance that does not decode and
// reading once more. If the repair or the second read fails the user is
// reported as not found.
func (r *Repairer) GetUserSafe(ctx context.Context, userID int64) (*dbt.User, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err == nil || !errors.Is(err, errs.ErrCorruptData) {
		return user, err
	}

	r.log.Warning("corrupt balance on read, resetting to zero", logger.Int64("user_id", userID), logger.Error(err))
	if werr := r.store.RawBalanceWrite(ctx, map[int64]string{userID: money.ZeroText}); werr != nil {
		r.log.Error("balance repair failed", logger.Int64("user_id", userID), logger.Error(werr))
		return nil, fmt.Errorf("user %d: repair failed: %v: %w", userID, werr, errs.ErrNotFound)
	}
	metrics.RepairedBalances.WithLabelValues("read").Inc()

	user, err = r.store.GetUser(ctx, userID)
	if err != nil {
		r.log.Error("read after balance repair failed", logger.Int64("user_id", userID), logger.Error(err))
		return nil, fmt.Errorf("user %d: read after repair: %v: %w", userID, err, errs.ErrNotFound)
	}
	return user, nil
}

// classify says why raw is bad, or "" when it decodes. Any failure of
// the magnitude check counts as bad.
func classify(raw *string) Reason {
	if raw == nil {
		return ReasonInvalid
	}
	d, err := money.Parse(*raw)
	if err != nil {
		return ReasonInvalid
	}
	if err := money.CheckRange(d); err != nil {
		return ReasonOutOfRange
	}
	return ""
}

// Scan lists the balances ScanAndRepairAll would reset, without writing.
func (r *Repairer) Scan(ctx context.Context) ([]Correction, error) {
	rows, err := r.store.RawBalanceList(ctx)
	if err != nil {
		return nil, fmt.Errorf("read raw balances: %w", err)
	}

	var corrections []Correction
	for _, row := range rows {
		if reason := classify(row.Value); reason != "" {
			corrections = append(corrections, Correction{UserID: row.UserID, Raw: row.Value, Reason: reason})
		}
	}
	slices.SortFunc(corrections, func(a, b Correction) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return corrections, nil
}

// ScanAndRepairAll resets every bad balance to 0.00 in one batch and
// returns the corrected ids in ascending order. Either every bad row is
// fixed or none is.
func (r *Repairer) ScanAndRepairAll(ctx context.Context) ([]int64, error) {
	corrections, err := r.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(corrections) == 0 {
		return []int64{}, nil
	}

	ids := make([]int64, 0, len(corrections))
	batch := make(map[int64]string, len(corrections))
	for _, c := range corrections {
		ids = append(ids, c.UserID)
		batch[c.UserID] = money.ZeroText
	}
	if err := r.store.RawBalanceWrite(ctx, batch); err != nil {
		r.log.Error("balance repair batch failed", logger.Int("count", len(ids)), logger.Error(err))
		return nil, fmt.Errorf("write repaired balances: %w", err)
	}

	metrics.RepairedBalances.WithLabelValues("scan").Add(float64(len(ids)))
	for _, c := range corrections {
		raw := "NULL"
		if c.Raw != nil {
			raw = *c.Raw
		}
		r.log.Info("balance reset to zero",
			logger.Int64("user_id", c.UserID),
			logger.String("raw", raw),
			logger.String("reason", string(c.Reason)),
		)
	}
	return ids, nil
}
