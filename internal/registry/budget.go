package registry

import (
	"fmt"

	"github.com/mkb23/overcode/internal/overerr"
)

// TransferBudget moves amount of cost_budget_usd from src to tgt. src must
// be an ancestor of tgt. A 0 amount is rejected, not a no-op. If src has an
// unlimited budget (0), tgt's budget is simply set to amount without
// touching src; otherwise src must have at least amount remaining
// (budget minus already-spent estimated cost), and tgt's budget is
// increased by amount (or set to amount if tgt currently has none).
func (r *Registry) TransferBudget(srcID, tgtID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer amount must be > 0", overerr.ErrInvalidInput)
	}
	if !r.IsAncestor(srcID, tgtID) {
		return fmt.Errorf("%w: %q is not an ancestor of %q", overerr.ErrConflict, srcID, tgtID)
	}

	return r.mutate(func(state fileState) error {
		src, ok := state[srcID]
		if !ok {
			return fmt.Errorf("%w: session %q", overerr.ErrNotFound, srcID)
		}
		tgt, ok := state[tgtID]
		if !ok {
			return fmt.Errorf("%w: session %q", overerr.ErrNotFound, tgtID)
		}

		if src.CostBudgetUSD > 0 {
			available := src.CostBudgetUSD - src.Stats.EstimatedCostUSD
			if available < amount {
				return fmt.Errorf("%w: source %q has only %.4f available", overerr.ErrConflict, srcID, available)
			}
			src.CostBudgetUSD -= amount
		}

		if tgt.CostBudgetUSD == 0 {
			tgt.CostBudgetUSD = amount
		} else {
			tgt.CostBudgetUSD += amount
		}
		return nil
	})
}
