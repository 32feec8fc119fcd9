// Package settlement computes what a stall occupant owes: unpaid rent-months
// plus active fines. Every compliance decision in the surrounding application
// branches on this package's output, so the computation is pure, deterministic,
// and guarded against physically implausible billing state.
package settlement

import (
	"math/big"
	"time"
)

// Stall is the subset of the market-management stall record the arrears
// computation reads. Price is the monthly rent in currency minor units.
type Stall struct {
	ID          string
	Price       *big.Int
	LastPayment time.Time
}

// Sanction statuses and types recognised by the engine.
const (
	SanctionStatusActive = "active"
	SanctionTypeFine     = "fine"
)

// Sanction is a read-only disciplinary record attached to a stall. Only
// active fines contribute to debt.
type Sanction struct {
	StallID string
	Status  string
	Type    string
	Amount  *big.Int
	Date    time.Time
	Reason  string
}

// LineItem is one entry of the itemized schedule: an unpaid rent month or an
// active fine.
type LineItem struct {
	Label  string
	Amount *big.Int
	Due    time.Time
}

// DebtBreakdown is the computed arrears picture for one stall. It is
// recomputed on demand and never cached beyond a single evaluation.
type DebtBreakdown struct {
	MonthsUnpaid int
	RentDebt     *big.Int
	FineAmount   *big.Int
	TotalDebt    *big.Int
	LineItems    []LineItem
}
