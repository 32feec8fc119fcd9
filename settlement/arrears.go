package settlement

import (
	"errors"
	"math/big"
	"sort"
	"time"
)

// ErrStateCorrupted signals that the integrity guard rejected the stall's
// billing state. Callers must surface it to an operator and must not collapse
// it into a zero-debt result: the policy fails safe by refusing to bill from
// state it cannot trust.
var ErrStateCorrupted = errors.New("settlement: stall billing state corrupted")

// Engine computes arrears for stalls. The guard and clock are injectable so
// tests can pin time and observe the guard short-circuit.
type Engine struct {
	guard func(Stall, time.Time) bool
	nowFn func() time.Time
}

// NewEngine constructs an engine using ValidateStall and the UTC clock.
func NewEngine() *Engine {
	return &Engine{
		guard: ValidateStall,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the evaluation clock. Passing nil restores the
// default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// SetGuard overrides the integrity guard. Passing nil restores ValidateStall.
func (e *Engine) SetGuard(guard func(Stall, time.Time) bool) {
	if e == nil {
		return
	}
	if guard == nil {
		e.guard = ValidateStall
		return
	}
	e.guard = guard
}

// Compute evaluates the stall's debt at a single instant. If the integrity
// guard rejects the stall it returns ErrStateCorrupted immediately, with no
// partial computation. The result is deterministic: two calls with the same
// inputs and clock yield identical breakdowns.
func (e *Engine) Compute(stall Stall, sanctions []Sanction) (*DebtBreakdown, error) {
	if e == nil {
		return nil, errors.New("settlement: engine not initialised")
	}
	// One clock read per evaluation; every derived value reuses it.
	now := e.nowFn().UTC()
	if !e.guard(stall, now) {
		return nil, ErrStateCorrupted
	}

	// Months are counted at calendar granularity: (y2-y1)*12 + (m2-m1). A
	// vendor who paid on the 31st and is evaluated on the 1st of the next
	// month is already one month unpaid. Day-granularity would silently
	// change observable billing, so keep this coarse.
	monthsUnpaid := monthsBetween(stall.LastPayment, now)
	if monthsUnpaid < 0 {
		monthsUnpaid = 0
	}

	breakdown := &DebtBreakdown{
		MonthsUnpaid: monthsUnpaid,
		RentDebt:     new(big.Int).Mul(stall.Price, big.NewInt(int64(monthsUnpaid))),
		FineAmount:   big.NewInt(0),
	}
	for i := 1; i <= monthsUnpaid; i++ {
		due := stall.LastPayment.AddDate(0, i, 0)
		breakdown.LineItems = append(breakdown.LineItems, LineItem{
			Label:  "Rent " + due.Format("January 2006"),
			Amount: new(big.Int).Set(stall.Price),
			Due:    due,
		})
	}

	for _, sanction := range sanctions {
		if sanction.StallID != stall.ID {
			continue
		}
		if sanction.Status != SanctionStatusActive || sanction.Type != SanctionTypeFine {
			continue
		}
		amount := big.NewInt(0)
		if sanction.Amount != nil {
			amount = new(big.Int).Set(sanction.Amount)
		}
		breakdown.FineAmount = breakdown.FineAmount.Add(breakdown.FineAmount, amount)
		label := "Fine"
		if sanction.Reason != "" {
			label = "Fine: " + sanction.Reason
		}
		breakdown.LineItems = append(breakdown.LineItems, LineItem{
			Label:  label,
			Amount: amount,
			Due:    sanction.Date,
		})
	}

	breakdown.TotalDebt = new(big.Int).Add(breakdown.RentDebt, breakdown.FineAmount)
	sort.SliceStable(breakdown.LineItems, func(i, j int) bool {
		return breakdown.LineItems[i].Due.Before(breakdown.LineItems[j].Due)
	})
	return breakdown, nil
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
