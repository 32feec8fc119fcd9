package settlement

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"
)

var evalTime = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	engine := NewEngine()
	engine.SetNowFunc(func() time.Time { return evalTime })
	return engine
}

func TestValidateStall(t *testing.T) {
	now := evalTime
	cases := []struct {
		name  string
		stall Stall
		want  bool
	}{
		{"zero price today", Stall{Price: big.NewInt(0), LastPayment: now}, true},
		{"positive price past payment", Stall{Price: big.NewInt(15000), LastPayment: now.AddDate(0, -2, 0)}, true},
		{"negative price", Stall{Price: big.NewInt(-1), LastPayment: now}, false},
		{"nil price", Stall{LastPayment: now}, false},
		{"payment 2 minutes in the future", Stall{Price: big.NewInt(100), LastPayment: now.Add(120 * time.Second)}, false},
		{"payment within skew tolerance", Stall{Price: big.NewInt(100), LastPayment: now.Add(30 * time.Second)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateStall(tc.stall, now); got != tc.want {
				t.Fatalf("ValidateStall = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComputeThreeMonthsUnpaid(t *testing.T) {
	engine := newTestEngine()
	stall := Stall{
		ID:          "S-104",
		Price:       big.NewInt(15000),
		LastPayment: evalTime.AddDate(0, -3, 0),
	}
	breakdown, err := engine.Compute(stall, nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if breakdown.MonthsUnpaid != 3 {
		t.Fatalf("months unpaid = %d, want 3", breakdown.MonthsUnpaid)
	}
	if breakdown.RentDebt.Cmp(big.NewInt(45000)) != 0 {
		t.Fatalf("rent debt = %s, want 45000", breakdown.RentDebt)
	}
	if breakdown.TotalDebt.Cmp(big.NewInt(45000)) != 0 {
		t.Fatalf("total debt = %s, want 45000", breakdown.TotalDebt)
	}
	if len(breakdown.LineItems) != 3 {
		t.Fatalf("expected 3 rent line items, got %d", len(breakdown.LineItems))
	}
	for i := 1; i < len(breakdown.LineItems); i++ {
		if !breakdown.LineItems[i-1].Due.Before(breakdown.LineItems[i].Due) {
			t.Fatalf("line item due dates not strictly increasing: %v then %v",
				breakdown.LineItems[i-1].Due, breakdown.LineItems[i].Due)
		}
	}
}

func TestComputeCalendarMonthGranularity(t *testing.T) {
	// Paid on the 31st, evaluated on the 1st of the next month: already one
	// month unpaid under the calendar-month policy.
	engine := NewEngine()
	engine.SetNowFunc(func() time.Time {
		return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	})
	stall := Stall{
		ID:          "S-104",
		Price:       big.NewInt(15000),
		LastPayment: time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC),
	}
	breakdown, err := engine.Compute(stall, nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if breakdown.MonthsUnpaid != 1 {
		t.Fatalf("months unpaid = %d, want 1", breakdown.MonthsUnpaid)
	}
}

func TestComputeFinesOnly(t *testing.T) {
	engine := newTestEngine()
	stall := Stall{ID: "S-104", Price: big.NewInt(15000), LastPayment: evalTime}
	sanctions := []Sanction{
		{StallID: "S-104", Status: SanctionStatusActive, Type: SanctionTypeFine, Amount: big.NewInt(5000), Date: evalTime.AddDate(0, 0, -10), Reason: "obstruction"},
		{StallID: "S-104", Status: SanctionStatusActive, Type: SanctionTypeFine, Amount: big.NewInt(10000), Date: evalTime.AddDate(0, 0, -3), Reason: "sanitation"},
		{StallID: "S-104", Status: "lifted", Type: SanctionTypeFine, Amount: big.NewInt(7000), Date: evalTime},
		{StallID: "S-104", Status: SanctionStatusActive, Type: "warning", Amount: big.NewInt(9000), Date: evalTime},
		{StallID: "S-999", Status: SanctionStatusActive, Type: SanctionTypeFine, Amount: big.NewInt(4000), Date: evalTime},
	}
	breakdown, err := engine.Compute(stall, sanctions)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if breakdown.MonthsUnpaid != 0 {
		t.Fatalf("months unpaid = %d, want 0", breakdown.MonthsUnpaid)
	}
	if breakdown.RentDebt.Sign() != 0 {
		t.Fatalf("rent debt = %s, want 0", breakdown.RentDebt)
	}
	if breakdown.FineAmount.Cmp(big.NewInt(15000)) != 0 {
		t.Fatalf("fine amount = %s, want 15000", breakdown.FineAmount)
	}
	if breakdown.TotalDebt.Cmp(big.NewInt(15000)) != 0 {
		t.Fatalf("total debt = %s, want 15000", breakdown.TotalDebt)
	}
	if len(breakdown.LineItems) != 2 {
		t.Fatalf("expected 2 fine line items, got %d", len(breakdown.LineItems))
	}
	if breakdown.LineItems[0].Label != "Fine: obstruction" {
		t.Fatalf("fine items not sorted by date: %+v", breakdown.LineItems)
	}
}

func TestComputeMixedScheduleOrdering(t *testing.T) {
	engine := newTestEngine()
	stall := Stall{
		ID:          "S-104",
		Price:       big.NewInt(15000),
		LastPayment: evalTime.AddDate(0, -2, 0),
	}
	fineDate := stall.LastPayment.AddDate(0, 1, 10)
	sanctions := []Sanction{
		{StallID: "S-104", Status: SanctionStatusActive, Type: SanctionTypeFine, Amount: big.NewInt(2500), Date: fineDate, Reason: "late closure"},
	}
	breakdown, err := engine.Compute(stall, sanctions)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(breakdown.LineItems) != 3 {
		t.Fatalf("expected 3 line items, got %d", len(breakdown.LineItems))
	}
	for i := 1; i < len(breakdown.LineItems); i++ {
		if breakdown.LineItems[i].Due.Before(breakdown.LineItems[i-1].Due) {
			t.Fatalf("line items out of order at %d: %+v", i, breakdown.LineItems)
		}
	}
	// The fine falls between the first and second rent month.
	if breakdown.LineItems[1].Label != "Fine: late closure" {
		t.Fatalf("fine not interleaved by due date: %+v", breakdown.LineItems)
	}
	if breakdown.TotalDebt.Cmp(big.NewInt(32500)) != 0 {
		t.Fatalf("total debt = %s, want 32500", breakdown.TotalDebt)
	}
}

func TestComputeCorruptedStateShortCircuits(t *testing.T) {
	engine := newTestEngine()
	guardCalls := 0
	engine.SetGuard(func(stall Stall, now time.Time) bool {
		guardCalls++
		return false
	})
	stall := Stall{ID: "S-104", Price: big.NewInt(-5000), LastPayment: evalTime}
	breakdown, err := engine.Compute(stall, []Sanction{
		{StallID: "S-104", Status: SanctionStatusActive, Type: SanctionTypeFine, Amount: big.NewInt(5000), Date: evalTime},
	})
	if !errors.Is(err, ErrStateCorrupted) {
		t.Fatalf("expected ErrStateCorrupted, got %v", err)
	}
	if breakdown != nil {
		t.Fatalf("expected no partial computation, got %+v", breakdown)
	}
	if guardCalls != 1 {
		t.Fatalf("guard called %d times, want 1", guardCalls)
	}
}

func TestComputeIdempotent(t *testing.T) {
	engine := newTestEngine()
	stall := Stall{
		ID:          "S-104",
		Price:       big.NewInt(15000),
		LastPayment: evalTime.AddDate(0, -3, 0),
	}
	sanctions := []Sanction{
		{StallID: "S-104", Status: SanctionStatusActive, Type: SanctionTypeFine, Amount: big.NewInt(5000), Date: evalTime.AddDate(0, -1, 0), Reason: "sanitation"},
	}
	first, err := engine.Compute(stall, sanctions)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	second, err := engine.Compute(stall, sanctions)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated evaluation diverged:\n%+v\n%+v", first, second)
	}
}
