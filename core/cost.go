/*
cost.go - Cost attribution across modification chains

PURPOSE:
  Computes activity and appropriation totals from payments, attributing
  each payment to the most recent chain link that covers its date (see
  cut dates in chain.go).

ACTIVITY TOTALS:
  TotalCost             own payments before the GRANTED cut
  TotalCostThisYear     own payments this year before the GRANTED+EXPECTED cut
  TotalGrantedThisYear  zero unless GRANTED; this year before the GRANTED cut
  TotalCostFullYear     annualized: per-payment amount over all of this year

APPROPRIATION TOTALS:
  Granted totals sum GRANTED activities. Expected totals sum GRANTED and
  EXPECTED activities, letting an expected adjustment replace the part of
  the granted activity it modifies. Full-year totals only count chain heads.
*/
package core

import "github.com/shopspring/decimal"

var (
	grantedOnly        = []Status{StatusGranted}
	grantedAndExpected = []Status{StatusGranted, StatusExpected}
)

// CostView holds what cost computations need for one appropriation.
type CostView struct {
	Chain *Chain
	Year  int

	payments map[ActivityID][]Payment
	fullYear map[ActivityID]decimal.Decimal
}

// NewCostView creates an empty view for year.
func NewCostView(chain *Chain, year int) *CostView {
	return &CostView{
		Chain:    chain,
		Year:     year,
		payments: make(map[ActivityID][]Payment),
		fullYear: make(map[ActivityID]decimal.Decimal),
	}
}

// SetPayments records the payments of an activity's schedule.
func (v *CostView) SetPayments(id ActivityID, payments []Payment) { v.payments[id] = payments }

// SetFullYear records the annualized cost of an activity.
func (v *CostView) SetFullYear(id ActivityID, amount decimal.Decimal) { v.fullYear[id] = amount }

// Payments returns the recorded payments of an activity.
func (v *CostView) Payments(id ActivityID) []Payment { return v.payments[id] }

// attributed returns the payments of id dated before its cut for statuses.
func (v *CostView) attributed(id ActivityID, statuses []Status) []Payment {
	cut := v.Chain.CutDate(id, statuses...)
	if cut == nil {
		return v.payments[id]
	}
	var out []Payment
	for _, p := range v.payments[id] {
		if p.Date.Before(*cut) {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// ACTIVITY TOTALS
// =============================================================================

func (v *CostView) TotalCost(id ActivityID) decimal.Decimal {
	return SumAmounts(v.attributed(id, grantedOnly))
}

func (v *CostView) TotalCostThisYear(id ActivityID) decimal.Decimal {
	return SumAmounts(InYear(v.attributed(id, grantedAndExpected), v.Year))
}

func (v *CostView) TotalGrantedThisYear(id ActivityID) decimal.Decimal {
	a := v.Chain.Activity(id)
	if a == nil || a.Status != StatusGranted {
		return decimal.Zero
	}
	return SumAmounts(InYear(v.attributed(id, grantedOnly), v.Year))
}

func (v *CostView) TotalCostFullYear(id ActivityID) decimal.Decimal {
	return v.fullYear[id]
}

// =============================================================================
// APPROPRIATION TOTALS
// =============================================================================

func (v *CostView) GrantedThisYear() decimal.Decimal {
	total := decimal.Zero
	for _, a := range v.Chain.Activities() {
		total = total.Add(v.TotalGrantedThisYear(a.ID))
	}
	return total
}

func (v *CostView) ExpectedThisYear() decimal.Decimal {
	total := decimal.Zero
	for _, a := range v.Chain.Activities() {
		if hasStatus(a, grantedAndExpected) {
			total = total.Add(v.TotalCostThisYear(a.ID))
		}
	}
	return total
}

func (v *CostView) GrantedFullYear() decimal.Decimal {
	return v.fullYearOf(grantedOnly)
}

func (v *CostView) ExpectedFullYear() decimal.Decimal {
	return v.fullYearOf(grantedAndExpected)
}

func (v *CostView) fullYearOf(statuses []Status) decimal.Decimal {
	total := decimal.Zero
	for _, a := range v.Chain.Activities() {
		if hasStatus(a, statuses) && !v.Chain.Superseded(a.ID, statuses...) {
			total = total.Add(v.fullYear[a.ID])
		}
	}
	return total
}

// =============================================================================
// ANNUALIZED COST
// =============================================================================

// FullYearCost prices every occurrence of the schedule between Jan 1 and
// Dec 31 of year. One-time and individual schedules have no recurrence, so
// their payments dated in year are summed instead.
func (s *PaymentSchedule) FullYearCost(year int, price AmountFunc, payments []Payment) (decimal.Decimal, error) {
	if s.PaymentType == OneTimePayment || !s.Generates() {
		return SumAmounts(InYear(payments, year)), nil
	}
	p := YearPeriod(year)
	seq, err := s.RRule(p.Start, p.End)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for d := range seq {
		amount, err := price(d)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, nil
}
