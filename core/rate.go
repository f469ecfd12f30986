package core

import "github.com/shopspring/decimal"

// Rate is a municipality-wide unit price that changes over time.
type Rate struct {
	ID      RateID
	Name    string
	Periods []RatePeriod
}

// RatePeriod is a price valid from Start through End (open when nil).
type RatePeriod struct {
	Start Date
	End   *Date
	Price decimal.Decimal
}

// PriceOn returns the price valid on d. Later periods win on overlap.
func (r *Rate) PriceOn(d Date) (decimal.Decimal, bool) {
	var (
		price decimal.Decimal
		found bool
		from  Date
	)
	for _, p := range r.Periods {
		if d.Before(p.Start) || (p.End != nil && d.After(*p.End)) {
			continue
		}
		if !found || p.Start.After(from) {
			price, from, found = p.Price, p.Start, true
		}
	}
	return price, found
}
