package core

import "github.com/shopspring/decimal"

// Appropriation groups the activities granted under one section for a case.
type Appropriation struct {
	ID        AppropriationID
	CaseID    CaseID
	SbsysID   string
	SectionID SectionID
	Note      string
}

// AppropriationSummary is the derived state of an appropriation.
type AppropriationSummary struct {
	Appropriation Appropriation
	Status        Status
	GrantedFrom   *Date
	GrantedTo     *Date

	TotalGrantedThisYear  decimal.Decimal
	TotalExpectedThisYear decimal.Decimal
	TotalGrantedFullYear  decimal.Decimal
	TotalExpectedFullYear decimal.Decimal
}

// Summarize derives status, granted period and totals from a cost view.
func Summarize(ap Appropriation, v *CostView) AppropriationSummary {
	from, to := v.Chain.GrantedPeriod()
	return AppropriationSummary{
		Appropriation:         ap,
		Status:                v.Chain.Status(),
		GrantedFrom:           from,
		GrantedTo:             to,
		TotalGrantedThisYear:  v.GrantedThisYear(),
		TotalExpectedThisYear: v.ExpectedThisYear(),
		TotalGrantedFullYear:  v.GrantedFullYear(),
		TotalExpectedFullYear: v.ExpectedFullYear(),
	}
}

// ActivityTotals are the cost figures of one activity.
type ActivityTotals struct {
	TotalCost            decimal.Decimal
	TotalCostThisYear    decimal.Decimal
	TotalCostFullYear    decimal.Decimal
	TotalGrantedThisYear decimal.Decimal
}

// Totals collects the cost figures of id.
func (v *CostView) Totals(id ActivityID) ActivityTotals {
	return ActivityTotals{
		TotalCost:            v.TotalCost(id),
		TotalCostThisYear:    v.TotalCostThisYear(id),
		TotalCostFullYear:    v.TotalCostFullYear(id),
		TotalGrantedThisYear: v.TotalGrantedThisYear(id),
	}
}
