/*
payment.go - Payment: one dated obligation of a schedule

PURPOSE:
  Payments are generated by their schedule and removed again when the
  schedule's range shrinks, until they are paid. A paid payment is durable
  financial history: reconciliation never deletes or alters it.

PAID FIELDS:
  Paid, PaidDate and PaidAmount are set together or not at all. A payment
  may only be paid while its activity is GRANTED.

ACCOUNT STRINGS:
  "{department}-{account number}-{kind}". The first time a payment is marked
  paid, both strings are saved on the payment and returned from then on,
  so later account-mapping edits do not rewrite paid history.

SEE ALSO:
  - schedule.go: generation
  - accounting.go: department and kind codes
*/
package core

import (
	"fmt"
	"iter"
	"sort"

	"github.com/shopspring/decimal"
)

// Payment is a single dated amount owned by a schedule.
type Payment struct {
	ID         PaymentID
	ScheduleID ScheduleID
	Date       Date
	Amount     decimal.Decimal

	// Recipient snapshot taken from the schedule at generation time
	RecipientType RecipientType
	RecipientID   string
	RecipientName string
	PaymentMethod PaymentMethod
	Fictive       bool

	Paid       bool
	PaidDate   *Date
	PaidAmount decimal.NullDecimal
	Note       string

	SavedAccountString    string
	SavedAccountStringNew string
}

// newPayment stamps a payment for date with the schedule's recipient.
func newPayment(s *PaymentSchedule, date Date, amount decimal.Decimal) Payment {
	return Payment{
		ID:            PaymentID(NewID()),
		ScheduleID:    s.ID,
		Date:          date,
		Amount:        amount,
		RecipientType: s.RecipientType,
		RecipientID:   s.RecipientID,
		RecipientName: s.RecipientName,
		PaymentMethod: s.PaymentMethod,
		Fictive:       s.Fictive,
	}
}

// ValidatePaidFields enforces that paid, paid date and paid amount are set together.
func (p *Payment) ValidatePaidFields() error {
	set := 0
	if p.Paid {
		set++
	}
	if p.PaidDate != nil {
		set++
	}
	if p.PaidAmount.Valid {
		set++
	}
	if set != 0 && set != 3 {
		return &InvariantError{
			Record:  "payment",
			Message: "paid, paid date and paid amount must be set together",
		}
	}
	return nil
}

// Validate checks the payment before it is saved.
func (p *Payment) Validate() error {
	if err := checkRecipientMethod("payment", p.RecipientType, p.PaymentMethod); err != nil {
		return err
	}
	return p.ValidatePaidFields()
}

func (p *Payment) String() string {
	return fmt.Sprintf("%s - %s - %s - %s", p.RecipientType, p.RecipientName, p.Date, p.Amount.StringFixed(1))
}

// =============================================================================
// ACCOUNT STRINGS
// =============================================================================

// AccountContext is everything an account string depends on.
type AccountContext struct {
	Config AccountingConfig

	// Legacy account mapping and the details its number falls back to
	Account      *Account
	MainDetails  *ActivityDetails
	SupplDetails *ActivityDetails

	// AccountNumber is the activity's SectionInfo account number, "" if none.
	AccountNumber string
	Alias         string
}

// AccountString returns the saved string, else the legacy account string,
// else "" when no account matches.
func (p *Payment) AccountString(ac AccountContext) string {
	if p.SavedAccountString != "" {
		return p.SavedAccountString
	}
	if ac.Account == nil {
		return ""
	}
	return ac.Config.Format(ac.Account.Number(ac.MainDetails, ac.SupplDetails))
}

// AccountStringNew returns the saved new string, else the saved legacy
// string, else the SectionInfo based account string.
func (p *Payment) AccountStringNew(ac AccountContext) string {
	if p.SavedAccountStringNew != "" {
		return p.SavedAccountStringNew
	}
	if p.SavedAccountString != "" {
		return p.SavedAccountString
	}
	if ac.AccountNumber == "" {
		return ""
	}
	return ac.Config.Format(ac.AccountNumber)
}

// freezeAccountStrings saves both strings if they are not saved yet.
// Both are computed before either is saved, since AccountStringNew falls
// back to the saved legacy string.
func (p *Payment) freezeAccountStrings(ac AccountContext) {
	legacy, fresh := p.AccountString(ac), p.AccountStringNew(ac)
	if p.SavedAccountString == "" {
		p.SavedAccountString = legacy
	}
	if p.SavedAccountStringNew == "" {
		p.SavedAccountStringNew = fresh
	}
}

// =============================================================================
// AGGREGATION
// =============================================================================

// SumAmounts totals the payment amounts.
func SumAmounts(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// InYear keeps the payments dated in year.
func InYear(payments []Payment, year int) []Payment {
	var out []Payment
	for _, p := range payments {
		if p.Date.Year() == year {
			out = append(out, p)
		}
	}
	return out
}

// MonthlyPaymentPlan sums payments per "YYYY-MM", in chronological order.
func MonthlyPaymentPlan(payments []Payment) iter.Seq2[string, decimal.Decimal] {
	sums := make(map[string]decimal.Decimal)
	for _, p := range payments {
		key := p.Date.YearMonth()
		sums[key] = sums[key].Add(p.Amount)
	}
	months := make([]string, 0, len(sums))
	for m := range sums {
		months = append(months, m)
	}
	sort.Strings(months)

	return func(yield func(string, decimal.Decimal) bool) {
		for _, m := range months {
			if !yield(m, sums[m]) {
				return
			}
		}
	}
}

// SortPayments orders payments by date.
func SortPayments(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].Date.Before(payments[j].Date)
	})
}
