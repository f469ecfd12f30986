/*
schedule.go - PaymentSchedule: recurrence and per-payment amount

PURPOSE:
  A PaymentSchedule is the payment policy of one activity. It is expanded
  into concrete Payment rows for a date range and re-expanded (synchronized)
  whenever the activity's range changes.

RECURRENCE (rrule.go):
  ONE_TIME_PAYMENT   exactly one occurrence at start
  DAILY              every day from start through until
  WEEKLY / BIWEEKLY  every 7 / 14 days from start through until
  MONTHLY            on DayOfMonth; months without that day are skipped

OPEN-ENDED SCHEDULES:
  An activity without end date is materialized through Dec 31 of next year
  (PaymentHorizon). As today advances the horizon advances with it, so a
  later synchronization extends the payments.

AMOUNTS:
  ONE_TIME / RUNNING               amount * vat/100
  PER_HOUR / PER_DAY / PER_KM      amount * units * vat/100
  INDIVIDUAL                       configuration error (entered by hand)
  GLOBAL_RATE cost type takes the unit price from a Rate on each date.

SEE ALSO:
  - rrule.go: occurrence generation
  - payment.go: the generated rows
  - service.go: generate / synchronize against a Store
*/
package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DefaultVATFactor means no discount.
var DefaultVATFactor = hundred

// PaymentSchedule is the payment policy owned by an activity.
type PaymentSchedule struct {
	ID         ScheduleID
	ActivityID ActivityID // empty when detached

	// PaymentID is the stable external identifier. Empty means the schedule's own id.
	PaymentID string

	RecipientType RecipientType
	RecipientID   string
	RecipientName string
	PaymentMethod PaymentMethod

	PaymentType PaymentType
	CostType    CostType
	Frequency   Frequency
	Amount      decimal.Decimal
	Units       decimal.Decimal
	DayOfMonth  int
	RateID      RateID

	// Fictive schedules produce payments that are not real transfers.
	Fictive bool
}

// allowedMethods is the recipient type / payment method allow-list.
var allowedMethods = map[RecipientType][]PaymentMethod{
	RecipientPerson:   {MethodCash, MethodSD},
	RecipientCompany:  {MethodInvoice, MethodCash},
	RecipientInternal: {MethodInternal},
}

// RecipientMethodAllowed reports whether the pair is on the allow-list.
func RecipientMethodAllowed(rt RecipientType, pm PaymentMethod) bool {
	for _, m := range allowedMethods[rt] {
		if m == pm {
			return true
		}
	}
	return false
}

func checkRecipientMethod(record string, rt RecipientType, pm PaymentMethod) error {
	if !RecipientMethodAllowed(rt, pm) {
		return &InvariantError{
			Record:  record,
			Message: fmt.Sprintf("payment method %s is not allowed for recipient type %s", pm, rt),
		}
	}
	return nil
}

// PaymentIdentifier returns PaymentID, defaulting to the schedule id.
func (s *PaymentSchedule) PaymentIdentifier() string {
	if s.PaymentID != "" {
		return s.PaymentID
	}
	return string(s.ID)
}

// Generates reports whether payments are derived from the recurrence.
// Individual schedules are maintained by hand.
func (s *PaymentSchedule) Generates() bool {
	return s.PaymentType != IndividualPayment
}

// Normalize fills defaults for optional fields.
func (s *PaymentSchedule) Normalize() {
	if s.CostType == "" {
		s.CostType = CostFixed
	}
	if s.DayOfMonth == 0 {
		s.DayOfMonth = 1
	}
}

// Validate checks the schedule before it is saved.
func (s *PaymentSchedule) Validate() error {
	if err := checkRecipientMethod("payment schedule", s.RecipientType, s.PaymentMethod); err != nil {
		return err
	}

	switch s.PaymentType {
	case OneTimePayment, IndividualPayment:
	case RunningPayment, PerHourPayment, PerDayPayment, PerKmPayment:
		switch s.Frequency {
		case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		default:
			return &ConfigError{Field: "frequency", Value: string(s.Frequency)}
		}
	default:
		return &ConfigError{Field: "payment_type", Value: string(s.PaymentType)}
	}

	if s.DayOfMonth < 0 || s.DayOfMonth > 31 {
		return &ConfigError{Field: "day_of_month", Value: fmt.Sprint(s.DayOfMonth)}
	}

	switch s.CostType {
	case "", CostFixed, CostPerUnit:
	case CostGlobalRate:
		if s.RateID == "" {
			return &InvariantError{Record: "payment schedule", Message: "global rate cost type requires a rate"}
		}
	default:
		return &ConfigError{Field: "cost_type", Value: string(s.CostType)}
	}
	return nil
}

// =============================================================================
// AMOUNTS
// =============================================================================

// CalculatePerPaymentAmount returns the amount of one payment for vatFactor
// (a percentage, 100 = no discount).
func (s *PaymentSchedule) CalculatePerPaymentAmount(vatFactor decimal.Decimal) (decimal.Decimal, error) {
	return s.amountFor(s.Amount, vatFactor)
}

func (s *PaymentSchedule) amountFor(price, vatFactor decimal.Decimal) (decimal.Decimal, error) {
	factor := vatFactor.Div(hundred)
	switch {
	case s.PaymentType == OneTimePayment || s.PaymentType == RunningPayment:
		return price.Mul(factor), nil
	case s.PaymentType.unitBased():
		return price.Mul(s.Units).Mul(factor), nil
	default:
		return decimal.Zero, &ConfigError{Field: "payment_type", Value: string(s.PaymentType)}
	}
}

// AmountFunc prices the payment due on a date.
type AmountFunc func(Date) (decimal.Decimal, error)

// Pricing returns the amount function for the schedule. rate is required for
// the GLOBAL_RATE cost type and ignored otherwise.
func (s *PaymentSchedule) Pricing(vatFactor decimal.Decimal, rate *Rate) (AmountFunc, error) {
	fixed, err := s.CalculatePerPaymentAmount(vatFactor)
	if err != nil {
		return nil, err
	}
	if s.CostType != CostGlobalRate {
		return func(Date) (decimal.Decimal, error) { return fixed, nil }, nil
	}
	if rate == nil {
		return nil, &ConfigError{Field: "rate", Value: string(s.RateID)}
	}
	return func(d Date) (decimal.Decimal, error) {
		price, ok := rate.PriceOn(d)
		if !ok {
			return decimal.Zero, &ConfigError{Field: "rate " + rate.Name, Value: d.String()}
		}
		return s.amountFor(price, vatFactor)
	}, nil
}
