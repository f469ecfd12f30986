/*
activity.go - Activity: one versioned grant unit

PURPOSE:
  An Activity is a time-bounded service under an appropriation. A change to
  a granted activity is recorded as a new activity that "modifies" it; the
  modifies links form a backward chain (see chain.go).

STATES:
  DRAFT ──▶ EXPECTED ──▶ GRANTED

  Transitions are monotonic. Grant on a GRANTED activity is a no-op.

INVARIANTS:
  - start date set, end date (when set) not before start
  - at most one MAIN activity without modifies per appropriation (store.go)
  - modifies points inside the same appropriation (service.go)

SEE ALSO:
  - chain.go: successor index and cost attribution
  - grant.go: Appropriation-level grant
*/
package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Activity is one instance of a service under an appropriation.
type Activity struct {
	ID              ActivityID
	AppropriationID AppropriationID
	Type            ActivityType
	Status          Status
	StartDate       Date
	EndDate         *Date // nil = open-ended
	DetailsID       DetailsID

	ServiceProviderID ServiceProviderID
	Modifies          ActivityID // predecessor, empty if none

	AppropriationDate *Date
	Approval          Approval
	Note              string
}

func (a *Activity) IsMain() bool { return a.Type == MainActivity }

// Validate checks the activity's own fields.
func (a *Activity) Validate() error {
	if a.Type != MainActivity && a.Type != SupplementaryActivity {
		return &InvariantError{Record: "activity", Message: fmt.Sprintf("unknown activity type %q", a.Type)}
	}
	if !a.Status.Valid() {
		return &InvariantError{Record: "activity", Message: fmt.Sprintf("unknown status %q", a.Status)}
	}
	if a.StartDate.IsZero() {
		return &InvariantError{Record: "activity", Message: "start date is required"}
	}
	if a.EndDate != nil && a.EndDate.Before(a.StartDate) {
		return &InvariantError{
			Record:  "activity",
			Message: fmt.Sprintf("end date %s is before start date %s", a.EndDate, a.StartDate),
		}
	}
	if a.Modifies != "" && a.Modifies == a.ID {
		return &InvariantError{Record: "activity", Message: "an activity cannot modify itself"}
	}
	return nil
}

// Grant promotes the activity to GRANTED and stamps the appropriation date.
// It returns false when the activity was already granted.
func (a *Activity) Grant(approval Approval, today Date) bool {
	if a.Status == StatusGranted {
		return false
	}
	a.Status = StatusGranted
	a.AppropriationDate = today.Ptr()
	a.Approval = approval
	return true
}

// VATFactor returns the provider's factor, or 100 without provider.
func VATFactor(sp *ServiceProvider) decimal.Decimal {
	if sp == nil || sp.VATFactor.IsZero() {
		return DefaultVATFactor
	}
	return sp.VATFactor
}

// =============================================================================
// EXPECTED ACTIVITY VALIDATION
// =============================================================================

// ExpectedCheck carries what ValidateExpected needs about the modified activity.
type ExpectedCheck struct {
	Modified            *Activity
	ModifiedNextPayment *Payment
	Schedule            *PaymentSchedule // the expected activity's own schedule
}

// ValidateExpected checks an expected adjustment before it is granted.
func (a *Activity) ValidateExpected(c ExpectedCheck, today Date) error {
	if a.Modifies == "" || c.Modified == nil {
		return &ValidationError{ActivityID: a.ID, Message: "the expected adjustment has no activity to modify"}
	}
	if c.Modified.AppropriationID != a.AppropriationID {
		return &ValidationError{ActivityID: a.ID, Message: "the modified activity belongs to another appropriation"}
	}
	if !a.StartDate.Equal(c.Modified.StartDate) {
		return nil
	}

	ended := c.Modified.EndDate != nil && c.Modified.EndDate.Before(today)
	if !ended || c.ModifiedNextPayment == nil {
		return nil
	}
	oneTimeSameDay := c.Schedule != nil && c.Schedule.PaymentType == OneTimePayment &&
		a.EndDate != nil && a.EndDate.Equal(a.StartDate)
	if oneTimeSameDay {
		return nil
	}
	return &ValidationError{
		ActivityID: a.ID,
		Message:    fmt.Sprintf("start date %s equals the start date of the ended activity it modifies", a.StartDate),
	}
}
