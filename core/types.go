/*
Package core provides the appropriation and payment engine.

PURPOSE:
  Caseworkers grant time-bounded activities (services or benefits) under an
  appropriation. Each activity owns a payment schedule which expands into
  dated payments. This package holds the rules that govern those grants,
  the recurrence engine that materializes payments, and the cost model that
  attributes payments across chains of activities superseding each other.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: type-safe string ids for every record
  - Enumerations: activity type/status, recipient, method, payment type,
    cost type and frequency
  - Reference data: sections, section infos, activity details, service
    providers, accounts, account aliases, rates

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal
  2. Day granularity: dates are Date (UTC midnight), see time.go
  3. Paid history is immutable: reconciliation never touches paid payments
  4. Explicit configuration: department/kind codes are passed in, never global

SEE ALSO:
  - schedule.go: PaymentSchedule and the recurrence engine
  - activity.go: Activity state machine
  - grant.go: Appropriation grant orchestration
  - service.go: Transactional operations over a Store
*/
package core

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CaseID string
type AppropriationID string
type ActivityID string
type ScheduleID string
type PaymentID string
type SectionID string
type DetailsID string
type ServiceProviderID string
type RateID string

// NewID returns a random identifier for a new record.
func NewID() string { return uuid.NewString() }

// =============================================================================
// ENUMERATIONS
// =============================================================================

type ActivityType string

const (
	MainActivity          ActivityType = "MAIN_ACTIVITY"
	SupplementaryActivity ActivityType = "SUPPL_ACTIVITY"
)

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusExpected Status = "EXPECTED"
	StatusGranted  Status = "GRANTED"
)

// rank orders statuses by precedence: GRANTED > EXPECTED > DRAFT.
func (s Status) rank() int {
	switch s {
	case StatusGranted:
		return 2
	case StatusExpected:
		return 1
	default:
		return 0
	}
}

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusExpected || s == StatusGranted
}

type RecipientType string

const (
	RecipientPerson   RecipientType = "PERSON"
	RecipientCompany  RecipientType = "COMPANY"
	RecipientInternal RecipientType = "INTERNAL"
)

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodSD       PaymentMethod = "SD"
	MethodInvoice  PaymentMethod = "INVOICE"
	MethodInternal PaymentMethod = "INTERNAL"
)

type PaymentType string

const (
	OneTimePayment    PaymentType = "ONE_TIME_PAYMENT"
	RunningPayment    PaymentType = "RUNNING_PAYMENT"
	PerHourPayment    PaymentType = "PER_HOUR_PAYMENT"
	PerDayPayment     PaymentType = "PER_DAY_PAYMENT"
	PerKmPayment      PaymentType = "PER_KM_PAYMENT"
	IndividualPayment PaymentType = "INDIVIDUAL_PAYMENT"
)

// unitBased reports whether the amount is a unit price multiplied by units.
func (t PaymentType) unitBased() bool {
	return t == PerHourPayment || t == PerDayPayment || t == PerKmPayment
}

type CostType string

const (
	CostFixed      CostType = "FIXED"
	CostPerUnit    CostType = "PER_UNIT"
	CostGlobalRate CostType = "GLOBAL_RATE"
)

type Frequency string

const (
	FrequencyNone     Frequency = ""
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Section is a legal basis (paragraph) under which appropriations are made.
type Section struct {
	ID        SectionID
	Paragraph string
	Text      string
	Kle       string
}

// ActivityDetails classifies a service. ActivityID is the account activity code.
type ActivityDetails struct {
	ID                  DetailsID
	Name                string
	ActivityID          string
	MaxTolerancePercent int
	MaxToleranceAmount  decimal.Decimal
}

// SectionInfo binds ActivityDetails to a Section and carries the main account numbers.
type SectionInfo struct {
	ID                                     string
	DetailsID                              DetailsID
	SectionID                              SectionID
	MainActivityMainAccountNumber          string
	SupplementaryActivityMainAccountNumber string
}

// MainAccount returns the main account number for activityType. Supplementary
// activities use their own main account number, falling back to the main one.
func (si *SectionInfo) MainAccount(activityType ActivityType) string {
	if activityType == SupplementaryActivity && si.SupplementaryActivityMainAccountNumber != "" {
		return si.SupplementaryActivityMainAccountNumber
	}
	return si.MainActivityMainAccountNumber
}

// AccountNumber formats "main account-activity code".
func (si *SectionInfo) AccountNumber(activityType ActivityType, activityCode string) string {
	return si.MainAccount(activityType) + "-" + activityCode
}

// ServiceProvider supplies services. VATFactor is a percentage (100 = no discount).
type ServiceProvider struct {
	ID        ServiceProviderID
	CVR       string
	Name      string
	VATFactor decimal.Decimal
}

// Account is the legacy account mapping keyed by section and activity details.
type Account struct {
	ID                             string
	SectionID                      SectionID
	MainActivityDetailsID          DetailsID
	SupplementaryActivityDetailsID DetailsID // empty for main activities
	MainAccountNumber              string
	ActivityNumber                 string
}

// Number renders "main-activity", where an empty ActivityNumber falls back to
// the supplementary details' code, else the main details' code.
func (a *Account) Number(main, suppl *ActivityDetails) string {
	activity := a.ActivityNumber
	if activity == "" {
		switch {
		case suppl != nil:
			activity = suppl.ActivityID
		case main != nil:
			activity = main.ActivityID
		}
	}
	return a.MainAccountNumber + "-" + activity
}

// AccountAlias maps (main account number, activity number) to an external alias.
type AccountAlias struct {
	MainAccountNumber string
	ActivityNumber    string
	Alias             string
}

// ApprovalLevel names who may approve a grant.
type ApprovalLevel struct {
	ID   string
	Name string
}

// Approval captures who granted activities and at which level.
type Approval struct {
	LevelID string
	Note    string
	UserID  string
}
