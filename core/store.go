/*
store.go - Persistence interfaces

PURPOSE:
  Defines the interface between the domain logic and the database. Stores
  persist records as given; the rules that decide what to write live in
  service.go and grant.go.

KEY INTERFACES:
  ReferenceStore:  sections, details, section infos, providers, accounts, rates
  CaseStore:       cases and appropriations
  ActivityStore:   activities
  PaymentStore:    payment schedules and payments
  TxStore:         all of the above plus atomic multi-record writes

LOOKUPS:
  Get* and Find* return an error wrapping ErrNotFound when nothing matches.

UNIQUENESS:
  A store rejects a second MAIN activity without modifies in the same
  appropriation, and a second schedule for the same activity, with an
  error wrapping ErrConflict.

IMPLEMENTATIONS:
  - core/store/memory.go: in-memory, snapshot rollback
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - service.go: runs every write inside WithTx
*/
package core

import "context"

// =============================================================================
// STORE INTERFACES
// =============================================================================

type ReferenceStore interface {
	SaveSection(ctx context.Context, s Section) error
	GetSection(ctx context.Context, id SectionID) (*Section, error)
	ListSections(ctx context.Context) ([]Section, error)

	SaveActivityDetails(ctx context.Context, d ActivityDetails) error
	GetActivityDetails(ctx context.Context, id DetailsID) (*ActivityDetails, error)
	ListActivityDetails(ctx context.Context) ([]ActivityDetails, error)

	SaveSectionInfo(ctx context.Context, si SectionInfo) error
	FindSectionInfo(ctx context.Context, details DetailsID, section SectionID) (*SectionInfo, error)

	SaveServiceProvider(ctx context.Context, sp ServiceProvider) error
	GetServiceProvider(ctx context.Context, id ServiceProviderID) (*ServiceProvider, error)
	ListServiceProviders(ctx context.Context) ([]ServiceProvider, error)

	SaveAccount(ctx context.Context, a Account) error
	// FindAccount matches on section and both details ids; suppl is empty for main activities.
	FindAccount(ctx context.Context, section SectionID, main, suppl DetailsID) (*Account, error)

	SaveAccountAlias(ctx context.Context, a AccountAlias) error
	FindAccountAlias(ctx context.Context, mainAccountNumber, activityNumber string) (*AccountAlias, error)

	SaveRate(ctx context.Context, r Rate) error
	GetRate(ctx context.Context, id RateID) (*Rate, error)
	ListRates(ctx context.Context) ([]Rate, error)
}

type CaseStore interface {
	SaveCase(ctx context.Context, c Case) error
	GetCase(ctx context.Context, id CaseID) (*Case, error)
	ListCases(ctx context.Context) ([]Case, error)

	SaveAppropriation(ctx context.Context, a Appropriation) error
	GetAppropriation(ctx context.Context, id AppropriationID) (*Appropriation, error)
	ListAppropriations(ctx context.Context, caseID CaseID) ([]Appropriation, error)
}

type ActivityStore interface {
	SaveActivity(ctx context.Context, a Activity) error
	GetActivity(ctx context.Context, id ActivityID) (*Activity, error)
	// ListActivities returns the activities of an appropriation ordered by start date.
	ListActivities(ctx context.Context, appropriationID AppropriationID) ([]Activity, error)
	// ListOpenEnded returns all activities without end date.
	ListOpenEnded(ctx context.Context) ([]Activity, error)
	DeleteActivity(ctx context.Context, id ActivityID) error
}

type PaymentStore interface {
	SaveSchedule(ctx context.Context, s PaymentSchedule) error
	GetSchedule(ctx context.Context, id ScheduleID) (*PaymentSchedule, error)
	GetScheduleByActivity(ctx context.Context, activityID ActivityID) (*PaymentSchedule, error)
	// DeleteSchedule removes the schedule and its payments.
	DeleteSchedule(ctx context.Context, id ScheduleID) error

	SavePayments(ctx context.Context, payments []Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	// ListPayments returns the payments of a schedule ordered by date.
	ListPayments(ctx context.Context, scheduleID ScheduleID) ([]Payment, error)
	DeletePayments(ctx context.Context, ids []PaymentID) error
}

// Store is the full persistence surface.
type Store interface {
	ReferenceStore
	CaseStore
	ActivityStore
	PaymentStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
