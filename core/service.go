/*
service.go - Transactional operations over a Store

PURPOSE:
  Service is the write path of the engine. Every operation that changes
  records runs inside TxStore.WithTx and holds the lock of the affected
  appropriation, so reconciliation never interleaves with a grant.

RECONCILIATION:
  A schedule's desired payment dates are its occurrences over the
  activity's range (open ends materialize through the horizon), cut off at
  the start of any GRANTED successor. Reconciling:

    unpaid, not desired   ──▶ deleted
    desired, no payment   ──▶ inserted at the current price
    paid                  ──▶ never touched

  A schedule without payments is generated from scratch instead.

NOTIFICATIONS:
  Collected during the transaction and sent after it commits. A failing
  notifier is logged, never rolled back.

EXAMPLE:
  svc := core.NewService(store.NewTxMemory())
  svc.Accounting = core.AccountingConfig{Department: "12345", Kind: "67890"}
  err := svc.SaveActivity(ctx, &activity)

SEE ALSO:
  - grant.go: Service.Grant
  - store.go: persistence interfaces
*/
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store      TxStore
	Notifier   Notifier
	Accounting AccountingConfig
	Logger     *slog.Logger

	// Now is the clock; today is its calendar day.
	Now func() time.Time

	locks appropriationLocks
}

// NewService returns a service with a no-op notifier and the wall clock.
func NewService(store TxStore) *Service {
	return &Service{
		Store:    store,
		Notifier: NopNotifier{},
		Logger:   slog.Default(),
		Now:      time.Now,
	}
}

// Today returns the service's current calendar day.
func (s *Service) Today() Date {
	if s.Now == nil {
		return DateOf(time.Now())
	}
	return DateOf(s.Now())
}

func (s *Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// appropriationLocks serializes writes per appropriation.
type appropriationLocks struct {
	mu    sync.Mutex
	locks map[AppropriationID]*sync.Mutex
}

func (l *appropriationLocks) lock(id AppropriationID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[AppropriationID]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// run executes fn in one transaction under the appropriation's lock and
// dispatches the collected notifications after commit.
func (s *Service) run(ctx context.Context, id AppropriationID, fn func(st Store, out *outbox) error) error {
	if id != "" {
		unlock := s.locks.lock(id)
		defer unlock()
	}
	var out outbox
	err := s.Store.WithTx(ctx, func(st Store) error {
		out = outbox{}
		return fn(st, &out)
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, out)
	return nil
}

func (s *Service) dispatch(ctx context.Context, out outbox) {
	if s.Notifier == nil {
		return
	}
	for _, n := range out.pending {
		if err := s.Notifier.Notify(ctx, n.kind, n.activity); err != nil {
			s.log().Error("notification failed",
				"kind", n.kind, "activity_id", n.activity.ID, "error", err)
		}
	}
}

// optional turns a not-found lookup into nil.
func optional[T any](v *T, err error) (*T, error) {
	if IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

// =============================================================================
// CASES AND APPROPRIATIONS
// =============================================================================

func (s *Service) SaveCase(ctx context.Context, c *Case) error {
	if c.ID == "" {
		c.ID = CaseID(NewID())
	}
	if c.CPRNumber == "" {
		return &InvariantError{Record: "case", Message: "cpr number is required"}
	}
	return s.Store.SaveCase(ctx, *c)
}

func (s *Service) SaveAppropriation(ctx context.Context, ap *Appropriation) error {
	if ap.ID == "" {
		ap.ID = AppropriationID(NewID())
	}
	return s.run(ctx, ap.ID, func(st Store, _ *outbox) error {
		if _, err := st.GetCase(ctx, ap.CaseID); err != nil {
			return err
		}
		if _, err := st.GetSection(ctx, ap.SectionID); err != nil {
			return err
		}
		return st.SaveAppropriation(ctx, *ap)
	})
}

// CaseExpired reports whether all main activities of the case have ended.
func (s *Service) CaseExpired(ctx context.Context, id CaseID) (bool, error) {
	appropriations, err := s.Store.ListAppropriations(ctx, id)
	if err != nil {
		return false, err
	}
	var all [][]Activity
	for _, ap := range appropriations {
		activities, err := s.Store.ListActivities(ctx, ap.ID)
		if err != nil {
			return false, err
		}
		all = append(all, activities)
	}
	return CaseExpired(all, s.Today()), nil
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// SaveActivity validates and saves the activity, then generates or
// synchronizes its schedule's payments.
func (s *Service) SaveActivity(ctx context.Context, a *Activity) error {
	if a.ID == "" {
		a.ID = ActivityID(NewID())
	}
	if a.Status == "" {
		a.Status = StatusDraft
	}
	return s.run(ctx, a.AppropriationID, func(st Store, out *outbox) error {
		existing, err := optional(st.GetActivity(ctx, a.ID))
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.AppropriationID != a.AppropriationID {
				return &InvariantError{Record: "activity", Message: "an activity cannot move to another appropriation"}
			}
			if a.Status.rank() < existing.Status.rank() {
				return &InvariantError{
					Record:  "activity",
					Message: fmt.Sprintf("status cannot go back from %s to %s", existing.Status, a.Status),
				}
			}
		}
		return s.saveActivity(ctx, st, a, existing == nil, out)
	})
}

func (s *Service) saveActivity(ctx context.Context, st Store, a *Activity, isNew bool, out *outbox) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if _, err := st.GetAppropriation(ctx, a.AppropriationID); err != nil {
		return err
	}
	siblings, err := st.ListActivities(ctx, a.AppropriationID)
	if err != nil {
		return err
	}
	chain := NewChain(withActivity(siblings, *a))
	if err := checkModifies(chain, a); err != nil {
		return err
	}

	if err := st.SaveActivity(ctx, *a); err != nil {
		return err
	}

	sched, err := optional(st.GetScheduleByActivity(ctx, a.ID))
	if err != nil || sched == nil {
		return err
	}
	if _, err := s.reconcile(ctx, st, chain, a, sched, false); err != nil {
		return err
	}
	if a.Status == StatusGranted {
		kind := NotifyUpdated
		if isNew {
			kind = NotifyCreated
		}
		out.add(kind, *a)
	}
	return nil
}

// checkModifies enforces main uniqueness and a well-formed modifies link.
func checkModifies(chain *Chain, a *Activity) error {
	if a.Modifies == "" {
		if !a.IsMain() {
			return nil
		}
		for _, other := range chain.Activities() {
			if other.ID != a.ID && other.IsMain() && other.Modifies == "" {
				return fmt.Errorf("appropriation %s already has main activity %s: %w",
					a.AppropriationID, other.ID, ErrConflict)
			}
		}
		return nil
	}

	pred := chain.Activity(a.Modifies)
	if pred == nil {
		return &InvariantError{
			Record:  "activity",
			Message: fmt.Sprintf("modified activity %s is not in appropriation %s", a.Modifies, a.AppropriationID),
		}
	}
	if pred.Type != a.Type {
		return &InvariantError{Record: "activity", Message: "an activity can only modify an activity of the same type"}
	}
	for p := pred; p != nil; p = chain.Activity(p.Modifies) {
		if p.ID == a.ID {
			return &InvariantError{Record: "activity", Message: "modifies links form a cycle"}
		}
		if p.Modifies == "" {
			break
		}
	}
	return nil
}

// withActivity returns activities with a replacing the record of the same id.
func withActivity(activities []Activity, a Activity) []Activity {
	out := make([]Activity, 0, len(activities)+1)
	found := false
	for _, other := range activities {
		if other.ID == a.ID {
			out = append(out, a)
			found = true
			continue
		}
		out = append(out, other)
	}
	if !found {
		out = append(out, a)
	}
	return out
}

// DeleteActivity removes the activity with its schedule and payments.
// Activities that modified it are relinked to its predecessor.
func (s *Service) DeleteActivity(ctx context.Context, id ActivityID) error {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	return s.run(ctx, a.AppropriationID, func(st Store, out *outbox) error {
		a, err := st.GetActivity(ctx, id)
		if err != nil {
			return err
		}
		sched, err := optional(st.GetScheduleByActivity(ctx, id))
		if err != nil {
			return err
		}
		if sched != nil {
			if err := st.DeleteSchedule(ctx, sched.ID); err != nil {
				return err
			}
		}

		siblings, err := st.ListActivities(ctx, a.AppropriationID)
		if err != nil {
			return err
		}
		if err := st.DeleteActivity(ctx, id); err != nil {
			return err
		}
		for _, other := range siblings {
			if other.Modifies != id {
				continue
			}
			other.Modifies = a.Modifies
			if err := st.SaveActivity(ctx, other); err != nil {
				return err
			}
		}

		if a.Status == StatusGranted && sched != nil {
			out.add(NotifyExpired, *a)
		}
		if a.Modifies == "" {
			return nil
		}
		return s.resyncPredecessor(ctx, st, a, out)
	})
}

// resyncPredecessor reconciles the schedule of the activity the deleted
// activity a modified, which is no longer cut at a's start.
func (s *Service) resyncPredecessor(ctx context.Context, st Store, a *Activity, out *outbox) error {
	chain, err := s.chainOf(ctx, st, a.AppropriationID)
	if err != nil {
		return err
	}
	pred := chain.Activity(a.Modifies)
	if pred == nil {
		return nil
	}
	sched, err := optional(st.GetScheduleByActivity(ctx, pred.ID))
	if err != nil || sched == nil {
		return err
	}
	res, err := s.reconcile(ctx, st, chain, pred, sched, false)
	if err != nil {
		return err
	}
	if pred.Status == StatusGranted && (res.Added > 0 || res.Removed > 0) {
		out.add(NotifyUpdated, *pred)
	}
	return nil
}

// ValidateExpected checks an expected adjustment against the activity it modifies.
func (s *Service) ValidateExpected(ctx context.Context, id ActivityID) error {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	var check ExpectedCheck
	if check.Schedule, err = optional(s.Store.GetScheduleByActivity(ctx, id)); err != nil {
		return err
	}
	if a.Modifies != "" {
		if check.Modified, err = optional(s.Store.GetActivity(ctx, a.Modifies)); err != nil {
			return err
		}
		if check.Modified != nil {
			if check.ModifiedNextPayment, err = s.nextPaymentOf(ctx, s.Store, check.Modified.ID); err != nil {
				return err
			}
		}
	}
	return a.ValidateExpected(check, s.Today())
}

// =============================================================================
// SCHEDULES
// =============================================================================

// SaveSchedule validates and saves a schedule. On a DRAFT or EXPECTED
// activity its unpaid payments are regenerated; on a GRANTED activity they
// are synchronized.
func (s *Service) SaveSchedule(ctx context.Context, sched *PaymentSchedule) error {
	sched.Normalize()
	if err := sched.Validate(); err != nil {
		return err
	}
	if sched.ID == "" {
		sched.ID = ScheduleID(NewID())
	}

	var lockID AppropriationID
	if sched.ActivityID != "" {
		a, err := s.Store.GetActivity(ctx, sched.ActivityID)
		if err != nil {
			return err
		}
		lockID = a.AppropriationID
	}

	return s.run(ctx, lockID, func(st Store, out *outbox) error {
		existing, err := optional(st.GetSchedule(ctx, sched.ID))
		if err != nil {
			return err
		}
		if existing != nil && existing.ActivityID != "" && existing.ActivityID != sched.ActivityID {
			return &InvariantError{Record: "payment schedule", Message: "a schedule cannot move to another activity"}
		}
		if sched.CostType == CostGlobalRate {
			if _, err := st.GetRate(ctx, sched.RateID); err != nil {
				return err
			}
		}
		if sched.ActivityID == "" {
			return st.SaveSchedule(ctx, *sched)
		}

		a, err := st.GetActivity(ctx, sched.ActivityID)
		if err != nil {
			return err
		}
		attached, err := optional(st.GetScheduleByActivity(ctx, a.ID))
		if err != nil {
			return err
		}
		if attached != nil && attached.ID != sched.ID {
			return fmt.Errorf("activity %s already has payment schedule %s: %w", a.ID, attached.ID, ErrConflict)
		}
		if err := st.SaveSchedule(ctx, *sched); err != nil {
			return err
		}

		chain, err := s.chainOf(ctx, st, a.AppropriationID)
		if err != nil {
			return err
		}
		if _, err := s.reconcile(ctx, st, chain, a, sched, a.Status != StatusGranted); err != nil {
			return err
		}
		if a.Status == StatusGranted {
			kind := NotifyUpdated
			if attached == nil {
				kind = NotifyCreated
			}
			out.add(kind, *a)
		}
		return nil
	})
}

// SyncResult counts the payments a reconciliation changed.
type SyncResult struct {
	Added   int
	Removed int
}

func (r SyncResult) add(other SyncResult) SyncResult {
	return SyncResult{Added: r.Added + other.Added, Removed: r.Removed + other.Removed}
}

// GeneratePayments materializes the payments of a schedule that has none.
func (s *Service) GeneratePayments(ctx context.Context, id ScheduleID) (int, error) {
	var added int
	err := s.withScheduleActivity(ctx, id, func(st Store, chain *Chain, a *Activity, sched *PaymentSchedule) error {
		payments, err := st.ListPayments(ctx, sched.ID)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return &InvariantError{Record: "payment schedule", Message: "payments already exist; synchronize instead"}
		}
		res, err := s.reconcile(ctx, st, chain, a, sched, false)
		added = res.Added
		return err
	})
	return added, err
}

// SynchronizePayments reconciles a schedule's payments with its activity's range.
func (s *Service) SynchronizePayments(ctx context.Context, id ScheduleID) (SyncResult, error) {
	var res SyncResult
	err := s.withScheduleActivity(ctx, id, func(st Store, chain *Chain, a *Activity, sched *PaymentSchedule) error {
		payments, err := st.ListPayments(ctx, sched.ID)
		if err != nil {
			return err
		}
		res, err = s.synchronize(ctx, st, chain, a, sched, payments, false)
		return err
	})
	return res, err
}

// ExtendOpenEnded synchronizes every open-ended activity so its payments
// reach the current horizon.
func (s *Service) ExtendOpenEnded(ctx context.Context) (SyncResult, error) {
	activities, err := s.Store.ListOpenEnded(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	var total SyncResult
	for _, a := range activities {
		sched, err := optional(s.Store.GetScheduleByActivity(ctx, a.ID))
		if err != nil {
			return total, err
		}
		if sched == nil || !sched.Generates() {
			continue
		}
		res, err := s.SynchronizePayments(ctx, sched.ID)
		if err != nil {
			return total, fmt.Errorf("synchronize activity %s: %w", a.ID, err)
		}
		total = total.add(res)
	}
	s.log().Info("open-ended schedules extended",
		"activities", len(activities), "added", total.Added, "removed", total.Removed)
	return total, nil
}

func (s *Service) withScheduleActivity(
	ctx context.Context,
	id ScheduleID,
	fn func(st Store, chain *Chain, a *Activity, sched *PaymentSchedule) error,
) error {
	sched, err := s.Store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if sched.ActivityID == "" {
		return &InvariantError{Record: "payment schedule", Message: "schedule has no activity"}
	}
	a, err := s.Store.GetActivity(ctx, sched.ActivityID)
	if err != nil {
		return err
	}
	return s.run(ctx, a.AppropriationID, func(st Store, _ *outbox) error {
		sched, err := st.GetSchedule(ctx, id)
		if err != nil {
			return err
		}
		a, err := st.GetActivity(ctx, sched.ActivityID)
		if err != nil {
			return err
		}
		chain, err := s.chainOf(ctx, st, a.AppropriationID)
		if err != nil {
			return err
		}
		return fn(st, chain, a, sched)
	})
}

func (s *Service) chainOf(ctx context.Context, st Store, id AppropriationID) (*Chain, error) {
	activities, err := st.ListActivities(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewChain(activities), nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// reconcile generates an empty schedule and synchronizes otherwise.
// replaceUnpaid regenerates every unpaid payment.
func (s *Service) reconcile(
	ctx context.Context, st Store, chain *Chain, a *Activity, sched *PaymentSchedule, replaceUnpaid bool,
) (SyncResult, error) {
	if !sched.Generates() {
		return SyncResult{}, nil
	}
	payments, err := st.ListPayments(ctx, sched.ID)
	if err != nil {
		return SyncResult{}, err
	}
	if len(payments) == 0 {
		return s.insertMissing(ctx, st, chain, a, sched, nil)
	}
	return s.synchronize(ctx, st, chain, a, sched, payments, replaceUnpaid)
}

// synchronize reconciles existing payments. It is a no-op for an empty
// schedule.
func (s *Service) synchronize(
	ctx context.Context, st Store, chain *Chain, a *Activity, sched *PaymentSchedule,
	payments []Payment, replaceUnpaid bool,
) (SyncResult, error) {
	if len(payments) == 0 || !sched.Generates() {
		return SyncResult{}, nil
	}
	dates, err := s.plannedDates(chain, a, sched)
	if err != nil {
		return SyncResult{}, err
	}
	want := make(map[string]bool, len(dates))
	for _, d := range dates {
		want[d.String()] = true
	}

	var (
		stale []PaymentID
		kept  []Payment
	)
	for _, p := range payments {
		if !p.Paid && (replaceUnpaid || !want[p.Date.String()]) {
			stale = append(stale, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	if len(stale) > 0 {
		if err := st.DeletePayments(ctx, stale); err != nil {
			return SyncResult{}, err
		}
	}

	res, err := s.insertMissing(ctx, st, chain, a, sched, kept)
	res.Removed = len(stale)
	if err == nil && (res.Added > 0 || res.Removed > 0) {
		s.log().Debug("payments synchronized",
			"activity_id", a.ID, "schedule_id", sched.ID, "added", res.Added, "removed", res.Removed)
	}
	return res, err
}

// insertMissing adds a payment for every planned date without one in existing.
func (s *Service) insertMissing(
	ctx context.Context, st Store, chain *Chain, a *Activity, sched *PaymentSchedule, existing []Payment,
) (SyncResult, error) {
	dates, err := s.plannedDates(chain, a, sched)
	if err != nil {
		return SyncResult{}, err
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p.Date.String()] = true
	}

	var price AmountFunc
	var fresh []Payment
	for _, d := range dates {
		if have[d.String()] {
			continue
		}
		if price == nil {
			if price, err = s.pricing(ctx, st, a, sched); err != nil {
				return SyncResult{}, err
			}
		}
		amount, err := price(d)
		if err != nil {
			return SyncResult{}, err
		}
		fresh = append(fresh, newPayment(sched, d, amount))
	}
	if len(fresh) == 0 {
		return SyncResult{}, nil
	}
	if err := st.SavePayments(ctx, fresh); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Added: len(fresh)}, nil
}

// plannedDates returns the occurrences of the activity's range before the
// start of its earliest GRANTED successor.
func (s *Service) plannedDates(chain *Chain, a *Activity, sched *PaymentSchedule) ([]Date, error) {
	dates, err := sched.PlannedDates(a.StartDate, a.EndDate, s.Today())
	if err != nil {
		return nil, err
	}
	cut := chain.CutDate(a.ID, StatusGranted)
	if cut == nil {
		return dates, nil
	}
	out := dates[:0]
	for _, d := range dates {
		if d.Before(*cut) {
			out = append(out, d)
		}
	}
	return out, nil
}

// pricing resolves the VAT factor and rate the schedule's amounts depend on.
func (s *Service) pricing(ctx context.Context, st Store, a *Activity, sched *PaymentSchedule) (AmountFunc, error) {
	var sp *ServiceProvider
	if a.ServiceProviderID != "" {
		var err error
		if sp, err = optional(st.GetServiceProvider(ctx, a.ServiceProviderID)); err != nil {
			return nil, err
		}
	}
	var rate *Rate
	if sched.CostType == CostGlobalRate {
		var err error
		if rate, err = st.GetRate(ctx, sched.RateID); err != nil {
			return nil, err
		}
	}
	return sched.Pricing(VATFactor(sp), rate)
}

// =============================================================================
// PAYMENTS
// =============================================================================

// SavePayment saves a single payment. Paying requires a GRANTED activity and
// freezes the payment's account strings.
func (s *Service) SavePayment(ctx context.Context, p *Payment) error {
	sched, err := s.Store.GetSchedule(ctx, p.ScheduleID)
	if err != nil {
		return err
	}
	var lockID AppropriationID
	if sched.ActivityID != "" {
		a, err := s.Store.GetActivity(ctx, sched.ActivityID)
		if err != nil {
			return err
		}
		lockID = a.AppropriationID
	}
	if p.ID == "" {
		p.ID = PaymentID(NewID())
	}

	return s.run(ctx, lockID, func(st Store, _ *outbox) error {
		sched, err := st.GetSchedule(ctx, p.ScheduleID)
		if err != nil {
			return err
		}
		existing, err := optional(st.GetPayment(ctx, p.ID))
		if err != nil {
			return err
		}
		if existing == nil && p.RecipientType == "" {
			p.RecipientType = sched.RecipientType
			p.RecipientID = sched.RecipientID
			p.RecipientName = sched.RecipientName
			p.PaymentMethod = sched.PaymentMethod
			p.Fictive = sched.Fictive
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if existing != nil {
			if p.SavedAccountString == "" {
				p.SavedAccountString = existing.SavedAccountString
			}
			if p.SavedAccountStringNew == "" {
				p.SavedAccountStringNew = existing.SavedAccountStringNew
			}
		}

		if p.Paid {
			var a *Activity
			if sched.ActivityID != "" {
				if a, err = st.GetActivity(ctx, sched.ActivityID); err != nil {
					return err
				}
			}
			if a == nil || a.Status != StatusGranted {
				return &InvariantError{Record: "payment", Message: "only payments of granted activities can be paid"}
			}
			ac, err := s.accountContext(ctx, st, a)
			if err != nil {
				return err
			}
			p.freezeAccountStrings(ac)
		}
		return st.SavePayments(ctx, []Payment{*p})
	})
}

// MarkPaid records the payment as paid on paidDate with amount.
func (s *Service) MarkPaid(ctx context.Context, id PaymentID, paidDate Date, amount decimal.Decimal, note string) (*Payment, error) {
	p, err := s.Store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Paid = true
	p.PaidDate = paidDate.Ptr()
	p.PaidAmount = decimal.NewNullDecimal(amount)
	if note != "" {
		p.Note = note
	}
	if err := s.SavePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// NextPayment returns the earliest unpaid payment dated today or later, or
// nil when there is none.
func (s *Service) NextPayment(ctx context.Context, id ScheduleID) (*Payment, error) {
	payments, err := s.Store.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	return nextPayment(payments, s.Today()), nil
}

func (s *Service) nextPaymentOf(ctx context.Context, st Store, id ActivityID) (*Payment, error) {
	sched, err := optional(st.GetScheduleByActivity(ctx, id))
	if err != nil || sched == nil {
		return nil, err
	}
	payments, err := st.ListPayments(ctx, sched.ID)
	if err != nil {
		return nil, err
	}
	return nextPayment(payments, s.Today()), nil
}

func nextPayment(payments []Payment, today Date) *Payment {
	var next *Payment
	for i := range payments {
		p := &payments[i]
		if p.Paid || p.Date.Before(today) {
			continue
		}
		if next == nil || p.Date.Before(next.Date) {
			next = p
		}
	}
	return next
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// PaymentAccounts are the account strings reported for a payment.
type PaymentAccounts struct {
	AccountString    string
	AccountStringNew string
	AccountAlias     string
}

// AccountNumber returns the activity's SectionInfo account number, "" if
// no SectionInfo matches.
func (s *Service) AccountNumber(ctx context.Context, id ActivityID) (string, error) {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return "", err
	}
	ac, err := s.accountContext(ctx, s.Store, a)
	if err != nil {
		return "", err
	}
	return ac.AccountNumber, nil
}

// PaymentAccounts returns the account strings and alias for a payment.
func (s *Service) PaymentAccounts(ctx context.Context, id PaymentID) (PaymentAccounts, error) {
	p, err := s.Store.GetPayment(ctx, id)
	if err != nil {
		return PaymentAccounts{}, err
	}
	sched, err := s.Store.GetSchedule(ctx, p.ScheduleID)
	if err != nil {
		return PaymentAccounts{}, err
	}
	ac := AccountContext{Config: s.Accounting}
	if sched.ActivityID != "" {
		a, err := s.Store.GetActivity(ctx, sched.ActivityID)
		if err != nil {
			return PaymentAccounts{}, err
		}
		if ac, err = s.accountContext(ctx, s.Store, a); err != nil {
			return PaymentAccounts{}, err
		}
	}
	return PaymentAccounts{
		AccountString:    p.AccountString(ac),
		AccountStringNew: p.AccountStringNew(ac),
		AccountAlias:     ac.Alias,
	}, nil
}

// accountContext resolves the account mappings of an activity. Supplementary
// activities are looked up through the appropriation's main activity.
func (s *Service) accountContext(ctx context.Context, st Store, a *Activity) (AccountContext, error) {
	ac := AccountContext{Config: s.Accounting}
	ap, err := st.GetAppropriation(ctx, a.AppropriationID)
	if err != nil {
		return ac, err
	}
	details, err := optional(st.GetActivityDetails(ctx, a.DetailsID))
	if err != nil || details == nil {
		return ac, err
	}

	mainDetails := details
	if !a.IsMain() {
		ac.SupplDetails = details
		chain, err := s.chainOf(ctx, st, a.AppropriationID)
		if err != nil {
			return ac, err
		}
		main := chain.CurrentGrantedMain()
		if main == nil {
			main = chain.RootMain()
		}
		mainDetails = nil
		if main != nil {
			if mainDetails, err = optional(st.GetActivityDetails(ctx, main.DetailsID)); err != nil {
				return ac, err
			}
		}
	}
	ac.MainDetails = mainDetails
	if mainDetails == nil {
		return ac, nil
	}

	var supplID DetailsID
	if ac.SupplDetails != nil {
		supplID = ac.SupplDetails.ID
	}
	if ac.Account, err = optional(st.FindAccount(ctx, ap.SectionID, mainDetails.ID, supplID)); err != nil {
		return ac, err
	}

	si, err := optional(st.FindSectionInfo(ctx, mainDetails.ID, ap.SectionID))
	if err != nil || si == nil {
		return ac, err
	}
	ac.AccountNumber = si.AccountNumber(a.Type, details.ActivityID)
	alias, err := optional(st.FindAccountAlias(ctx, si.MainAccount(a.Type), details.ActivityID))
	if err != nil {
		return ac, err
	}
	if alias != nil {
		ac.Alias = alias.Alias
	}
	return ac, nil
}

// =============================================================================
// COSTS
// =============================================================================

// CostView loads the cost view of an appropriation for the current year.
func (s *Service) CostView(ctx context.Context, id AppropriationID) (*CostView, error) {
	chain, err := s.chainOf(ctx, s.Store, id)
	if err != nil {
		return nil, err
	}
	year := s.Today().Year()
	v := NewCostView(chain, year)
	for _, a := range chain.Activities() {
		sched, err := optional(s.Store.GetScheduleByActivity(ctx, a.ID))
		if err != nil {
			return nil, err
		}
		if sched == nil {
			continue
		}
		payments, err := s.Store.ListPayments(ctx, sched.ID)
		if err != nil {
			return nil, err
		}
		v.SetPayments(a.ID, payments)

		var price AmountFunc
		if sched.Generates() && sched.PaymentType != OneTimePayment {
			if price, err = s.pricing(ctx, s.Store, a, sched); err != nil {
				return nil, err
			}
		}
		full, err := sched.FullYearCost(year, price, payments)
		if err != nil {
			return nil, err
		}
		v.SetFullYear(a.ID, full)
	}
	return v, nil
}

// ActivityTotals returns the cost figures of an activity.
func (s *Service) ActivityTotals(ctx context.Context, id ActivityID) (ActivityTotals, error) {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return ActivityTotals{}, err
	}
	v, err := s.CostView(ctx, a.AppropriationID)
	if err != nil {
		return ActivityTotals{}, err
	}
	return v.Totals(id), nil
}

// AppropriationSummary returns status, granted period and totals.
func (s *Service) AppropriationSummary(ctx context.Context, id AppropriationID) (AppropriationSummary, error) {
	ap, err := s.Store.GetAppropriation(ctx, id)
	if err != nil {
		return AppropriationSummary{}, err
	}
	v, err := s.CostView(ctx, id)
	if err != nil {
		return AppropriationSummary{}, err
	}
	return Summarize(*ap, v), nil
}

// MonthlyAmount is one month of a payment plan.
type MonthlyAmount struct {
	Month  string
	Amount decimal.Decimal
}

// MonthlyPlan sums an activity's payments per month.
func (s *Service) MonthlyPlan(ctx context.Context, id ActivityID) ([]MonthlyAmount, error) {
	sched, err := optional(s.Store.GetScheduleByActivity(ctx, id))
	if err != nil || sched == nil {
		return nil, err
	}
	payments, err := s.Store.ListPayments(ctx, sched.ID)
	if err != nil {
		return nil, err
	}
	var plan []MonthlyAmount
	for month, amount := range MonthlyPaymentPlan(payments) {
		plan = append(plan, MonthlyAmount{Month: month, Amount: amount})
	}
	return plan, nil
}
