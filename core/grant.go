/*
grant.go - Appropriation grant orchestration

PURPOSE:
  Grants a selection of activities of one appropriation in a single
  transaction. Either every pending activity in the selection becomes
  GRANTED, with predecessors cut and supplementary activities realigned,
  or nothing changes.

GRANT FLOW:
  ┌────────────────────────────────────────────────────────────────┐
  │  selection ──▶ planGrant ──▶ main first ──▶ supplementary      │
  │                (refuse)       │                                │
  │                               ├─ grant + reconcile successor   │
  │                               ├─ cut + reconcile predecessor   │
  │                               └─ realign supplementary ends    │
  └────────────────────────────────────────────────────────────────┘

PREDECESSOR CUT:
  pred  |==================|        open or ending after succ start
  succ          |=========....
  pred  |======|                    end = succ start - 1 day

  When the successor starts on or before the predecessor's start there is
  no day left to keep. The predecessor keeps its end and its payments from
  the successor's start on are removed by reconciliation, since they now
  fall after the cut (see plannedDates in service.go).

SUPPLEMENTARY REALIGNMENT:
  Supplementary activities in force whose end equals the old main end
  (both open counts as equal) take over the new main end. Following chain
  heads makes the realignment reach through supplementary successors.

SEE ALSO:
  - chain.go: CurrentGrantedMain, InForce
  - errors.go: GrantError
*/
package core

import (
	"context"
	"fmt"
	"sort"
)

// grantPlan is a validated selection.
type grantPlan struct {
	main  *Activity   // pending main activity, nil if none
	suppl []*Activity // pending supplementary activities, by start date
}

// planGrant checks the grant preconditions without changing anything.
func planGrant(appropriationID AppropriationID, chain *Chain, ids []ActivityID) (*grantPlan, error) {
	refuse := func(id ActivityID, format string, args ...any) error {
		return &GrantError{AppropriationID: appropriationID, ActivityID: id, Reason: fmt.Sprintf(format, args...)}
	}
	if len(ids) == 0 {
		return nil, refuse("", "no activities selected")
	}

	plan := &grantPlan{}
	selected := make(map[ActivityID]bool, len(ids))
	for _, id := range ids {
		a := chain.Activity(id)
		if a == nil {
			return nil, refuse(id, "activity is not part of the appropriation")
		}
		if selected[id] || a.Status == StatusGranted {
			selected[id] = true
			continue
		}
		selected[id] = true
		if a.IsMain() {
			if plan.main != nil {
				return nil, refuse(id, "only one main activity can be granted at a time")
			}
			plan.main = a
			continue
		}
		plan.suppl = append(plan.suppl, a)
	}
	if plan.main == nil && len(plan.suppl) == 0 {
		return nil, refuse("", "all selected activities are already granted")
	}
	sort.SliceStable(plan.suppl, func(i, j int) bool {
		return plan.suppl[i].StartDate.Before(plan.suppl[j].StartDate)
	})

	current := chain.CurrentGrantedMain()
	switch {
	case plan.main != nil && plan.main.Modifies == "" && current != nil:
		return nil, refuse(plan.main.ID, "main activity %s is already granted; a new main activity must modify it", current.ID)
	case plan.main != nil && plan.main.Modifies != "" && (current == nil || plan.main.Modifies != current.ID):
		return nil, refuse(plan.main.ID, "main activity must modify the current granted main activity")
	case plan.main == nil && current == nil:
		return nil, refuse("", "a main activity must be granted before supplementary activities")
	}

	if plan.main != nil && plan.main.EndDate != nil {
		end := *plan.main.EndDate
		candidates := append(chain.InForce(SupplementaryActivity, StatusGranted), plan.suppl...)
		for _, sup := range candidates {
			if sup.StartDate.After(end) {
				return nil, refuse(plan.main.ID,
					"main activity ends %s, before supplementary activity %s starts %s", end, sup.ID, sup.StartDate)
			}
		}
	}
	return plan, nil
}

// Grant promotes the pending activities among ids to GRANTED.
func (s *Service) Grant(ctx context.Context, appropriationID AppropriationID, ids []ActivityID, approval Approval) error {
	err := s.run(ctx, appropriationID, func(st Store, out *outbox) error {
		if _, err := st.GetAppropriation(ctx, appropriationID); err != nil {
			return err
		}
		chain, err := s.chainOf(ctx, st, appropriationID)
		if err != nil {
			return err
		}
		plan, err := planGrant(appropriationID, chain, ids)
		if err != nil {
			return err
		}

		today := s.Today()
		if plan.main != nil {
			if err := s.grantOne(ctx, st, chain, plan.main, approval, today, out); err != nil {
				return err
			}
		}
		for _, sup := range plan.suppl {
			if err := s.grantOne(ctx, st, chain, sup, approval, today, out); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log().Info("grant refused", "appropriation_id", appropriationID, "error", err)
		return err
	}
	s.log().Info("appropriation granted", "appropriation_id", appropriationID, "activities", len(ids))
	return nil
}

// grantOne grants a, cuts its predecessor and, for a main activity,
// realigns the supplementary activities. Activities are the chain's own
// records, so later steps see earlier changes.
func (s *Service) grantOne(
	ctx context.Context, st Store, chain *Chain, a *Activity, approval Approval, today Date, out *outbox,
) error {
	pred := chain.Activity(a.Modifies)
	if pred != nil && a.Status == StatusExpected && pred.Status == StatusGranted {
		if err := s.inheritPaymentID(ctx, st, pred, a); err != nil {
			return err
		}
	}

	a.Grant(approval, today)
	if err := s.saveActivity(ctx, st, a, false, out); err != nil {
		return err
	}
	if pred == nil {
		return nil
	}

	oldEnd := pred.EndDate
	if pred.EndDate == nil || pred.EndDate.AfterOrEqual(a.StartDate) {
		if cut := a.StartDate.AddDays(-1); cut.AfterOrEqual(pred.StartDate) {
			pred.EndDate = cut.Ptr()
		}
	}
	if err := s.saveActivity(ctx, st, pred, false, out); err != nil {
		return err
	}

	if !a.IsMain() {
		return nil
	}
	for _, sup := range chain.InForce(SupplementaryActivity, StatusGranted) {
		if !SameOptionalDate(sup.EndDate, oldEnd) || SameOptionalDate(sup.EndDate, a.EndDate) {
			continue
		}
		if a.EndDate != nil {
			sup.EndDate = a.EndDate.Ptr()
		} else {
			sup.EndDate = nil
		}
		if err := s.saveActivity(ctx, st, sup, false, out); err != nil {
			return err
		}
	}
	return nil
}

// inheritPaymentID gives the successor's schedule the payment id of the
// schedule it replaces.
func (s *Service) inheritPaymentID(ctx context.Context, st Store, pred, succ *Activity) error {
	predSched, err := optional(st.GetScheduleByActivity(ctx, pred.ID))
	if err != nil || predSched == nil {
		return err
	}
	sched, err := optional(st.GetScheduleByActivity(ctx, succ.ID))
	if err != nil || sched == nil {
		return err
	}
	sched.PaymentID = predSched.PaymentIdentifier()
	return st.SaveSchedule(ctx, *sched)
}
