/*
chain.go - Modification chains within one appropriation

PURPOSE:
  Activity.Modifies points backward to the activity it supersedes. Chain
  builds the forward index (predecessor -> successors) on demand from the
  activities of one appropriation, and answers the questions the grant
  workflow and the cost model ask about it.

CUT DATE:
  For a set of statuses, the cut date of an activity is the earliest start
  date among its transitive successors in those statuses. From that date
  on, payments belong to the successors:

    A  |=======================|            granted
    B        |======|                       modifies A, starts day 5
    cut(A) = day 5: A keeps days 1-4, B owns days 5+

SEE ALSO:
  - cost.go: totals computed from cut dates
  - grant.go: uses CurrentGrantedMain and Successors
*/
package core

// Chain indexes the activities of one appropriation.
type Chain struct {
	order      []ActivityID
	byID       map[ActivityID]*Activity
	successors map[ActivityID][]ActivityID
}

// NewChain copies activities and builds the successor index.
func NewChain(activities []Activity) *Chain {
	c := &Chain{
		byID:       make(map[ActivityID]*Activity, len(activities)),
		successors: make(map[ActivityID][]ActivityID),
	}
	for i := range activities {
		a := activities[i]
		c.order = append(c.order, a.ID)
		c.byID[a.ID] = &a
	}
	for _, id := range c.order {
		a := c.byID[id]
		if a.Modifies != "" {
			c.successors[a.Modifies] = append(c.successors[a.Modifies], id)
		}
	}
	return c
}

// Activity returns the activity with id, or nil.
func (c *Chain) Activity(id ActivityID) *Activity { return c.byID[id] }

// Activities returns all activities in insertion order.
func (c *Chain) Activities() []*Activity {
	out := make([]*Activity, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Successors returns the activities that directly modify id.
func (c *Chain) Successors(id ActivityID) []*Activity {
	var out []*Activity
	for _, s := range c.successors[id] {
		out = append(out, c.byID[s])
	}
	return out
}

// walk visits the transitive successors of id once each.
func (c *Chain) walk(id ActivityID, visit func(*Activity)) {
	seen := map[ActivityID]bool{id: true}
	queue := append([]ActivityID(nil), c.successors[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		visit(c.byID[next])
		queue = append(queue, c.successors[next]...)
	}
}

// CutDate returns the earliest start among transitive successors whose
// status is in statuses, or nil.
func (c *Chain) CutDate(id ActivityID, statuses ...Status) *Date {
	var cut *Date
	c.walk(id, func(a *Activity) {
		if !hasStatus(a, statuses) {
			return
		}
		if cut == nil || a.StartDate.Before(*cut) {
			cut = a.StartDate.Ptr()
		}
	})
	return cut
}

// Superseded reports whether a transitive successor has one of statuses.
func (c *Chain) Superseded(id ActivityID, statuses ...Status) bool {
	return c.CutDate(id, statuses...) != nil
}

func hasStatus(a *Activity, statuses []Status) bool {
	for _, s := range statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}

// =============================================================================
// MAIN ACTIVITY
// =============================================================================

// RootMain returns the main activity that modifies nothing, or nil.
func (c *Chain) RootMain() *Activity {
	for _, a := range c.Activities() {
		if a.IsMain() && a.Modifies == "" {
			return a
		}
	}
	return nil
}

// CurrentGrantedMain returns the granted main activity not superseded by a
// granted successor, or nil.
func (c *Chain) CurrentGrantedMain() *Activity {
	var current *Activity
	for _, a := range c.Activities() {
		if !a.IsMain() || a.Status != StatusGranted || c.Superseded(a.ID, StatusGranted) {
			continue
		}
		if current == nil || a.StartDate.After(current.StartDate) {
			current = a
		}
	}
	return current
}

// Status is the highest status among main activities, DRAFT without any.
func (c *Chain) Status() Status {
	status := StatusDraft
	for _, a := range c.Activities() {
		if a.IsMain() && a.Status.rank() > status.rank() {
			status = a.Status
		}
	}
	return status
}

// GrantedPeriod returns the first start of the granted main chain and the
// end of the current granted main activity. Both are nil when nothing is granted.
func (c *Chain) GrantedPeriod() (from, to *Date) {
	current := c.CurrentGrantedMain()
	if current == nil {
		return nil, nil
	}
	from = current.StartDate.Ptr()
	for _, a := range c.Activities() {
		if a.IsMain() && a.Status == StatusGranted && a.StartDate.Before(*from) {
			from = a.StartDate.Ptr()
		}
	}
	if current.EndDate != nil {
		to = current.EndDate.Ptr()
	}
	return from, to
}

// InForce returns the activities of activityType with status that are not
// superseded by a successor with the same status.
func (c *Chain) InForce(activityType ActivityType, status Status) []*Activity {
	var out []*Activity
	for _, a := range c.Activities() {
		if a.Type == activityType && a.Status == status && !c.Superseded(a.ID, status) {
			out = append(out, a)
		}
	}
	return out
}
