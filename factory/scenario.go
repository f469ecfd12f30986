/*
Package factory turns YAML scenario files into records.

PURPOSE:
  Demo data, seed files and test fixtures are written as YAML. A scenario
  names every record with a symbolic key; Apply creates the records through
  core.Service with fresh ids, so the same scenario can be loaded any
  number of times without conflicts.

YAML SCHEMA:
  id: modification
  name: Granted activity with an expected modification
  sections:
    - {key: ssl-83, paragraph: "§ 83", text: "Praktisk hjælp"}
  details:
    - {key: hjaelp, name: Praktisk hjælp, activity_id: "015035"}
  section_infos:
    - {details: hjaelp, section: ssl-83, main_account: "528211011"}
  cases:
    - key: jensen
      cpr: "2704785263"
      name: Jens Jensen
      appropriations:
        - key: ap
          section: ssl-83
          activities:
            - key: a
              type: MAIN_ACTIVITY
              start: 2026-01-01
              details: hjaelp
              schedule:
                recipient_type: PERSON
                payment_method: CASH
                payment_type: RUNNING_PAYMENT
                frequency: MONTHLY
                amount: "1000"
          grant: [a]

APPLY ORDER:
  1. Reference data: sections, details, section infos, providers, rates, aliases
  2. Per case: the case, then per appropriation its activities in file
     order (modifies may only name an earlier key), each followed by its
     schedule
  3. The appropriation's grant list
  4. Payments dated up to a schedule's paid_through are marked paid

SEE ALSO:
  - aliases.go: XLSX account alias import
  - scenarios/: built-in demo scenarios
  - api/scenarios.go: the HTTP endpoints that load them
*/
package factory

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/appropriation-engine/core"
)

// =============================================================================
// SCENARIO SCHEMA
// =============================================================================

type Scenario struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Sections     []SectionSpec     `yaml:"sections"`
	Details      []DetailsSpec     `yaml:"details"`
	SectionInfos []SectionInfoSpec `yaml:"section_infos"`
	Providers    []ProviderSpec    `yaml:"providers"`
	Rates        []RateSpec        `yaml:"rates"`
	Aliases      []AliasSpec       `yaml:"aliases"`
	Cases        []CaseSpec        `yaml:"cases"`
}

type SectionSpec struct {
	Key       string `yaml:"key"`
	Paragraph string `yaml:"paragraph"`
	Text      string `yaml:"text"`
	Kle       string `yaml:"kle"`
}

type DetailsSpec struct {
	Key        string `yaml:"key"`
	Name       string `yaml:"name"`
	ActivityID string `yaml:"activity_id"`
}

type SectionInfoSpec struct {
	Details      string `yaml:"details"`
	Section      string `yaml:"section"`
	MainAccount  string `yaml:"main_account"`
	SupplAccount string `yaml:"suppl_account"`
}

type ProviderSpec struct {
	Key       string `yaml:"key"`
	CVR       string `yaml:"cvr"`
	Name      string `yaml:"name"`
	VATFactor string `yaml:"vat_factor"`
}

type RateSpec struct {
	Key     string           `yaml:"key"`
	Name    string           `yaml:"name"`
	Periods []RatePeriodSpec `yaml:"periods"`
}

type RatePeriodSpec struct {
	Start Date   `yaml:"start"`
	End   *Date  `yaml:"end"`
	Price string `yaml:"price"`
}

type AliasSpec struct {
	MainAccount string `yaml:"main_account"`
	Activity    string `yaml:"activity"`
	Alias       string `yaml:"alias"`
}

type CaseSpec struct {
	Key            string              `yaml:"key"`
	SbsysID        string              `yaml:"sbsys_id"`
	CPR            string              `yaml:"cpr"`
	Name           string              `yaml:"name"`
	CaseWorker     string              `yaml:"case_worker"`
	Appropriations []AppropriationSpec `yaml:"appropriations"`
}

type AppropriationSpec struct {
	Key        string         `yaml:"key"`
	SbsysID    string         `yaml:"sbsys_id"`
	Section    string         `yaml:"section"`
	Note       string         `yaml:"note"`
	Activities []ActivitySpec `yaml:"activities"`
	Grant      []string       `yaml:"grant"`
	Approval   ApprovalSpec   `yaml:"approval"`
}

type ApprovalSpec struct {
	Level string `yaml:"level"`
	User  string `yaml:"user"`
	Note  string `yaml:"note"`
}

type ActivitySpec struct {
	Key      string        `yaml:"key"`
	Type     string        `yaml:"type"`
	Status   string        `yaml:"status"`
	Start    Date          `yaml:"start"`
	End      *Date         `yaml:"end"`
	Details  string        `yaml:"details"`
	Provider string        `yaml:"provider"`
	Modifies string        `yaml:"modifies"`
	Note     string        `yaml:"note"`
	Schedule *ScheduleSpec `yaml:"schedule"`
}

type ScheduleSpec struct {
	RecipientType string `yaml:"recipient_type"`
	RecipientID   string `yaml:"recipient_id"`
	RecipientName string `yaml:"recipient_name"`
	PaymentMethod string `yaml:"payment_method"`
	PaymentType   string `yaml:"payment_type"`
	CostType      string `yaml:"cost_type"`
	Frequency     string `yaml:"frequency"`
	Amount        string `yaml:"amount"`
	Units         string `yaml:"units"`
	DayOfMonth    int    `yaml:"day_of_month"`
	Rate          string `yaml:"rate"`
	Fictive       bool   `yaml:"fictive"`
	PaidThrough   *Date  `yaml:"paid_through"`
}

// Date is a calendar day written as YYYY-MM-DD.
type Date struct {
	core.Date
}

func (d *Date) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := core.ParseDate(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	d.Date = parsed
	return nil
}

func (d *Date) ptr() *core.Date {
	if d == nil {
		return nil
	}
	return d.Date.Ptr()
}

// =============================================================================
// PARSING
// =============================================================================

// Parse decodes a scenario and checks that every key reference resolves.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	sections := keySet(s.Sections, func(x SectionSpec) string { return x.Key })
	details := keySet(s.Details, func(x DetailsSpec) string { return x.Key })
	providers := keySet(s.Providers, func(x ProviderSpec) string { return x.Key })
	rates := keySet(s.Rates, func(x RateSpec) string { return x.Key })

	for _, si := range s.SectionInfos {
		if !details[si.Details] || !sections[si.Section] {
			return s.invalid("section info %s/%s references an unknown key", si.Details, si.Section)
		}
	}
	for _, c := range s.Cases {
		for _, ap := range c.Appropriations {
			if !sections[ap.Section] {
				return s.invalid("appropriation %s: unknown section %q", ap.Key, ap.Section)
			}
			seen := map[string]bool{}
			for _, a := range ap.Activities {
				if a.Key == "" || seen[a.Key] {
					return s.invalid("appropriation %s: activity key %q is empty or repeated", ap.Key, a.Key)
				}
				if a.Details != "" && !details[a.Details] {
					return s.invalid("activity %s: unknown details %q", a.Key, a.Details)
				}
				if a.Provider != "" && !providers[a.Provider] {
					return s.invalid("activity %s: unknown provider %q", a.Key, a.Provider)
				}
				if a.Modifies != "" && !seen[a.Modifies] {
					return s.invalid("activity %s modifies %q, which is not an earlier activity", a.Key, a.Modifies)
				}
				if a.Schedule != nil && a.Schedule.Rate != "" && !rates[a.Schedule.Rate] {
					return s.invalid("activity %s: unknown rate %q", a.Key, a.Schedule.Rate)
				}
				seen[a.Key] = true
			}
			for _, key := range ap.Grant {
				if !seen[key] {
					return s.invalid("appropriation %s grants unknown activity %q", ap.Key, key)
				}
			}
		}
	}
	return nil
}

func (s *Scenario) invalid(format string, args ...any) error {
	return &core.InvariantError{Record: "scenario " + s.ID, Message: fmt.Sprintf(format, args...)}
}

func keySet[T any](items []T, key func(T) string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[key(item)] = true
	}
	return set
}

// =============================================================================
// BUILT-IN SCENARIOS
// =============================================================================

//go:embed scenarios/*.yaml
var builtin embed.FS

// Builtin returns the demo scenarios shipped with the binary, sorted by id.
func Builtin() ([]*Scenario, error) {
	names, err := fs.Glob(builtin, "scenarios/*.yaml")
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(names))
	for _, name := range names {
		data, err := builtin.ReadFile(name)
		if err != nil {
			return nil, err
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindBuiltin returns the built-in scenario with id.
func FindBuiltin(id string) (*Scenario, error) {
	all, err := Builtin()
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, core.NotFound("scenario", id)
}

// =============================================================================
// APPLY
// =============================================================================

// Result maps the scenario's keys to the ids Apply created.
type Result struct {
	Cases          map[string]core.CaseID
	Appropriations map[string]core.AppropriationID
	Activities     map[string]core.ActivityID
	Schedules      map[string]core.ScheduleID
	PaymentsMarked int
}

type applier struct {
	svc *core.Service
	res *Result

	sections  map[string]core.SectionID
	details   map[string]core.DetailsID
	providers map[string]core.ServiceProviderID
	rates     map[string]core.RateID
}

// Apply creates the scenario's records through svc.
func (s *Scenario) Apply(ctx context.Context, svc *core.Service) (*Result, error) {
	ap := &applier{
		svc: svc,
		res: &Result{
			Cases:          map[string]core.CaseID{},
			Appropriations: map[string]core.AppropriationID{},
			Activities:     map[string]core.ActivityID{},
			Schedules:      map[string]core.ScheduleID{},
		},
		sections:  map[string]core.SectionID{},
		details:   map[string]core.DetailsID{},
		providers: map[string]core.ServiceProviderID{},
		rates:     map[string]core.RateID{},
	}
	if err := ap.reference(ctx, s); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.ID, err)
	}
	for _, c := range s.Cases {
		if err := ap.caseRecords(ctx, c); err != nil {
			return nil, fmt.Errorf("scenario %s, case %s: %w", s.ID, c.Key, err)
		}
	}
	if svc.Logger != nil {
		svc.Logger.Info("scenario applied", "scenario", s.ID,
			"cases", len(ap.res.Cases), "activities", len(ap.res.Activities))
	}
	return ap.res, nil
}

func (ap *applier) reference(ctx context.Context, s *Scenario) error {
	st := ap.svc.Store
	for _, sec := range s.Sections {
		id := core.SectionID(core.NewID())
		if err := st.SaveSection(ctx, core.Section{ID: id, Paragraph: sec.Paragraph, Text: sec.Text, Kle: sec.Kle}); err != nil {
			return err
		}
		ap.sections[sec.Key] = id
	}
	for _, d := range s.Details {
		id := core.DetailsID(core.NewID())
		if err := st.SaveActivityDetails(ctx, core.ActivityDetails{ID: id, Name: d.Name, ActivityID: d.ActivityID}); err != nil {
			return err
		}
		ap.details[d.Key] = id
	}
	for _, si := range s.SectionInfos {
		err := st.SaveSectionInfo(ctx, core.SectionInfo{
			ID:                                     core.NewID(),
			DetailsID:                              ap.details[si.Details],
			SectionID:                              ap.sections[si.Section],
			MainActivityMainAccountNumber:          si.MainAccount,
			SupplementaryActivityMainAccountNumber: si.SupplAccount,
		})
		if err != nil {
			return err
		}
	}
	for _, p := range s.Providers {
		vat, err := optionalDecimal(p.VATFactor)
		if err != nil {
			return fmt.Errorf("provider %s: %w", p.Key, err)
		}
		id := core.ServiceProviderID(core.NewID())
		if err := st.SaveServiceProvider(ctx, core.ServiceProvider{ID: id, CVR: p.CVR, Name: p.Name, VATFactor: vat}); err != nil {
			return err
		}
		ap.providers[p.Key] = id
	}
	for _, r := range s.Rates {
		rate := core.Rate{ID: core.RateID(core.NewID()), Name: r.Name}
		for _, p := range r.Periods {
			price, err := decimal.NewFromString(p.Price)
			if err != nil {
				return fmt.Errorf("rate %s: %w", r.Key, err)
			}
			rate.Periods = append(rate.Periods, core.RatePeriod{Start: p.Start.Date, End: p.End.ptr(), Price: price})
		}
		if err := st.SaveRate(ctx, rate); err != nil {
			return err
		}
		ap.rates[r.Key] = rate.ID
	}
	for _, a := range s.Aliases {
		err := st.SaveAccountAlias(ctx, core.AccountAlias{
			MainAccountNumber: a.MainAccount,
			ActivityNumber:    a.Activity,
			Alias:             a.Alias,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (ap *applier) caseRecords(ctx context.Context, spec CaseSpec) error {
	c := &core.Case{SbsysID: spec.SbsysID, CPRNumber: spec.CPR, Name: spec.Name, CaseWorker: spec.CaseWorker}
	if err := ap.svc.SaveCase(ctx, c); err != nil {
		return err
	}
	ap.res.Cases[spec.Key] = c.ID

	for _, apSpec := range spec.Appropriations {
		appr := &core.Appropriation{
			CaseID:    c.ID,
			SbsysID:   apSpec.SbsysID,
			SectionID: ap.sections[apSpec.Section],
			Note:      apSpec.Note,
		}
		if err := ap.svc.SaveAppropriation(ctx, appr); err != nil {
			return err
		}
		ap.res.Appropriations[apSpec.Key] = appr.ID

		local := map[string]core.ActivityID{}
		for _, a := range apSpec.Activities {
			id, err := ap.activity(ctx, appr.ID, a, local)
			if err != nil {
				return fmt.Errorf("activity %s: %w", a.Key, err)
			}
			local[a.Key] = id
			ap.res.Activities[a.Key] = id
		}

		if len(apSpec.Grant) > 0 {
			ids := make([]core.ActivityID, 0, len(apSpec.Grant))
			for _, key := range apSpec.Grant {
				ids = append(ids, local[key])
			}
			approval := core.Approval{LevelID: apSpec.Approval.Level, UserID: apSpec.Approval.User, Note: apSpec.Approval.Note}
			if err := ap.svc.Grant(ctx, appr.ID, ids, approval); err != nil {
				return err
			}
		}

		for _, a := range apSpec.Activities {
			if a.Schedule == nil || a.Schedule.PaidThrough == nil {
				continue
			}
			if err := ap.markPaid(ctx, ap.res.Schedules[a.Key], a.Schedule.PaidThrough.Date); err != nil {
				return fmt.Errorf("activity %s: %w", a.Key, err)
			}
		}
	}
	return nil
}

func (ap *applier) activity(
	ctx context.Context, appropriationID core.AppropriationID, spec ActivitySpec, local map[string]core.ActivityID,
) (core.ActivityID, error) {
	a := &core.Activity{
		AppropriationID:   appropriationID,
		Type:              core.ActivityType(spec.Type),
		Status:            core.Status(spec.Status),
		StartDate:         spec.Start.Date,
		EndDate:           spec.End.ptr(),
		DetailsID:         ap.details[spec.Details],
		ServiceProviderID: ap.providers[spec.Provider],
		Modifies:          local[spec.Modifies],
		Note:              spec.Note,
	}
	if a.Type == "" {
		a.Type = core.MainActivity
	}
	if err := ap.svc.SaveActivity(ctx, a); err != nil {
		return "", err
	}
	if spec.Schedule == nil {
		return a.ID, nil
	}

	sched, err := ap.schedule(a.ID, *spec.Schedule)
	if err != nil {
		return "", err
	}
	if err := ap.svc.SaveSchedule(ctx, sched); err != nil {
		return "", err
	}
	ap.res.Schedules[spec.Key] = sched.ID
	return a.ID, nil
}

func (ap *applier) schedule(activityID core.ActivityID, spec ScheduleSpec) (*core.PaymentSchedule, error) {
	amount, err := optionalDecimal(spec.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	units, err := optionalDecimal(spec.Units)
	if err != nil {
		return nil, fmt.Errorf("units: %w", err)
	}
	return &core.PaymentSchedule{
		ActivityID:    activityID,
		RecipientType: core.RecipientType(spec.RecipientType),
		RecipientID:   spec.RecipientID,
		RecipientName: spec.RecipientName,
		PaymentMethod: core.PaymentMethod(spec.PaymentMethod),
		PaymentType:   core.PaymentType(spec.PaymentType),
		CostType:      core.CostType(spec.CostType),
		Frequency:     core.Frequency(spec.Frequency),
		Amount:        amount,
		Units:         units,
		DayOfMonth:    spec.DayOfMonth,
		RateID:        ap.rates[spec.Rate],
		Fictive:       spec.Fictive,
	}, nil
}

// markPaid pays every unpaid payment of the schedule dated through paidThrough.
func (ap *applier) markPaid(ctx context.Context, id core.ScheduleID, paidThrough core.Date) error {
	payments, err := ap.svc.Store.ListPayments(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range payments {
		if p.Paid || p.Date.After(paidThrough) {
			continue
		}
		if _, err := ap.svc.MarkPaid(ctx, p.ID, p.Date, p.Amount, ""); err != nil {
			return err
		}
		ap.res.PaymentsMarked++
	}
	return nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
