// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/appropriation-engine/core"
)

// =============================================================================
// TABLES - Unlocked record maps shared by Memory and its transactions
// =============================================================================

type tables struct {
	sections       map[core.SectionID]core.Section
	details        map[core.DetailsID]core.ActivityDetails
	sectionInfos   map[string]core.SectionInfo
	providers      map[core.ServiceProviderID]core.ServiceProvider
	accounts       map[string]core.Account
	aliases        map[aliasKey]core.AccountAlias
	rates          map[core.RateID]core.Rate
	cases          map[core.CaseID]core.Case
	appropriations map[core.AppropriationID]core.Appropriation
	activities     map[core.ActivityID]core.Activity
	schedules      map[core.ScheduleID]core.PaymentSchedule
	payments       map[core.PaymentID]core.Payment
}

type aliasKey struct {
	main     string
	activity string
}

func newTables() *tables {
	return &tables{
		sections:       make(map[core.SectionID]core.Section),
		details:        make(map[core.DetailsID]core.ActivityDetails),
		sectionInfos:   make(map[string]core.SectionInfo),
		providers:      make(map[core.ServiceProviderID]core.ServiceProvider),
		accounts:       make(map[string]core.Account),
		aliases:        make(map[aliasKey]core.AccountAlias),
		rates:          make(map[core.RateID]core.Rate),
		cases:          make(map[core.CaseID]core.Case),
		appropriations: make(map[core.AppropriationID]core.Appropriation),
		activities:     make(map[core.ActivityID]core.Activity),
		schedules:      make(map[core.ScheduleID]core.PaymentSchedule),
		payments:       make(map[core.PaymentID]core.Payment),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	copyMap(c.sections, t.sections)
	copyMap(c.details, t.details)
	copyMap(c.sectionInfos, t.sectionInfos)
	copyMap(c.providers, t.providers)
	copyMap(c.accounts, t.accounts)
	copyMap(c.aliases, t.aliases)
	copyMap(c.rates, t.rates)
	copyMap(c.cases, t.cases)
	copyMap(c.appropriations, t.appropriations)
	copyMap(c.activities, t.activities)
	copyMap(c.schedules, t.schedules)
	copyMap(c.payments, t.payments)
	return c
}

func copyMap[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

func get[K comparable, V any](m map[K]V, kind string, id K) (*V, error) {
	v, ok := m[id]
	if !ok {
		return nil, core.NotFound(kind, id)
	}
	return &v, nil
}

func values[K comparable, V any](m map[K]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Reference data

func (t *tables) SaveSection(_ context.Context, s core.Section) error {
	t.sections[s.ID] = s
	return nil
}

func (t *tables) GetSection(_ context.Context, id core.SectionID) (*core.Section, error) {
	return get(t.sections, "section", id)
}

func (t *tables) ListSections(context.Context) ([]core.Section, error) {
	return values(t.sections, func(a, b core.Section) bool { return a.Paragraph < b.Paragraph }), nil
}

func (t *tables) SaveActivityDetails(_ context.Context, d core.ActivityDetails) error {
	t.details[d.ID] = d
	return nil
}

func (t *tables) GetActivityDetails(_ context.Context, id core.DetailsID) (*core.ActivityDetails, error) {
	return get(t.details, "activity details", id)
}

func (t *tables) ListActivityDetails(context.Context) ([]core.ActivityDetails, error) {
	return values(t.details, func(a, b core.ActivityDetails) bool { return a.Name < b.Name }), nil
}

func (t *tables) SaveSectionInfo(_ context.Context, si core.SectionInfo) error {
	if si.ID == "" {
		si.ID = core.NewID()
	}
	for id, other := range t.sectionInfos {
		if id != si.ID && other.DetailsID == si.DetailsID && other.SectionID == si.SectionID {
			return fmt.Errorf("section info for %s/%s: %w", si.DetailsID, si.SectionID, core.ErrConflict)
		}
	}
	t.sectionInfos[si.ID] = si
	return nil
}

func (t *tables) FindSectionInfo(_ context.Context, details core.DetailsID, section core.SectionID) (*core.SectionInfo, error) {
	for _, si := range t.sectionInfos {
		if si.DetailsID == details && si.SectionID == section {
			return &si, nil
		}
	}
	return nil, core.NotFound("section info", string(details)+"/"+string(section))
}

func (t *tables) SaveServiceProvider(_ context.Context, sp core.ServiceProvider) error {
	t.providers[sp.ID] = sp
	return nil
}

func (t *tables) GetServiceProvider(_ context.Context, id core.ServiceProviderID) (*core.ServiceProvider, error) {
	return get(t.providers, "service provider", id)
}

func (t *tables) ListServiceProviders(context.Context) ([]core.ServiceProvider, error) {
	return values(t.providers, func(a, b core.ServiceProvider) bool { return a.Name < b.Name }), nil
}

func (t *tables) SaveAccount(_ context.Context, a core.Account) error {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	t.accounts[a.ID] = a
	return nil
}

func (t *tables) FindAccount(_ context.Context, section core.SectionID, main, suppl core.DetailsID) (*core.Account, error) {
	for _, a := range t.accounts {
		if a.SectionID == section && a.MainActivityDetailsID == main && a.SupplementaryActivityDetailsID == suppl {
			return &a, nil
		}
	}
	return nil, core.NotFound("account", fmt.Sprintf("%s/%s/%s", section, main, suppl))
}

func (t *tables) SaveAccountAlias(_ context.Context, a core.AccountAlias) error {
	t.aliases[aliasKey{main: a.MainAccountNumber, activity: a.ActivityNumber}] = a
	return nil
}

func (t *tables) FindAccountAlias(_ context.Context, mainAccountNumber, activityNumber string) (*core.AccountAlias, error) {
	return get(t.aliases, "account alias", aliasKey{main: mainAccountNumber, activity: activityNumber})
}

func (t *tables) SaveRate(_ context.Context, r core.Rate) error {
	t.rates[r.ID] = r
	return nil
}

func (t *tables) GetRate(_ context.Context, id core.RateID) (*core.Rate, error) {
	return get(t.rates, "rate", id)
}

func (t *tables) ListRates(context.Context) ([]core.Rate, error) {
	return values(t.rates, func(a, b core.Rate) bool { return a.Name < b.Name }), nil
}

// Cases and appropriations

func (t *tables) SaveCase(_ context.Context, c core.Case) error {
	t.cases[c.ID] = c
	return nil
}

func (t *tables) GetCase(_ context.Context, id core.CaseID) (*core.Case, error) {
	return get(t.cases, "case", id)
}

func (t *tables) ListCases(context.Context) ([]core.Case, error) {
	return values(t.cases, func(a, b core.Case) bool { return a.SbsysID < b.SbsysID }), nil
}

func (t *tables) SaveAppropriation(_ context.Context, a core.Appropriation) error {
	t.appropriations[a.ID] = a
	return nil
}

func (t *tables) GetAppropriation(_ context.Context, id core.AppropriationID) (*core.Appropriation, error) {
	return get(t.appropriations, "appropriation", id)
}

func (t *tables) ListAppropriations(_ context.Context, caseID core.CaseID) ([]core.Appropriation, error) {
	var out []core.Appropriation
	for _, a := range t.appropriations {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SbsysID < out[j].SbsysID })
	return out, nil
}

// Activities

func (t *tables) SaveActivity(_ context.Context, a core.Activity) error {
	if a.IsMain() && a.Modifies == "" {
		for id, other := range t.activities {
			if id != a.ID && other.AppropriationID == a.AppropriationID && other.IsMain() && other.Modifies == "" {
				return fmt.Errorf("main activity of appropriation %s: %w", a.AppropriationID, core.ErrConflict)
			}
		}
	}
	t.activities[a.ID] = a
	return nil
}

func (t *tables) GetActivity(_ context.Context, id core.ActivityID) (*core.Activity, error) {
	return get(t.activities, "activity", id)
}

func (t *tables) ListActivities(_ context.Context, appropriationID core.AppropriationID) ([]core.Activity, error) {
	var out []core.Activity
	for _, a := range t.activities {
		if a.AppropriationID == appropriationID {
			out = append(out, a)
		}
	}
	sortActivities(out)
	return out, nil
}

func (t *tables) ListOpenEnded(context.Context) ([]core.Activity, error) {
	var out []core.Activity
	for _, a := range t.activities {
		if a.EndDate == nil {
			out = append(out, a)
		}
	}
	sortActivities(out)
	return out, nil
}

func sortActivities(activities []core.Activity) {
	sort.Slice(activities, func(i, j int) bool {
		a, b := activities[i], activities[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})
}

func (t *tables) DeleteActivity(_ context.Context, id core.ActivityID) error {
	if _, ok := t.activities[id]; !ok {
		return core.NotFound("activity", id)
	}
	delete(t.activities, id)
	return nil
}

// Schedules and payments

func (t *tables) SaveSchedule(_ context.Context, s core.PaymentSchedule) error {
	if s.ActivityID != "" {
		for id, other := range t.schedules {
			if id != s.ID && other.ActivityID == s.ActivityID {
				return fmt.Errorf("payment schedule of activity %s: %w", s.ActivityID, core.ErrConflict)
			}
		}
	}
	t.schedules[s.ID] = s
	return nil
}

func (t *tables) GetSchedule(_ context.Context, id core.ScheduleID) (*core.PaymentSchedule, error) {
	return get(t.schedules, "payment schedule", id)
}

func (t *tables) GetScheduleByActivity(_ context.Context, activityID core.ActivityID) (*core.PaymentSchedule, error) {
	for _, s := range t.schedules {
		if s.ActivityID == activityID {
			return &s, nil
		}
	}
	return nil, core.NotFound("payment schedule of activity", activityID)
}

func (t *tables) DeleteSchedule(_ context.Context, id core.ScheduleID) error {
	if _, ok := t.schedules[id]; !ok {
		return core.NotFound("payment schedule", id)
	}
	for pid, p := range t.payments {
		if p.ScheduleID == id {
			delete(t.payments, pid)
		}
	}
	delete(t.schedules, id)
	return nil
}

func (t *tables) SavePayments(_ context.Context, payments []core.Payment) error {
	for _, p := range payments {
		if _, ok := t.schedules[p.ScheduleID]; !ok {
			return core.NotFound("payment schedule", p.ScheduleID)
		}
	}
	for _, p := range payments {
		t.payments[p.ID] = p
	}
	return nil
}

func (t *tables) GetPayment(_ context.Context, id core.PaymentID) (*core.Payment, error) {
	return get(t.payments, "payment", id)
}

func (t *tables) ListPayments(_ context.Context, scheduleID core.ScheduleID) ([]core.Payment, error) {
	var out []core.Payment
	for _, p := range t.payments {
		if p.ScheduleID == scheduleID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tables) DeletePayments(_ context.Context, ids []core.PaymentID) error {
	for _, id := range ids {
		delete(t.payments, id)
	}
	return nil
}

// =============================================================================
// MEMORY STORE - Locked access to the tables (for testing/dev)
// =============================================================================

// Memory is a core.Store kept in process memory.
type Memory struct {
	mu sync.RWMutex
	t  *tables
}

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

func (m *Memory) read() func() {
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *Memory) write() func() {
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) SaveSection(ctx context.Context, s core.Section) error {
	defer m.write()()
	return m.t.SaveSection(ctx, s)
}

func (m *Memory) GetSection(ctx context.Context, id core.SectionID) (*core.Section, error) {
	defer m.read()()
	return m.t.GetSection(ctx, id)
}

func (m *Memory) ListSections(ctx context.Context) ([]core.Section, error) {
	defer m.read()()
	return m.t.ListSections(ctx)
}

func (m *Memory) SaveActivityDetails(ctx context.Context, d core.ActivityDetails) error {
	defer m.write()()
	return m.t.SaveActivityDetails(ctx, d)
}

func (m *Memory) GetActivityDetails(ctx context.Context, id core.DetailsID) (*core.ActivityDetails, error) {
	defer m.read()()
	return m.t.GetActivityDetails(ctx, id)
}

func (m *Memory) ListActivityDetails(ctx context.Context) ([]core.ActivityDetails, error) {
	defer m.read()()
	return m.t.ListActivityDetails(ctx)
}

func (m *Memory) SaveSectionInfo(ctx context.Context, si core.SectionInfo) error {
	defer m.write()()
	return m.t.SaveSectionInfo(ctx, si)
}

func (m *Memory) FindSectionInfo(ctx context.Context, details core.DetailsID, section core.SectionID) (*core.SectionInfo, error) {
	defer m.read()()
	return m.t.FindSectionInfo(ctx, details, section)
}

func (m *Memory) SaveServiceProvider(ctx context.Context, sp core.ServiceProvider) error {
	defer m.write()()
	return m.t.SaveServiceProvider(ctx, sp)
}

func (m *Memory) GetServiceProvider(ctx context.Context, id core.ServiceProviderID) (*core.ServiceProvider, error) {
	defer m.read()()
	return m.t.GetServiceProvider(ctx, id)
}

func (m *Memory) ListServiceProviders(ctx context.Context) ([]core.ServiceProvider, error) {
	defer m.read()()
	return m.t.ListServiceProviders(ctx)
}

func (m *Memory) SaveAccount(ctx context.Context, a core.Account) error {
	defer m.write()()
	return m.t.SaveAccount(ctx, a)
}

func (m *Memory) FindAccount(ctx context.Context, section core.SectionID, main, suppl core.DetailsID) (*core.Account, error) {
	defer m.read()()
	return m.t.FindAccount(ctx, section, main, suppl)
}

func (m *Memory) SaveAccountAlias(ctx context.Context, a core.AccountAlias) error {
	defer m.write()()
	return m.t.SaveAccountAlias(ctx, a)
}

func (m *Memory) FindAccountAlias(ctx context.Context, mainAccountNumber, activityNumber string) (*core.AccountAlias, error) {
	defer m.read()()
	return m.t.FindAccountAlias(ctx, mainAccountNumber, activityNumber)
}

func (m *Memory) SaveRate(ctx context.Context, r core.Rate) error {
	defer m.write()()
	return m.t.SaveRate(ctx, r)
}

func (m *Memory) GetRate(ctx context.Context, id core.RateID) (*core.Rate, error) {
	defer m.read()()
	return m.t.GetRate(ctx, id)
}

func (m *Memory) ListRates(ctx context.Context) ([]core.Rate, error) {
	defer m.read()()
	return m.t.ListRates(ctx)
}

func (m *Memory) SaveCase(ctx context.Context, c core.Case) error {
	defer m.write()()
	return m.t.SaveCase(ctx, c)
}

func (m *Memory) GetCase(ctx context.Context, id core.CaseID) (*core.Case, error) {
	defer m.read()()
	return m.t.GetCase(ctx, id)
}

func (m *Memory) ListCases(ctx context.Context) ([]core.Case, error) {
	defer m.read()()
	return m.t.ListCases(ctx)
}

func (m *Memory) SaveAppropriation(ctx context.Context, a core.Appropriation) error {
	defer m.write()()
	return m.t.SaveAppropriation(ctx, a)
}

func (m *Memory) GetAppropriation(ctx context.Context, id core.AppropriationID) (*core.Appropriation, error) {
	defer m.read()()
	return m.t.GetAppropriation(ctx, id)
}

func (m *Memory) ListAppropriations(ctx context.Context, caseID core.CaseID) ([]core.Appropriation, error) {
	defer m.read()()
	return m.t.ListAppropriations(ctx, caseID)
}

func (m *Memory) SaveActivity(ctx context.Context, a core.Activity) error {
	defer m.write()()
	return m.t.SaveActivity(ctx, a)
}

func (m *Memory) GetActivity(ctx context.Context, id core.ActivityID) (*core.Activity, error) {
	defer m.read()()
	return m.t.GetActivity(ctx, id)
}

func (m *Memory) ListActivities(ctx context.Context, appropriationID core.AppropriationID) ([]core.Activity, error) {
	defer m.read()()
	return m.t.ListActivities(ctx, appropriationID)
}

func (m *Memory) ListOpenEnded(ctx context.Context) ([]core.Activity, error) {
	defer m.read()()
	return m.t.ListOpenEnded(ctx)
}

func (m *Memory) DeleteActivity(ctx context.Context, id core.ActivityID) error {
	defer m.write()()
	return m.t.DeleteActivity(ctx, id)
}

func (m *Memory) SaveSchedule(ctx context.Context, s core.PaymentSchedule) error {
	defer m.write()()
	return m.t.SaveSchedule(ctx, s)
}

func (m *Memory) GetSchedule(ctx context.Context, id core.ScheduleID) (*core.PaymentSchedule, error) {
	defer m.read()()
	return m.t.GetSchedule(ctx, id)
}

func (m *Memory) GetScheduleByActivity(ctx context.Context, activityID core.ActivityID) (*core.PaymentSchedule, error) {
	defer m.read()()
	return m.t.GetScheduleByActivity(ctx, activityID)
}

func (m *Memory) DeleteSchedule(ctx context.Context, id core.ScheduleID) error {
	defer m.write()()
	return m.t.DeleteSchedule(ctx, id)
}

func (m *Memory) SavePayments(ctx context.Context, payments []core.Payment) error {
	defer m.write()()
	return m.t.SavePayments(ctx, payments)
}

func (m *Memory) GetPayment(ctx context.Context, id core.PaymentID) (*core.Payment, error) {
	defer m.read()()
	return m.t.GetPayment(ctx, id)
}

func (m *Memory) ListPayments(ctx context.Context, scheduleID core.ScheduleID) ([]core.Payment, error) {
	defer m.read()()
	return m.t.ListPayments(ctx, scheduleID)
}

func (m *Memory) DeletePayments(ctx context.Context, ids []core.PaymentID) error {
	defer m.write()()
	return m.t.DeletePayments(ctx, ids)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// fn receives the unlocked tables; the store lock is held until it returns.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(core.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.t.clone()
	if err := fn(tm.t); err != nil {
		tm.t = snapshot
		return err
	}
	return nil
}

var (
	_ core.Store   = (*tables)(nil)
	_ core.TxStore = (*TxMemory)(nil)
)
