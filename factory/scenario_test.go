package factory_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/core"
	"github.com/warp/appropriation-engine/core/store"
	"github.com/warp/appropriation-engine/factory"
)

func newService() *core.Service {
	svc := core.NewService(store.NewTxMemory())
	svc.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	svc.Now = func() time.Time { return time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC) }
	return svc
}

func load(t *testing.T, svc *core.Service, id string) *factory.Result {
	t.Helper()
	s, err := factory.FindBuiltin(id)
	require.NoError(t, err)
	res, err := s.Apply(context.Background(), svc)
	require.NoError(t, err)
	return res
}

func payments(t *testing.T, svc *core.Service, id core.ScheduleID) []core.Payment {
	t.Helper()
	out, err := svc.Store.ListPayments(context.Background(), id)
	require.NoError(t, err)
	return out
}

// =============================================================================
// BUILT-IN SCENARIOS
// =============================================================================

func TestBuiltin_AllParse(t *testing.T) {
	all, err := factory.Builtin()
	require.NoError(t, err)

	var ids []string
	for _, s := range all {
		ids = append(ids, s.ID)
		assert.NotEmpty(t, s.Name, s.ID)
	}
	assert.Equal(t, []string{"modification", "running-payment", "supplementary"}, ids)

	_, err = factory.FindBuiltin("nope")
	assert.True(t, core.IsNotFound(err))
}

func TestScenario_RunningPayment(t *testing.T) {
	// GIVEN: The running-payment scenario
	// WHEN: Applying it
	// THEN: The main activity is granted with 12 monthly payments, the
	//       first six paid with frozen account strings

	ctx := context.Background()
	svc := newService()
	res := load(t, svc, "running-payment")

	a, err := svc.Store.GetActivity(ctx, res.Activities["main"])
	require.NoError(t, err)
	assert.Equal(t, core.StatusGranted, a.Status)
	assert.Equal(t, "orla", a.Approval.UserID)

	list := payments(t, svc, res.Schedules["main"])
	require.Len(t, list, 12)
	assert.Equal(t, 6, res.PaymentsMarked)
	assert.True(t, list[5].Paid)
	assert.False(t, list[6].Paid)
	assert.Equal(t, "XXX-528211011-015035-XXX", list[0].SavedAccountStringNew)
	assert.Empty(t, list[0].SavedAccountString, "no legacy account mapping")

	accounts, err := svc.PaymentAccounts(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "BOS0000109", accounts.AccountAlias)

	summary, err := svc.AppropriationSummary(ctx, res.Appropriations["merudgifter"])
	require.NoError(t, err)
	assert.Equal(t, core.StatusGranted, summary.Status)
	assert.True(t, decimal.NewFromInt(12000).Equal(summary.TotalGrantedThisYear))
}

func TestScenario_Modification(t *testing.T) {
	// GIVEN: An open-ended granted activity and an expected increase from July
	// WHEN: Applying the scenario
	// THEN: Granted totals follow the granted activity alone, expected totals
	//       switch to the increase from July

	ctx := context.Background()
	svc := newService()
	res := load(t, svc, "modification")

	require.Len(t, payments(t, svc, res.Schedules["plejefamilie"]), 24, "open end runs through next year")
	require.Len(t, payments(t, svc, res.Schedules["forhoejelse"]), 18)
	assert.Equal(t, 3, res.PaymentsMarked)

	summary, err := svc.AppropriationSummary(ctx, res.Appropriations["anbringelse"])
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(222000).Equal(summary.TotalGrantedThisYear), summary.TotalGrantedThisYear.String())
	assert.True(t, decimal.NewFromInt(237000).Equal(summary.TotalExpectedThisYear), summary.TotalExpectedThisYear.String())

	require.NoError(t, svc.ValidateExpected(ctx, res.Activities["forhoejelse"]))
}

func TestScenario_Supplementary(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	res := load(t, svc, "supplementary")

	main := payments(t, svc, res.Schedules["stoette"])
	require.Len(t, main, 53)
	assert.True(t, decimal.NewFromInt(2160).Equal(main[0].Amount), "450 * 6 hours at an 80 percent VAT factor")

	transport := payments(t, svc, res.Schedules["koersel"])
	require.Len(t, transport, 12)
	assert.True(t, decimal.RequireFromString("472.8").Equal(transport[0].Amount), "120 km at the 2026 rate")

	number, err := svc.AccountNumber(ctx, res.Activities["koersel"])
	require.NoError(t, err)
	assert.Equal(t, "538211012-015020", number)
}

func TestScenario_ApplyTwice(t *testing.T) {
	// GIVEN: A scenario already applied
	// WHEN: Applying it again
	// THEN: A second, independent set of records is created

	svc := newService()
	first := load(t, svc, "running-payment")
	second := load(t, svc, "running-payment")
	assert.NotEqual(t, first.Cases["jensen"], second.Cases["jensen"])

	cases, err := svc.Store.ListCases(context.Background())
	require.NoError(t, err)
	assert.Len(t, cases, 2)
}

// =============================================================================
// PARSE ERRORS
// =============================================================================

func TestParse_RejectsBrokenReferences(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown section",
			yaml: `
id: x
cases:
  - key: c
    appropriations:
      - key: ap
        section: missing
`,
		},
		{
			name: "modifies a later activity",
			yaml: `
id: x
sections: [{key: s}]
cases:
  - key: c
    appropriations:
      - key: ap
        section: s
        activities:
          - {key: a, start: 2026-01-01, modifies: b}
          - {key: b, start: 2026-01-01}
`,
		},
		{
			name: "grants an unknown activity",
			yaml: `
id: x
sections: [{key: s}]
cases:
  - key: c
    appropriations:
      - key: ap
        section: s
        grant: [a]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, core.ErrInvariantViolation)
		})
	}

	t.Run("bad date", func(t *testing.T) {
		_, err := factory.Parse([]byte("id: x\nrates: [{key: r, periods: [{start: 2026-13-01, price: '1'}]}]\n"))
		assert.Error(t, err)
	})
}
