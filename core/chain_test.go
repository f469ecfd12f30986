package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/core"
)

func activity(id string, typ core.ActivityType, status core.Status, start core.Date, end *core.Date, modifies string) core.Activity {
	return core.Activity{
		ID:              core.ActivityID(id),
		AppropriationID: "ap-1",
		Type:            typ,
		Status:          status,
		StartDate:       start,
		EndDate:         end,
		Modifies:        core.ActivityID(modifies),
	}
}

// dailyPayments returns one payment of amount per day in [start, end].
func dailyPayments(start, end core.Date, amount string) []core.Payment {
	var out []core.Payment
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		out = append(out, core.Payment{Date: d, Amount: dec(amount)})
	}
	return out
}

// =============================================================================
// CHAIN TESTS
// =============================================================================

func TestChain_CurrentGrantedMainAndStatus(t *testing.T) {
	// GIVEN: A granted main, a granted modification and an expected one
	// WHEN: Asking for the current granted main activity
	// THEN: The granted head wins; expected successors don't count

	juneEnd := day(2026, time.June, 30)
	chain := core.NewChain([]core.Activity{
		activity("a", core.MainActivity, core.StatusGranted, day(2026, time.January, 1), &juneEnd, ""),
		activity("b", core.MainActivity, core.StatusGranted, day(2026, time.July, 1), nil, "a"),
		activity("c", core.MainActivity, core.StatusExpected, day(2026, time.September, 1), nil, "b"),
		activity("s", core.SupplementaryActivity, core.StatusGranted, day(2026, time.February, 1), nil, ""),
	})

	current := chain.CurrentGrantedMain()
	require.NotNil(t, current)
	assert.Equal(t, core.ActivityID("b"), current.ID)
	assert.Equal(t, core.StatusGranted, chain.Status())

	from, to := chain.GrantedPeriod()
	require.NotNil(t, from)
	assert.Equal(t, "2026-01-01", from.String())
	assert.Nil(t, to, "current granted main is open-ended")

	assert.True(t, chain.Superseded("a", core.StatusGranted))
	assert.False(t, chain.Superseded("b", core.StatusGranted))
	assert.True(t, chain.Superseded("b", core.StatusGranted, core.StatusExpected))

	inForce := chain.InForce(core.SupplementaryActivity, core.StatusGranted)
	require.Len(t, inForce, 1)
	assert.Equal(t, core.ActivityID("s"), inForce[0].ID)
}

func TestChain_StatusWithoutGrant(t *testing.T) {
	tests := []struct {
		name       string
		activities []core.Activity
		want       core.Status
	}{
		{name: "empty", want: core.StatusDraft},
		{
			name: "expected main",
			activities: []core.Activity{
				activity("a", core.MainActivity, core.StatusExpected, day(2026, time.January, 1), nil, ""),
			},
			want: core.StatusExpected,
		},
		{
			name: "granted supplementary does not count",
			activities: []core.Activity{
				activity("a", core.MainActivity, core.StatusDraft, day(2026, time.January, 1), nil, ""),
				activity("s", core.SupplementaryActivity, core.StatusGranted, day(2026, time.January, 1), nil, ""),
			},
			want: core.StatusDraft,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := core.NewChain(tt.activities)
			assert.Equal(t, tt.want, chain.Status())
			from, to := chain.GrantedPeriod()
			assert.Nil(t, from)
			assert.Nil(t, to)
		})
	}
}

// =============================================================================
// COST ATTRIBUTION TESTS
// =============================================================================

func TestCostView_MultipleLevels(t *testing.T) {
	// GIVEN: A granted Dec 1-15 at 500/day
	//        B granted modifies A, Dec 15 only at 500
	//        C expected modifies B, Dec 1-15 at 600/day
	// WHEN: Computing totals
	// THEN: Granted figures follow the granted chain,
	//       expected figures let C replace both A and B

	dec1, dec15 := day(2026, time.December, 1), day(2026, time.December, 15)
	activities := []core.Activity{
		activity("a", core.MainActivity, core.StatusGranted, dec1, &dec15, ""),
		activity("b", core.MainActivity, core.StatusGranted, dec15, &dec15, "a"),
		activity("c", core.MainActivity, core.StatusExpected, dec1, &dec15, "b"),
	}
	v := core.NewCostView(core.NewChain(activities), 2026)
	v.SetPayments("a", dailyPayments(dec1, dec15, "500"))
	v.SetPayments("b", dailyPayments(dec15, dec15, "500"))
	v.SetPayments("c", dailyPayments(dec1, dec15, "600"))
	v.SetFullYear("a", dec("182500"))
	v.SetFullYear("b", dec("1000"))
	v.SetFullYear("c", dec("3000"))

	assert.True(t, dec("7000").Equal(v.TotalCost("a")), "A is cut at B's start")
	assert.True(t, dec("500").Equal(v.TotalCost("b")))
	assert.True(t, dec("9000").Equal(v.TotalCost("c")))

	assert.True(t, v.TotalCostThisYear("a").IsZero(), "C covers A from Dec 1")
	assert.True(t, v.TotalCostThisYear("b").IsZero())
	assert.True(t, dec("9000").Equal(v.TotalCostThisYear("c")))

	assert.True(t, dec("7000").Equal(v.TotalGrantedThisYear("a")))
	assert.True(t, dec("500").Equal(v.TotalGrantedThisYear("b")))
	assert.True(t, v.TotalGrantedThisYear("c").IsZero(), "expected activities have no granted cost")

	assert.True(t, dec("7500").Equal(v.GrantedThisYear()))
	assert.True(t, dec("9000").Equal(v.ExpectedThisYear()))
	assert.True(t, dec("1000").Equal(v.GrantedFullYear()), "only the granted head counts")
	assert.True(t, dec("3000").Equal(v.ExpectedFullYear()), "only the expected head counts")
}

func TestCostView_WithoutExpectedSuccessor(t *testing.T) {
	dec1, dec15 := day(2026, time.December, 1), day(2026, time.December, 15)
	activities := []core.Activity{
		activity("a", core.MainActivity, core.StatusGranted, dec1, &dec15, ""),
		activity("b", core.MainActivity, core.StatusGranted, dec15, &dec15, "a"),
	}
	v := core.NewCostView(core.NewChain(activities), 2026)
	v.SetPayments("a", dailyPayments(dec1, dec15, "500"))
	v.SetPayments("b", dailyPayments(dec15, dec15, "500"))

	assert.True(t, dec("7000").Equal(v.TotalCostThisYear("a")))
	assert.True(t, dec("500").Equal(v.TotalCostThisYear("b")))
	assert.True(t, dec("7500").Equal(v.ExpectedThisYear()))
}

func TestCostView_OtherYearsExcluded(t *testing.T) {
	start, end := day(2025, time.December, 30), day(2026, time.January, 2)
	v := core.NewCostView(core.NewChain([]core.Activity{
		activity("a", core.MainActivity, core.StatusGranted, start, &end, ""),
	}), 2026)
	v.SetPayments("a", dailyPayments(start, end, "100"))

	assert.True(t, dec("400").Equal(v.TotalCost("a")))
	assert.True(t, dec("200").Equal(v.TotalCostThisYear("a")))
	assert.True(t, dec("200").Equal(v.TotalGrantedThisYear("a")))
}

// =============================================================================
// CASE AND EXPECTED-ADJUSTMENT TESTS
// =============================================================================

func TestCaseExpired(t *testing.T) {
	today := day(2026, time.October, 16)
	ended := day(2026, time.October, 1)
	endsToday := today

	tests := []struct {
		name       string
		activities [][]core.Activity
		want       bool
	}{
		{name: "no appropriations", want: false},
		{name: "appropriation without activities", activities: [][]core.Activity{{}}, want: false},
		{
			name: "open-ended main",
			activities: [][]core.Activity{{
				activity("a", core.MainActivity, core.StatusGranted, day(2026, time.January, 1), nil, ""),
			}},
			want: false,
		},
		{
			name: "main ending today",
			activities: [][]core.Activity{{
				activity("a", core.MainActivity, core.StatusGranted, day(2026, time.January, 1), &endsToday, ""),
			}},
			want: false,
		},
		{
			name: "all mains ended",
			activities: [][]core.Activity{
				{activity("a", core.MainActivity, core.StatusGranted, day(2026, time.January, 1), &ended, "")},
				{activity("b", core.MainActivity, core.StatusGranted, day(2025, time.January, 1), &ended, "")},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.CaseExpired(tt.activities, today))
		})
	}
}

func TestActivity_ValidateExpected(t *testing.T) {
	today := day(2026, time.October, 16)
	start := day(2026, time.January, 1)
	ended := day(2026, time.June, 30)
	next := &core.Payment{Date: day(2026, time.November, 1)}

	modified := activity("a", core.MainActivity, core.StatusGranted, start, &ended, "")
	sameStart := activity("b", core.MainActivity, core.StatusExpected, start, nil, "a")

	t.Run("requires a modified activity", func(t *testing.T) {
		a := activity("b", core.MainActivity, core.StatusExpected, start, nil, "")
		assert.ErrorIs(t, a.ValidateExpected(core.ExpectedCheck{}, today), core.ErrValidation)
	})

	t.Run("same start as an ended activity with payments left", func(t *testing.T) {
		err := sameStart.ValidateExpected(core.ExpectedCheck{Modified: &modified, ModifiedNextPayment: next}, today)
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("same start without payments left", func(t *testing.T) {
		err := sameStart.ValidateExpected(core.ExpectedCheck{Modified: &modified}, today)
		assert.NoError(t, err)
	})

	t.Run("one-time on a single day is allowed", func(t *testing.T) {
		a := activity("b", core.MainActivity, core.StatusExpected, start, &start, "a")
		oneTime := running("", "100")
		oneTime.PaymentType = core.OneTimePayment
		err := a.ValidateExpected(core.ExpectedCheck{Modified: &modified, ModifiedNextPayment: next, Schedule: oneTime}, today)
		assert.NoError(t, err)
	})

	t.Run("later start is fine", func(t *testing.T) {
		a := activity("b", core.MainActivity, core.StatusExpected, day(2026, time.July, 1), nil, "a")
		err := a.ValidateExpected(core.ExpectedCheck{Modified: &modified, ModifiedNextPayment: next}, today)
		assert.NoError(t, err)
	})
}
