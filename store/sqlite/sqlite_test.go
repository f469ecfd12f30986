package sqlite_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/core"
	"github.com/warp/appropriation-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(year int, month time.Month, d int) core.Date {
	return core.NewDate(year, month, d)
}

// newStore opens an in-memory database with one case and appropriation "ap-1".
func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.SaveSection(ctx, core.Section{ID: "sec-1", Paragraph: "SEL-52-3.7", Text: "Aflastning"}))
	require.NoError(t, s.SaveCase(ctx, core.Case{ID: "case-1", SbsysID: "27.24.00-G01-1-26", CPRNumber: "0101011234"}))
	require.NoError(t, s.SaveAppropriation(ctx, core.Appropriation{ID: "ap-1", CaseID: "case-1", SectionID: "sec-1"}))
	return s
}

func mainActivity(id string, start core.Date, end *core.Date, modifies string) core.Activity {
	return core.Activity{
		ID:              core.ActivityID(id),
		AppropriationID: "ap-1",
		Type:            core.MainActivity,
		Status:          core.StatusDraft,
		StartDate:       start,
		EndDate:         end,
		Modifies:        core.ActivityID(modifies),
	}
}

func monthly(id, activityID string, amount string) core.PaymentSchedule {
	return core.PaymentSchedule{
		ID:            core.ScheduleID(id),
		ActivityID:    core.ActivityID(activityID),
		RecipientType: core.RecipientCompany,
		RecipientID:   "29189846",
		RecipientName: "Familiehuset",
		PaymentMethod: core.MethodInvoice,
		PaymentType:   core.RunningPayment,
		CostType:      core.CostFixed,
		Frequency:     core.FrequencyMonthly,
		Amount:        decimal.RequireFromString(amount),
		DayOfMonth:    1,
	}
}

// =============================================================================
// ROUND TRIP TESTS
// =============================================================================

func TestStore_ActivityRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	end := day(2026, time.June, 30)
	a := mainActivity("a", day(2026, time.January, 1), &end, "")
	a.Status = core.StatusGranted
	a.AppropriationDate = day(2026, time.January, 5).Ptr()
	a.Approval = core.Approval{LevelID: "team", Note: "ok", UserID: "leader"}
	a.ServiceProviderID = "sp-1"
	require.NoError(t, s.SaveActivity(ctx, a))

	got, err := s.GetActivity(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, a, *got)

	open := mainActivity("b", day(2026, time.July, 1), nil, "a")
	require.NoError(t, s.SaveActivity(ctx, open))
	got, err = s.GetActivity(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, got.EndDate)
	assert.Equal(t, core.ActivityID("a"), got.Modifies)

	openEnded, err := s.ListOpenEnded(ctx)
	require.NoError(t, err)
	require.Len(t, openEnded, 1)
	assert.Equal(t, core.ActivityID("b"), openEnded[0].ID)

	listed, err := s.ListActivities(ctx, "ap-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, core.ActivityID("a"), listed[0].ID, "ordered by start date")
}

func TestStore_PaymentRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveActivity(ctx, mainActivity("a", day(2026, time.January, 1), nil, "")))
	require.NoError(t, s.SaveSchedule(ctx, monthly("sched-1", "a", "1250.50")))

	paidDate := day(2026, time.February, 2)
	payments := []core.Payment{
		{
			ID: "p-2", ScheduleID: "sched-1", Date: day(2026, time.February, 1),
			Amount: decimal.RequireFromString("1250.50"), RecipientType: core.RecipientCompany,
			PaymentMethod: core.MethodInvoice, Paid: true, PaidDate: &paidDate,
			PaidAmount:         decimal.NewNullDecimal(decimal.RequireFromString("1200")),
			SavedAccountString: "12345-645511002-015035-67890",
		},
		{
			ID: "p-1", ScheduleID: "sched-1", Date: day(2026, time.January, 1),
			Amount: decimal.RequireFromString("1250.50"), RecipientType: core.RecipientCompany,
			PaymentMethod: core.MethodInvoice,
		},
	}
	require.NoError(t, s.SavePayments(ctx, payments))

	listed, err := s.ListPayments(ctx, "sched-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, core.PaymentID("p-1"), listed[0].ID, "ordered by date")
	assert.False(t, listed[0].Paid)
	assert.False(t, listed[0].PaidAmount.Valid)
	assert.Nil(t, listed[0].PaidDate)

	paid := listed[1]
	assert.True(t, paid.Paid)
	require.NotNil(t, paid.PaidDate)
	assert.Equal(t, "2026-02-02", paid.PaidDate.String())
	assert.True(t, decimal.RequireFromString("1200").Equal(paid.PaidAmount.Decimal))
	assert.True(t, decimal.RequireFromString("1250.5").Equal(paid.Amount))
	assert.Equal(t, "12345-645511002-015035-67890", paid.SavedAccountString)

	require.NoError(t, s.DeletePayments(ctx, []core.PaymentID{"p-1"}))
	listed, err = s.ListPayments(ctx, "sched-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestStore_ReferenceData(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveActivityDetails(ctx, core.ActivityDetails{ID: "d-1", Name: "Aflastning", ActivityID: "015035"}))
	require.NoError(t, s.SaveSectionInfo(ctx, core.SectionInfo{
		DetailsID:                     "d-1",
		SectionID:                     "sec-1",
		MainActivityMainAccountNumber: "528211011",
	}))
	require.NoError(t, s.SaveAccount(ctx, core.Account{SectionID: "sec-1", MainActivityDetailsID: "d-1", MainAccountNumber: "645511002"}))
	require.NoError(t, s.SaveAccountAlias(ctx, core.AccountAlias{MainAccountNumber: "528211011", ActivityNumber: "015035", Alias: "BOS1"}))
	require.NoError(t, s.SaveAccountAlias(ctx, core.AccountAlias{MainAccountNumber: "528211011", ActivityNumber: "015035", Alias: "BOS2"}))
	require.NoError(t, s.SaveServiceProvider(ctx, core.ServiceProvider{ID: "sp-1", CVR: "29189846", Name: "Familiehuset"}))

	si, err := s.FindSectionInfo(ctx, "d-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, "528211011", si.MainActivityMainAccountNumber)

	account, err := s.FindAccount(ctx, "sec-1", "d-1", "")
	require.NoError(t, err)
	assert.Equal(t, "645511002", account.MainAccountNumber)

	alias, err := s.FindAccountAlias(ctx, "528211011", "015035")
	require.NoError(t, err)
	assert.Equal(t, "BOS2", alias.Alias, "aliases are upserted")

	sp, err := s.GetServiceProvider(ctx, "sp-1")
	require.NoError(t, err)
	assert.True(t, core.DefaultVATFactor.Equal(sp.VATFactor), "missing VAT factor defaults to 100")

	err = s.SaveSectionInfo(ctx, core.SectionInfo{DetailsID: "d-1", SectionID: "sec-1"})
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestStore_Rates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	juneEnd := day(2026, time.June, 30)
	rate := core.Rate{
		ID:   "rate-1",
		Name: "Takst",
		Periods: []core.RatePeriod{
			{Start: day(2026, time.January, 1), End: &juneEnd, Price: decimal.RequireFromString("100")},
			{Start: day(2026, time.July, 1), Price: decimal.RequireFromString("120.25")},
		},
	}
	require.NoError(t, s.SaveRate(ctx, rate))

	got, err := s.GetRate(ctx, "rate-1")
	require.NoError(t, err)
	require.Len(t, got.Periods, 2)
	assert.Nil(t, got.Periods[1].End)

	price, ok := got.PriceOn(day(2026, time.August, 1))
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("120.25").Equal(price))
}

// =============================================================================
// CONSTRAINT TESTS
// =============================================================================

func TestStore_Constraints(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveActivity(ctx, mainActivity("a", day(2026, time.January, 1), nil, "")))
	require.NoError(t, s.SaveSchedule(ctx, monthly("sched-1", "a", "100")))

	t.Run("one main activity without modifies", func(t *testing.T) {
		err := s.SaveActivity(ctx, mainActivity("b", day(2026, time.March, 1), nil, ""))
		assert.ErrorIs(t, err, core.ErrConflict)

		assert.NoError(t, s.SaveActivity(ctx, mainActivity("b", day(2026, time.March, 1), nil, "a")))
	})

	t.Run("one schedule per activity", func(t *testing.T) {
		err := s.SaveSchedule(ctx, monthly("sched-2", "a", "100"))
		assert.ErrorIs(t, err, core.ErrConflict)
	})

	t.Run("payments need their schedule", func(t *testing.T) {
		err := s.SavePayments(ctx, []core.Payment{{
			ID: "p-x", ScheduleID: "missing", Date: day(2026, time.January, 1),
			RecipientType: core.RecipientPerson, PaymentMethod: core.MethodCash,
		}})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("activity needs its appropriation", func(t *testing.T) {
		a := mainActivity("x", day(2026, time.January, 1), nil, "")
		a.AppropriationID = "ap-missing"
		assert.ErrorIs(t, s.SaveActivity(ctx, a), core.ErrNotFound)
	})

	t.Run("missing records", func(t *testing.T) {
		_, err := s.GetActivity(ctx, "nope")
		assert.True(t, core.IsNotFound(err))
		assert.True(t, core.IsNotFound(s.DeleteSchedule(ctx, "nope")))
		assert.True(t, core.IsNotFound(s.DeleteActivity(ctx, "nope")))
	})
}

func TestStore_DeleteScheduleCascadesPayments(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveActivity(ctx, mainActivity("a", day(2026, time.January, 1), nil, "")))
	require.NoError(t, s.SaveSchedule(ctx, monthly("sched-1", "a", "100")))
	require.NoError(t, s.SavePayments(ctx, []core.Payment{{
		ID: "p-1", ScheduleID: "sched-1", Date: day(2026, time.January, 1),
		Amount: decimal.RequireFromString("100"), RecipientType: core.RecipientCompany, PaymentMethod: core.MethodInvoice,
	}}))

	require.NoError(t, s.DeleteSchedule(ctx, "sched-1"))

	_, err := s.GetPayment(ctx, "p-1")
	assert.True(t, core.IsNotFound(err))
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(st core.Store) error {
		require.NoError(t, st.SaveActivity(ctx, mainActivity("a", day(2026, time.January, 1), nil, "")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetActivity(ctx, "a")
	assert.True(t, core.IsNotFound(err), "rolled back")

	err = s.WithTx(ctx, func(st core.Store) error {
		return st.SaveActivity(ctx, mainActivity("a", day(2026, time.January, 1), nil, ""))
	})
	require.NoError(t, err)
	_, err = s.GetActivity(ctx, "a")
	assert.NoError(t, err, "committed")
}

func TestStore_ServiceGrant(t *testing.T) {
	// GIVEN: The service running on SQLite with a granted open-ended A
	// WHEN: An expected B modifying A from July is granted
	// THEN: A is cut and its payments end in June, all in one transaction

	s := newStore(t)
	ctx := context.Background()
	svc := core.NewService(s)
	svc.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	svc.Now = func() time.Time { return time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC) }

	a := mainActivity("a", day(2026, time.January, 1), nil, "")
	require.NoError(t, svc.SaveActivity(ctx, &a))
	schedA := monthly("", "a", "1000")
	require.NoError(t, svc.SaveSchedule(ctx, &schedA))
	require.NoError(t, svc.Grant(ctx, "ap-1", []core.ActivityID{"a"}, core.Approval{}))

	b := mainActivity("b", day(2026, time.July, 1), nil, "a")
	b.Status = core.StatusExpected
	require.NoError(t, svc.SaveActivity(ctx, &b))
	schedB := monthly("", "b", "1200")
	require.NoError(t, svc.SaveSchedule(ctx, &schedB))

	require.NoError(t, svc.Grant(ctx, "ap-1", []core.ActivityID{"b"}, core.Approval{UserID: "leader"}))

	got, err := s.GetActivity(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, "2026-06-30", got.EndDate.String())

	payments, err := s.ListPayments(ctx, schedA.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 6)

	inherited, err := s.GetSchedule(ctx, schedB.ID)
	require.NoError(t, err)
	assert.Equal(t, string(schedA.ID), inherited.PaymentID)

	err = svc.Grant(ctx, "ap-1", []core.ActivityID{"b"}, core.Approval{})
	assert.ErrorIs(t, err, core.ErrWorkflow)
}
