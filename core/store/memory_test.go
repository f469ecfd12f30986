package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/core"
)

func testActivity(id, modifies string) core.Activity {
	return core.Activity{
		ID:              core.ActivityID(id),
		AppropriationID: "ap-1",
		Type:            core.MainActivity,
		Status:          core.StatusDraft,
		StartDate:       core.NewDate(2026, time.January, 1),
		Modifies:        core.ActivityID(modifies),
	}
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewTxMemory()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(st core.Store) error {
		require.NoError(t, st.SaveActivity(ctx, testActivity("a", "")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.GetActivity(ctx, "a")
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, m.WithTx(ctx, func(st core.Store) error {
		return st.SaveActivity(ctx, testActivity("a", ""))
	}))
	_, err = m.GetActivity(ctx, "a")
	assert.NoError(t, err)
}

func TestMemory_Uniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveActivity(ctx, testActivity("a", "")))

	assert.ErrorIs(t, m.SaveActivity(ctx, testActivity("b", "")), core.ErrConflict)
	assert.NoError(t, m.SaveActivity(ctx, testActivity("b", "a")))
	assert.NoError(t, m.SaveActivity(ctx, testActivity("a", "")), "resaving the main activity is fine")

	require.NoError(t, m.SaveSchedule(ctx, core.PaymentSchedule{ID: "s-1", ActivityID: "a"}))
	assert.ErrorIs(t, m.SaveSchedule(ctx, core.PaymentSchedule{ID: "s-2", ActivityID: "a"}), core.ErrConflict)

	require.NoError(t, m.SaveSectionInfo(ctx, core.SectionInfo{ID: "si-1", DetailsID: "d", SectionID: "s"}))
	assert.ErrorIs(t, m.SaveSectionInfo(ctx, core.SectionInfo{DetailsID: "d", SectionID: "s"}), core.ErrConflict)
}

func TestMemory_DeleteScheduleCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSchedule(ctx, core.PaymentSchedule{ID: "s-1", ActivityID: "a"}))
	require.NoError(t, m.SavePayments(ctx, []core.Payment{
		{ID: "p-2", ScheduleID: "s-1", Date: core.NewDate(2026, time.February, 1)},
		{ID: "p-1", ScheduleID: "s-1", Date: core.NewDate(2026, time.January, 1)},
	}))

	payments, err := m.ListPayments(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, core.PaymentID("p-1"), payments[0].ID)

	require.NoError(t, m.DeleteSchedule(ctx, "s-1"))
	_, err = m.GetPayment(ctx, "p-1")
	assert.True(t, core.IsNotFound(err))

	err = m.SavePayments(ctx, []core.Payment{{ID: "p-3", ScheduleID: "s-1"}})
	assert.ErrorIs(t, err, core.ErrNotFound)
}
