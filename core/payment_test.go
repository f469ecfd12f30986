package core_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/core"
)

func TestPayment_PaidFieldsAllOrNone(t *testing.T) {
	paidDate := day(2026, time.March, 1)

	tests := []struct {
		name    string
		payment core.Payment
		wantErr bool
	}{
		{name: "unpaid", payment: core.Payment{}},
		{
			name: "fully paid",
			payment: core.Payment{
				Paid:       true,
				PaidDate:   &paidDate,
				PaidAmount: decimal.NewNullDecimal(dec("500")),
			},
		},
		{name: "paid flag only", payment: core.Payment{Paid: true}, wantErr: true},
		{name: "paid date only", payment: core.Payment{PaidDate: &paidDate}, wantErr: true},
		{
			name:    "amount without flag",
			payment: core.Payment{PaidDate: &paidDate, PaidAmount: decimal.NewNullDecimal(dec("1"))},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payment.ValidatePaidFields()
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvariantViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPayment_String(t *testing.T) {
	p := core.Payment{
		RecipientType: core.RecipientPerson,
		RecipientName: "Jens Jensen",
		Date:          day(2026, time.February, 1),
		Amount:        dec("500"),
	}
	assert.Equal(t, "PERSON - Jens Jensen - 2026-02-01 - 500.0", p.String())
}

// =============================================================================
// ACCOUNT STRING TESTS
// =============================================================================

func TestAccountStrings(t *testing.T) {
	config := core.AccountingConfig{Department: "12345", Kind: "67890"}
	mainDetails := &core.ActivityDetails{ID: "d-main", ActivityID: "015035"}
	account := &core.Account{MainAccountNumber: "645511002"}

	t.Run("computed from mappings", func(t *testing.T) {
		ac := core.AccountContext{
			Config:        config,
			Account:       account,
			MainDetails:   mainDetails,
			AccountNumber: "645511002-015035",
		}
		p := core.Payment{}
		assert.Equal(t, "12345-645511002-015035-67890", p.AccountString(ac))
		assert.Equal(t, "12345-645511002-015035-67890", p.AccountStringNew(ac))
	})

	t.Run("defaults to XXX without configuration", func(t *testing.T) {
		ac := core.AccountContext{Account: account, MainDetails: mainDetails}
		p := core.Payment{}
		assert.Equal(t, "XXX-645511002-015035-XXX", p.AccountString(ac))
	})

	t.Run("empty without matching mapping", func(t *testing.T) {
		p := core.Payment{}
		assert.Equal(t, "", p.AccountString(core.AccountContext{Config: config}))
		assert.Equal(t, "", p.AccountStringNew(core.AccountContext{Config: config}))
	})

	t.Run("saved strings win", func(t *testing.T) {
		ac := core.AccountContext{Config: config, Account: account, MainDetails: mainDetails, AccountNumber: "1-2"}
		p := core.Payment{SavedAccountString: "saved-legacy"}
		assert.Equal(t, "saved-legacy", p.AccountString(ac))
		assert.Equal(t, "saved-legacy", p.AccountStringNew(ac), "new string falls back to the saved legacy string")

		p.SavedAccountStringNew = "saved-new"
		assert.Equal(t, "saved-new", p.AccountStringNew(ac))
	})

	t.Run("explicit activity number beats details", func(t *testing.T) {
		acc := &core.Account{MainAccountNumber: "645511002", ActivityNumber: "999999"}
		suppl := &core.ActivityDetails{ID: "d-suppl", ActivityID: "111111"}
		assert.Equal(t, "645511002-999999", acc.Number(mainDetails, suppl))
		assert.Equal(t, "645511002-111111", account.Number(mainDetails, suppl))
	})
}

func TestSectionInfo_AccountNumber(t *testing.T) {
	si := core.SectionInfo{MainActivityMainAccountNumber: "528211011", SupplementaryActivityMainAccountNumber: "528211012"}
	assert.Equal(t, "528211011-015035", si.AccountNumber(core.MainActivity, "015035"))
	assert.Equal(t, "528211012-015035", si.AccountNumber(core.SupplementaryActivity, "015035"))

	si.SupplementaryActivityMainAccountNumber = ""
	assert.Equal(t, "528211011-015035", si.AccountNumber(core.SupplementaryActivity, "015035"),
		"supplementary falls back to the main account number")
}

// =============================================================================
// AGGREGATION TESTS
// =============================================================================

func TestMonthlyPaymentPlan(t *testing.T) {
	payments := []core.Payment{
		{Date: day(2026, time.March, 15), Amount: dec("100")},
		{Date: day(2026, time.January, 1), Amount: dec("200")},
		{Date: day(2026, time.March, 1), Amount: dec("50")},
		{Date: day(2025, time.December, 1), Amount: dec("10")},
	}

	var months []string
	var sums []string
	for month, amount := range core.MonthlyPaymentPlan(payments) {
		months = append(months, month)
		sums = append(sums, amount.String())
	}
	assert.Equal(t, []string{"2025-12", "2026-01", "2026-03"}, months)
	assert.Equal(t, []string{"10", "200", "150"}, sums)
}

func TestSumAndInYear(t *testing.T) {
	payments := []core.Payment{
		{Date: day(2025, time.December, 1), Amount: dec("10")},
		{Date: day(2026, time.January, 1), Amount: dec("200")},
		{Date: day(2026, time.June, 1), Amount: dec("-50")},
	}
	require.Len(t, core.InYear(payments, 2026), 2)
	assert.True(t, dec("150").Equal(core.SumAmounts(core.InYear(payments, 2026))))
	assert.True(t, dec("160").Equal(core.SumAmounts(payments)))
}
