package core_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/core"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(year int, month time.Month, d int) core.Date {
	return core.NewDate(year, month, d)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func running(freq core.Frequency, amount string) *core.PaymentSchedule {
	return &core.PaymentSchedule{
		RecipientType: core.RecipientPerson,
		RecipientID:   "0101011234",
		RecipientName: "Jens Jensen",
		PaymentMethod: core.MethodCash,
		PaymentType:   core.RunningPayment,
		CostType:      core.CostFixed,
		Frequency:     freq,
		Amount:        dec(amount),
		DayOfMonth:    1,
	}
}

// =============================================================================
// RECURRENCE TESTS
// =============================================================================

func TestRRule_OccurrenceCounts(t *testing.T) {
	tests := []struct {
		name       string
		schedule   func() *core.PaymentSchedule
		start, end core.Date
		want       int
	}{
		{
			name:     "daily over january",
			schedule: func() *core.PaymentSchedule { return running(core.FrequencyDaily, "100") },
			start:    day(2026, time.January, 1),
			end:      day(2026, time.January, 31),
			want:     31,
		},
		{
			name:     "weekly over january",
			schedule: func() *core.PaymentSchedule { return running(core.FrequencyWeekly, "100") },
			start:    day(2026, time.January, 1),
			end:      day(2026, time.January, 31),
			want:     5,
		},
		{
			name:     "biweekly over january",
			schedule: func() *core.PaymentSchedule { return running(core.FrequencyBiweekly, "100") },
			start:    day(2026, time.January, 1),
			end:      day(2026, time.January, 31),
			want:     3,
		},
		{
			name:     "monthly over a year",
			schedule: func() *core.PaymentSchedule { return running(core.FrequencyMonthly, "100") },
			start:    day(2026, time.January, 1),
			end:      day(2026, time.December, 31),
			want:     12,
		},
		{
			name: "monthly on the 31st skips short months",
			schedule: func() *core.PaymentSchedule {
				s := running(core.FrequencyMonthly, "100")
				s.DayOfMonth = 31
				return s
			},
			start: day(2026, time.January, 1),
			end:   day(2026, time.December, 31),
			want:  7,
		},
		{
			name: "monthly on the 29th skips february outside leap years",
			schedule: func() *core.PaymentSchedule {
				s := running(core.FrequencyMonthly, "100")
				s.DayOfMonth = 29
				return s
			},
			start: day(2026, time.January, 1),
			end:   day(2026, time.March, 31),
			want:  2,
		},
		{
			name: "monthly anchor before start waits for next month",
			schedule: func() *core.PaymentSchedule {
				s := running(core.FrequencyMonthly, "100")
				s.DayOfMonth = 5
				return s
			},
			start: day(2026, time.January, 10),
			end:   day(2026, time.March, 31),
			want:  2,
		},
		{
			name: "one-time yields start only",
			schedule: func() *core.PaymentSchedule {
				s := running("", "100")
				s.PaymentType = core.OneTimePayment
				return s
			},
			start: day(2026, time.January, 1),
			end:   day(2026, time.December, 31),
			want:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.schedule().CountOccurrences(core.Period{Start: tt.start, End: tt.end})
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestRRule_InclusiveUntil(t *testing.T) {
	// GIVEN: A weekly schedule starting on a Thursday
	// WHEN: Expanding until exactly the fifth Thursday
	// THEN: The last occurrence is the until date itself

	s := running(core.FrequencyWeekly, "100")
	seq, err := s.RRule(day(2026, time.January, 1), day(2026, time.January, 29))
	require.NoError(t, err)

	var dates []core.Date
	for d := range seq {
		dates = append(dates, d)
	}
	require.Len(t, dates, 5)
	assert.Equal(t, "2026-01-29", dates[4].String())
}

func TestRRule_UnknownFrequency(t *testing.T) {
	s := running("FORTNIGHTLY", "100")
	_, err := s.RRule(day(2026, time.January, 1), day(2026, time.December, 31))

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "frequency", cfgErr.Field)
}

func TestPaymentHorizon(t *testing.T) {
	today := day(2026, time.October, 16)

	assert.Equal(t, "2027-12-31", core.PaymentHorizon(nil, today).String(),
		"open end materializes through Dec 31 of next year")

	end := day(2030, time.June, 30)
	assert.Equal(t, "2030-06-30", core.PaymentHorizon(&end, today).String())
}

// =============================================================================
// AMOUNT TESTS
// =============================================================================

func TestCalculatePerPaymentAmount(t *testing.T) {
	tests := []struct {
		name        string
		paymentType core.PaymentType
		amount      string
		units       string
		vat         string
		want        string
		wantErr     bool
	}{
		{name: "running", paymentType: core.RunningPayment, amount: "500", vat: "100", want: "500"},
		{name: "one-time", paymentType: core.OneTimePayment, amount: "1200.50", vat: "100", want: "1200.5"},
		{name: "vat factor 80", paymentType: core.RunningPayment, amount: "500", vat: "80", want: "400"},
		{name: "per hour", paymentType: core.PerHourPayment, amount: "150", units: "5", vat: "100", want: "750"},
		{name: "per day", paymentType: core.PerDayPayment, amount: "200", units: "2.5", vat: "100", want: "500"},
		{name: "per km", paymentType: core.PerKmPayment, amount: "3.5", units: "10", vat: "50", want: "17.5"},
		{name: "negative amount", paymentType: core.RunningPayment, amount: "-250", vat: "100", want: "-250"},
		{name: "individual", paymentType: core.IndividualPayment, amount: "100", vat: "100", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := running(core.FrequencyMonthly, tt.amount)
			s.PaymentType = tt.paymentType
			if tt.units != "" {
				s.Units = dec(tt.units)
			}

			got, err := s.CalculatePerPaymentAmount(dec(tt.vat))
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestPricing_GlobalRate(t *testing.T) {
	// GIVEN: A per-day schedule priced by a rate that changes on July 1
	// WHEN: Pricing dates on both sides of the change
	// THEN: Each date uses the rate in force, times units

	juneEnd := day(2026, time.June, 30)
	rate := &core.Rate{
		ID:   "rate-1",
		Name: "Takst",
		Periods: []core.RatePeriod{
			{Start: day(2026, time.January, 1), End: &juneEnd, Price: dec("100")},
			{Start: day(2026, time.July, 1), Price: dec("120")},
		},
	}
	s := running(core.FrequencyMonthly, "0")
	s.PaymentType = core.PerDayPayment
	s.CostType = core.CostGlobalRate
	s.RateID = rate.ID
	s.Units = dec("2")

	price, err := s.Pricing(core.DefaultVATFactor, rate)
	require.NoError(t, err)

	before, err := price(day(2026, time.March, 1))
	require.NoError(t, err)
	assert.True(t, dec("200").Equal(before))

	after, err := price(day(2026, time.September, 1))
	require.NoError(t, err)
	assert.True(t, dec("240").Equal(after))

	_, err = price(day(2025, time.December, 1))
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration, "no rate period covers the date")
}

func TestFullYearCost(t *testing.T) {
	s := running(core.FrequencyMonthly, "1000")
	price, err := s.Pricing(core.DefaultVATFactor, nil)
	require.NoError(t, err)

	got, err := s.FullYearCost(2026, price, nil)
	require.NoError(t, err)
	assert.True(t, dec("12000").Equal(got), "got %s", got)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestRecipientMethodAllowList(t *testing.T) {
	tests := []struct {
		recipient core.RecipientType
		method    core.PaymentMethod
		allowed   bool
	}{
		{core.RecipientPerson, core.MethodCash, true},
		{core.RecipientPerson, core.MethodSD, true},
		{core.RecipientPerson, core.MethodInvoice, false},
		{core.RecipientPerson, core.MethodInternal, false},
		{core.RecipientCompany, core.MethodInvoice, true},
		{core.RecipientCompany, core.MethodCash, true},
		{core.RecipientCompany, core.MethodSD, false},
		{core.RecipientInternal, core.MethodInternal, true},
		{core.RecipientInternal, core.MethodCash, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.recipient)+"/"+string(tt.method), func(t *testing.T) {
			s := running(core.FrequencyMonthly, "100")
			s.RecipientType = tt.recipient
			s.PaymentMethod = tt.method

			err := s.Validate()
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, core.ErrInvariantViolation)
			}
		})
	}
}

func TestScheduleValidate(t *testing.T) {
	t.Run("running payment needs a frequency", func(t *testing.T) {
		s := running("", "100")
		assert.ErrorIs(t, s.Validate(), core.ErrInvalidConfiguration)
	})

	t.Run("one-time payment needs no frequency", func(t *testing.T) {
		s := running("", "100")
		s.PaymentType = core.OneTimePayment
		assert.NoError(t, s.Validate())
	})

	t.Run("global rate needs a rate", func(t *testing.T) {
		s := running(core.FrequencyMonthly, "100")
		s.CostType = core.CostGlobalRate
		assert.ErrorIs(t, s.Validate(), core.ErrInvariantViolation)
	})

	t.Run("normalize fills defaults", func(t *testing.T) {
		s := running(core.FrequencyMonthly, "100")
		s.CostType = ""
		s.DayOfMonth = 0
		s.Normalize()
		assert.Equal(t, core.CostFixed, s.CostType)
		assert.Equal(t, 1, s.DayOfMonth)
	})

	t.Run("payment identifier defaults to schedule id", func(t *testing.T) {
		s := running(core.FrequencyMonthly, "100")
		s.ID = "sched-1"
		assert.Equal(t, "sched-1", s.PaymentIdentifier())
		s.PaymentID = "legacy-7"
		assert.Equal(t, "legacy-7", s.PaymentIdentifier())
	})
}
