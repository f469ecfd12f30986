/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in core from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Cases:           CaseRequest, CaseDTO
  Appropriations:  AppropriationRequest, AppropriationDTO, GrantRequest
  Activities:      ActivityRequest, ActivityDTO, MonthlyAmountDTO
  Schedules:       ScheduleRequest, ScheduleDTO, SyncDTO
  Payments:        PaymentRequest, PaymentDTO
  Reference data:  SectionRequest, SectionInfoRequest, ActivityDetailsRequest,
                   ServiceProviderRequest, AccountRequest, RateRequest
  Scenarios:       ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags. Besides the built-in
  tags, handlers.go registers:
    date     YYYY-MM-DD
    decimal  a decimal number
    cpr      ten digits
  Domain rules (recipient/method pairs, grant preconditions) stay in core.

MONEY:
  Amounts are decimal.Decimal and serialize as JSON strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/appropriation-engine/core"
)

// =============================================================================
// CASES AND APPROPRIATIONS
// =============================================================================

type CaseRequest struct {
	SbsysID    string `json:"sbsys_id"`
	CPRNumber  string `json:"cpr_number" validate:"required,cpr"`
	Name       string `json:"name" validate:"required"`
	CaseWorker string `json:"case_worker"`
}

type CaseDTO struct {
	ID         string `json:"id"`
	SbsysID    string `json:"sbsys_id,omitempty"`
	CPRNumber  string `json:"cpr_number"`
	Name       string `json:"name"`
	CaseWorker string `json:"case_worker,omitempty"`
	Expired    bool   `json:"expired"`

	Appropriations []AppropriationDTO `json:"appropriations,omitempty"`
}

type AppropriationRequest struct {
	CaseID    string `json:"case_id" validate:"required"`
	SbsysID   string `json:"sbsys_id"`
	SectionID string `json:"section_id" validate:"required"`
	Note      string `json:"note"`
}

// AppropriationDTO is an appropriation with its derived state.
type AppropriationDTO struct {
	ID          string `json:"id"`
	CaseID      string `json:"case_id"`
	SbsysID     string `json:"sbsys_id,omitempty"`
	SectionID   string `json:"section_id"`
	Note        string `json:"note,omitempty"`
	Status      string `json:"status"`
	GrantedFrom string `json:"granted_from_date,omitempty"`
	GrantedTo   string `json:"granted_to_date,omitempty"`

	TotalGrantedThisYear  decimal.Decimal `json:"total_granted_this_year"`
	TotalExpectedThisYear decimal.Decimal `json:"total_expected_this_year"`
	TotalGrantedFullYear  decimal.Decimal `json:"total_granted_full_year"`
	TotalExpectedFullYear decimal.Decimal `json:"total_expected_full_year"`

	Activities []ActivityDTO `json:"activities,omitempty"`
}

type GrantRequest struct {
	ActivityIDs   []string `json:"activity_ids" validate:"required,min=1,dive,required"`
	ApprovalLevel string   `json:"approval_level" validate:"required"`
	ApprovalNote  string   `json:"approval_note"`
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// ActivityRequest creates or updates an activity. GRANTED is reached
// through the grant endpoint only.
type ActivityRequest struct {
	AppropriationID   string `json:"appropriation_id" validate:"required"`
	Type              string `json:"activity_type" validate:"required,oneof=MAIN_ACTIVITY SUPPL_ACTIVITY"`
	Status            string `json:"status" validate:"omitempty,oneof=DRAFT EXPECTED"`
	StartDate         string `json:"start_date" validate:"required,date"`
	EndDate           string `json:"end_date" validate:"omitempty,date"`
	DetailsID         string `json:"details_id"`
	ServiceProviderID string `json:"service_provider_id"`
	Modifies          string `json:"modifies"`
	Note              string `json:"note"`
}

type ActivityDTO struct {
	ID                string `json:"id"`
	AppropriationID   string `json:"appropriation_id"`
	Type              string `json:"activity_type"`
	Status            string `json:"status"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date,omitempty"`
	DetailsID         string `json:"details_id,omitempty"`
	ServiceProviderID string `json:"service_provider_id,omitempty"`
	Modifies          string `json:"modifies,omitempty"`
	AppropriationDate string `json:"appropriation_date,omitempty"`
	ApprovalLevel     string `json:"approval_level,omitempty"`
	ApprovalUser      string `json:"approval_user,omitempty"`
	Note              string `json:"note,omitempty"`

	// Detail fields, filled by GET /api/activities/{id}
	AccountNumber        string             `json:"account_number,omitempty"`
	TotalCost            *decimal.Decimal   `json:"total_cost,omitempty"`
	TotalCostThisYear    *decimal.Decimal   `json:"total_cost_this_year,omitempty"`
	TotalCostFullYear    *decimal.Decimal   `json:"total_cost_full_year,omitempty"`
	TotalGrantedThisYear *decimal.Decimal   `json:"total_granted_this_year,omitempty"`
	MonthlyPlan          []MonthlyAmountDTO `json:"monthly_payment_plan,omitempty"`
	Schedule             *ScheduleDTO       `json:"payment_plan,omitempty"`
}

type MonthlyAmountDTO struct {
	Month  string          `json:"date_month"`
	Amount decimal.Decimal `json:"amount"`
}

// =============================================================================
// SCHEDULES AND PAYMENTS
// =============================================================================

type ScheduleRequest struct {
	RecipientType string `json:"recipient_type" validate:"required,oneof=PERSON COMPANY INTERNAL"`
	RecipientID   string `json:"recipient_id"`
	RecipientName string `json:"recipient_name"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=CASH SD INVOICE INTERNAL"`
	PaymentType   string `json:"payment_type" validate:"required"`
	CostType      string `json:"payment_cost_type" validate:"omitempty,oneof=FIXED PER_UNIT GLOBAL_RATE"`
	Frequency     string `json:"payment_frequency"`
	Amount        string `json:"payment_amount" validate:"omitempty,decimal"`
	Units         string `json:"payment_units" validate:"omitempty,decimal"`
	DayOfMonth    int    `json:"payment_day_of_month" validate:"omitempty,min=1,max=31"`
	RateID        string `json:"payment_rate"`
	Fictive       bool   `json:"fictive"`
}

type ScheduleDTO struct {
	ID            string          `json:"id"`
	ActivityID    string          `json:"activity_id,omitempty"`
	PaymentID     string          `json:"payment_id"`
	RecipientType string          `json:"recipient_type"`
	RecipientID   string          `json:"recipient_id,omitempty"`
	RecipientName string          `json:"recipient_name,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	PaymentType   string          `json:"payment_type"`
	CostType      string          `json:"payment_cost_type"`
	Frequency     string          `json:"payment_frequency,omitempty"`
	Amount        decimal.Decimal `json:"payment_amount"`
	Units         decimal.Decimal `json:"payment_units"`
	DayOfMonth    int             `json:"payment_day_of_month,omitempty"`
	RateID        string          `json:"payment_rate,omitempty"`
	Fictive       bool            `json:"fictive"`
	NextPayment   *PaymentDTO     `json:"next_payment,omitempty"`
}

type SyncDTO struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// PaymentRequest updates a payment. Marking it paid requires paid_date and
// paid_amount; amount and date can only change while it is unpaid.
type PaymentRequest struct {
	Amount     string `json:"amount" validate:"omitempty,decimal"`
	Date       string `json:"date" validate:"omitempty,date"`
	Paid       bool   `json:"paid"`
	PaidDate   string `json:"paid_date" validate:"omitempty,date"`
	PaidAmount string `json:"paid_amount" validate:"omitempty,decimal"`
	Note       string `json:"note"`
}

type PaymentDTO struct {
	ID            string           `json:"id"`
	ScheduleID    string           `json:"payment_schedule"`
	Date          string           `json:"date"`
	Amount        decimal.Decimal  `json:"amount"`
	RecipientType string           `json:"recipient_type"`
	RecipientID   string           `json:"recipient_id,omitempty"`
	RecipientName string           `json:"recipient_name,omitempty"`
	PaymentMethod string           `json:"payment_method"`
	Fictive       bool             `json:"fictive"`
	Paid          bool             `json:"paid"`
	PaidDate      string           `json:"paid_date,omitempty"`
	PaidAmount    *decimal.Decimal `json:"paid_amount,omitempty"`
	Note          string           `json:"note,omitempty"`

	AccountString    string `json:"account_string,omitempty"`
	AccountStringNew string `json:"account_string_new,omitempty"`
	AccountAlias     string `json:"account_alias,omitempty"`
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

type SectionRequest struct {
	Paragraph string `json:"paragraph" validate:"required"`
	Text      string `json:"text"`
	Kle       string `json:"kle_number"`
}

type SectionInfoRequest struct {
	DetailsID    string `json:"activity_details_id" validate:"required"`
	SectionID    string `json:"section_id" validate:"required"`
	MainAccount  string `json:"main_activity_main_account_number" validate:"required,numeric"`
	SupplAccount string `json:"supplementary_activity_main_account_number" validate:"omitempty,numeric"`
}

type ActivityDetailsRequest struct {
	Name                string `json:"name" validate:"required"`
	ActivityID          string `json:"activity_id" validate:"required,numeric"`
	MaxTolerancePercent int    `json:"max_tolerance_in_percent" validate:"min=0,max=100"`
	MaxToleranceAmount  string `json:"max_tolerance_in_dkk" validate:"omitempty,decimal"`
}

type ServiceProviderRequest struct {
	CVR       string `json:"cvr_number" validate:"required,numeric,len=8"`
	Name      string `json:"name" validate:"required"`
	VATFactor string `json:"vat_factor" validate:"omitempty,decimal"`
}

type AccountRequest struct {
	SectionID         string `json:"section_id" validate:"required"`
	MainDetailsID     string `json:"main_activity_details_id" validate:"required"`
	SupplDetailsID    string `json:"supplementary_activity_details_id"`
	MainAccountNumber string `json:"main_account_number" validate:"required"`
	ActivityNumber    string `json:"activity_number"`
}

type RateRequest struct {
	Name    string              `json:"name" validate:"required"`
	Periods []RatePeriodRequest `json:"rates_per_date" validate:"required,min=1,dive"`
}

type RatePeriodRequest struct {
	StartDate string `json:"start_date" validate:"required,date"`
	EndDate   string `json:"end_date" validate:"omitempty,date"`
	Price     string `json:"rate" validate:"required,decimal"`
}

// CreatedDTO answers reference data creation.
type CreatedDTO struct {
	ID string `json:"id"`
}

type AliasImportDTO struct {
	Imported   int      `json:"imported"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCaseDTO(c core.Case, expired bool) CaseDTO {
	return CaseDTO{
		ID:         string(c.ID),
		SbsysID:    c.SbsysID,
		CPRNumber:  c.CPRNumber,
		Name:       c.Name,
		CaseWorker: c.CaseWorker,
		Expired:    expired,
	}
}

func toAppropriationDTO(s core.AppropriationSummary) AppropriationDTO {
	ap := s.Appropriation
	return AppropriationDTO{
		ID:                    string(ap.ID),
		CaseID:                string(ap.CaseID),
		SbsysID:               ap.SbsysID,
		SectionID:             string(ap.SectionID),
		Note:                  ap.Note,
		Status:                string(s.Status),
		GrantedFrom:           core.FormatOptionalDate(s.GrantedFrom),
		GrantedTo:             core.FormatOptionalDate(s.GrantedTo),
		TotalGrantedThisYear:  s.TotalGrantedThisYear,
		TotalExpectedThisYear: s.TotalExpectedThisYear,
		TotalGrantedFullYear:  s.TotalGrantedFullYear,
		TotalExpectedFullYear: s.TotalExpectedFullYear,
	}
}

func toActivityDTO(a core.Activity) ActivityDTO {
	return ActivityDTO{
		ID:                string(a.ID),
		AppropriationID:   string(a.AppropriationID),
		Type:              string(a.Type),
		Status:            string(a.Status),
		StartDate:         a.StartDate.String(),
		EndDate:           core.FormatOptionalDate(a.EndDate),
		DetailsID:         string(a.DetailsID),
		ServiceProviderID: string(a.ServiceProviderID),
		Modifies:          string(a.Modifies),
		AppropriationDate: core.FormatOptionalDate(a.AppropriationDate),
		ApprovalLevel:     a.Approval.LevelID,
		ApprovalUser:      a.Approval.UserID,
		Note:              a.Note,
	}
}

func toScheduleDTO(s core.PaymentSchedule) ScheduleDTO {
	return ScheduleDTO{
		ID:            string(s.ID),
		ActivityID:    string(s.ActivityID),
		PaymentID:     s.PaymentIdentifier(),
		RecipientType: string(s.RecipientType),
		RecipientID:   s.RecipientID,
		RecipientName: s.RecipientName,
		PaymentMethod: string(s.PaymentMethod),
		PaymentType:   string(s.PaymentType),
		CostType:      string(s.CostType),
		Frequency:     string(s.Frequency),
		Amount:        s.Amount,
		Units:         s.Units,
		DayOfMonth:    s.DayOfMonth,
		RateID:        string(s.RateID),
		Fictive:       s.Fictive,
	}
}

func toPaymentDTO(p core.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:            string(p.ID),
		ScheduleID:    string(p.ScheduleID),
		Date:          p.Date.String(),
		Amount:        p.Amount,
		RecipientType: string(p.RecipientType),
		RecipientID:   p.RecipientID,
		RecipientName: p.RecipientName,
		PaymentMethod: string(p.PaymentMethod),
		Fictive:       p.Fictive,
		Paid:          p.Paid,
		PaidDate:      core.FormatOptionalDate(p.PaidDate),
		Note:          p.Note,
	}
	if p.PaidAmount.Valid {
		amount := p.PaidAmount.Decimal
		dto.PaidAmount = &amount
	}
	return dto
}

func toPaymentDTOs(payments []core.Payment) []PaymentDTO {
	out := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentDTO(p))
	}
	return out
}

// decimalOrZero parses a validated optional decimal.
func decimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}
