/*
handlers.go - HTTP API handlers for the appropriation engine

PURPOSE:
  Exposes core.Service via REST API. Handles HTTP request/response, JSON
  serialization and request validation, and delegates every rule to core.

ENDPOINTS:
  Cases:
    GET    /api/cases                          List cases with expiry flag
    POST   /api/cases                          Create case
    GET    /api/cases/{id}                     Case with appropriation summaries

  Appropriations:
    POST   /api/appropriations                 Create appropriation
    GET    /api/appropriations/{id}            Status, granted period, totals, activities
    POST   /api/appropriations/{id}/grant      Grant selected activities

  Activities:
    POST   /api/activities                     Create activity
    GET    /api/activities/{id}                Costs, account number, monthly plan, schedule
    PUT    /api/activities/{id}                Update activity
    DELETE /api/activities/{id}                Delete activity with its payments
    POST   /api/activities/{id}/validate-expected
    PUT    /api/activities/{id}/schedule       Create or replace the payment schedule

  Payments:
    GET    /api/schedules/{id}/payments        Payments of a schedule
    POST   /api/schedules/{id}/synchronize     Reconcile payments with the activity
    GET    /api/payments/{id}                  Payment with account strings
    PUT    /api/payments/{id}                  Edit or mark paid

  Other:
    GET    /api/related-persons?cpr=           Person registry lookup with relations
    POST   /api/sections, /section-infos, /activity-details,
           /service-providers, /accounts, /rates
    POST   /api/account-aliases/import         XLSX alias sheet upload

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator tags, see dto.go)
  3. Call core.Service
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with the HTTP status of their category:
  - 400: Validation, invariant and configuration errors, invalid input
  - 403: Caller may not grant the appropriation
  - 404: Record not found
  - 409: Grant refused, uniqueness conflict
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/appropriation-engine/core"
	"github.com/warp/appropriation-engine/factory"
	"github.com/warp/appropriation-engine/registry"
)

// maxUploadBytes caps alias workbook uploads.
const maxUploadBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *core.Service
	Registry   core.PersonRegistry
	Authorizer core.Authorizer

	validate *validator.Validate
}

// NewHandler creates a handler over svc with the mock registry and no
// access restrictions.
func NewHandler(svc *core.Service) *Handler {
	return &Handler{
		Service:    svc,
		Registry:   registry.Mock{},
		Authorizer: core.AllowAll{},
		validate:   newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := core.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("cpr", func(fl validator.FieldLevel) bool {
		return registry.ValidCPR(fl.Field().String())
	})
	return v
}

// =============================================================================
// CASE ENDPOINTS
// =============================================================================

// ListCases returns all cases with their expiry flag.
// GET /api/cases
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cases, err := h.Service.Store.ListCases(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]CaseDTO, 0, len(cases))
	for _, c := range cases {
		expired, err := h.Service.CaseExpired(ctx, c.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		dtos = append(dtos, toCaseDTO(c, expired))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCase creates a case.
// POST /api/cases
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req CaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := &core.Case{SbsysID: req.SbsysID, CPRNumber: req.CPRNumber, Name: req.Name, CaseWorker: req.CaseWorker}
	if err := h.Service.SaveCase(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCaseDTO(*c, false))
}

// GetCase returns a case with its appropriation summaries.
// GET /api/cases/{id}
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.CaseID(chi.URLParam(r, "id"))

	c, err := h.Service.Store.GetCase(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expired, err := h.Service.CaseExpired(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	appropriations, err := h.Service.Store.ListAppropriations(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dto := toCaseDTO(*c, expired)
	for _, ap := range appropriations {
		summary, err := h.Service.AppropriationSummary(ctx, ap.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		dto.Appropriations = append(dto.Appropriations, toAppropriationDTO(summary))
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// APPROPRIATION ENDPOINTS
// =============================================================================

// CreateAppropriation creates an appropriation under a case.
// POST /api/appropriations
func (h *Handler) CreateAppropriation(w http.ResponseWriter, r *http.Request) {
	var req AppropriationRequest
	if !h.decode(w, r, &req) {
		return
	}
	ap := &core.Appropriation{
		CaseID:    core.CaseID(req.CaseID),
		SbsysID:   req.SbsysID,
		SectionID: core.SectionID(req.SectionID),
		Note:      req.Note,
	}
	if err := h.Service.SaveAppropriation(r.Context(), ap); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeAppropriation(w, r, http.StatusCreated, ap.ID)
}

// GetAppropriation returns status, granted period, totals and activities.
// GET /api/appropriations/{id}
func (h *Handler) GetAppropriation(w http.ResponseWriter, r *http.Request) {
	h.writeAppropriation(w, r, http.StatusOK, core.AppropriationID(chi.URLParam(r, "id")))
}

// GrantAppropriation grants the selected activities as the X-User caller.
// POST /api/appropriations/{id}/grant
func (h *Handler) GrantAppropriation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.AppropriationID(chi.URLParam(r, "id"))

	var req GrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	user := r.Header.Get("X-User")
	if !h.Authorizer.CanManage(ctx, user, "appropriation/"+string(id)) {
		writeError(w, http.StatusForbidden, "Not allowed to grant this appropriation", nil)
		return
	}

	ids := make([]core.ActivityID, 0, len(req.ActivityIDs))
	for _, a := range req.ActivityIDs {
		ids = append(ids, core.ActivityID(a))
	}
	approval := core.Approval{LevelID: req.ApprovalLevel, Note: req.ApprovalNote, UserID: user}
	if err := h.Service.Grant(ctx, id, ids, approval); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeAppropriation(w, r, http.StatusOK, id)
}

func (h *Handler) writeAppropriation(w http.ResponseWriter, r *http.Request, status int, id core.AppropriationID) {
	ctx := r.Context()
	summary, err := h.Service.AppropriationSummary(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	activities, err := h.Service.Store.ListActivities(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dto := toAppropriationDTO(summary)
	for _, a := range activities {
		dto.Activities = append(dto.Activities, toActivityDTO(a))
	}
	writeJSON(w, status, dto)
}

// =============================================================================
// ACTIVITY ENDPOINTS
// =============================================================================

// CreateActivity creates a DRAFT or EXPECTED activity.
// POST /api/activities
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := activityFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid activity", err)
		return
	}
	if err := h.Service.SaveActivity(r.Context(), &a); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityDTO(a))
}

// UpdateActivity replaces the editable fields of an activity. An empty
// status keeps the current one.
// PUT /api/activities/{id}
func (h *Handler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.ActivityID(chi.URLParam(r, "id"))

	var req ActivityRequest
	if !h.decode(w, r, &req) {
		return
	}
	existing, err := h.Service.Store.GetActivity(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := activityFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid activity", err)
		return
	}
	a.ID = id
	if a.Status == "" {
		a.Status = existing.Status
	}
	a.AppropriationDate = existing.AppropriationDate
	a.Approval = existing.Approval

	if err := h.Service.SaveActivity(ctx, &a); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(a))
}

// DeleteActivity deletes an activity, its schedule and payments.
// DELETE /api/activities/{id}
func (h *Handler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteActivity(r.Context(), core.ActivityID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetActivity returns an activity with costs, account number, monthly plan
// and schedule.
// GET /api/activities/{id}
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.ActivityID(chi.URLParam(r, "id"))

	a, err := h.Service.Store.GetActivity(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dto := toActivityDTO(*a)

	if dto.AccountNumber, err = h.Service.AccountNumber(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}
	totals, err := h.Service.ActivityTotals(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dto.TotalCost = &totals.TotalCost
	dto.TotalCostThisYear = &totals.TotalCostThisYear
	dto.TotalCostFullYear = &totals.TotalCostFullYear
	dto.TotalGrantedThisYear = &totals.TotalGrantedThisYear

	plan, err := h.Service.MonthlyPlan(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, m := range plan {
		dto.MonthlyPlan = append(dto.MonthlyPlan, MonthlyAmountDTO{Month: m.Month, Amount: m.Amount})
	}

	sched, err := h.Service.Store.GetScheduleByActivity(ctx, id)
	switch {
	case core.IsNotFound(err):
	case err != nil:
		h.fail(w, r, err)
		return
	default:
		sd := toScheduleDTO(*sched)
		next, err := h.Service.NextPayment(ctx, sched.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if next != nil {
			p := toPaymentDTO(*next)
			sd.NextPayment = &p
		}
		dto.Schedule = &sd
	}
	writeJSON(w, http.StatusOK, dto)
}

// ValidateExpected checks an expected adjustment against the activity it modifies.
// POST /api/activities/{id}/validate-expected
func (h *Handler) ValidateExpected(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ValidateExpected(r.Context(), core.ActivityID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// SaveSchedule creates or replaces the activity's payment schedule and
// regenerates or synchronizes its payments.
// PUT /api/activities/{id}/schedule
func (h *Handler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.ActivityID(chi.URLParam(r, "id"))

	var req ScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.Service.Store.GetActivity(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}

	sched := &core.PaymentSchedule{
		ActivityID:    id,
		RecipientType: core.RecipientType(req.RecipientType),
		RecipientID:   req.RecipientID,
		RecipientName: req.RecipientName,
		PaymentMethod: core.PaymentMethod(req.PaymentMethod),
		PaymentType:   core.PaymentType(req.PaymentType),
		CostType:      core.CostType(req.CostType),
		Frequency:     core.Frequency(req.Frequency),
		Amount:        decimalOrZero(req.Amount),
		Units:         decimalOrZero(req.Units),
		DayOfMonth:    req.DayOfMonth,
		RateID:        core.RateID(req.RateID),
		Fictive:       req.Fictive,
	}
	status := http.StatusCreated
	existing, err := h.Service.Store.GetScheduleByActivity(ctx, id)
	switch {
	case core.IsNotFound(err):
	case err != nil:
		h.fail(w, r, err)
		return
	default:
		sched.ID = existing.ID
		sched.PaymentID = existing.PaymentID
		status = http.StatusOK
	}

	if err := h.Service.SaveSchedule(ctx, sched); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toScheduleDTO(*sched))
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// ListPayments returns the payments of a schedule ordered by date.
// GET /api/schedules/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.ScheduleID(chi.URLParam(r, "id"))

	if _, err := h.Service.Store.GetSchedule(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}
	payments, err := h.Service.Store.ListPayments(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// SynchronizeSchedule reconciles a schedule's payments with its activity.
// POST /api/schedules/{id}/synchronize
func (h *Handler) SynchronizeSchedule(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.SynchronizePayments(r.Context(), core.ScheduleID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncDTO{Added: res.Added, Removed: res.Removed})
}

// GetPayment returns a payment with its account strings.
// GET /api/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := core.PaymentID(chi.URLParam(r, "id"))
	p, err := h.Service.Store.GetPayment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writePayment(w, r, *p)
}

// UpdatePayment edits an unpaid payment or marks it paid.
// PUT /api/payments/{id}
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.PaymentID(chi.URLParam(r, "id"))

	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Service.Store.GetPayment(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if req.Paid {
		if req.PaidDate == "" || req.PaidAmount == "" {
			writeError(w, http.StatusBadRequest, "Validation failed",
				errors.New("paid_date and paid_amount are required to mark a payment paid"))
			return
		}
		paidDate, err := core.ParseDate(req.PaidDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_date", err)
			return
		}
		paid, err := h.Service.MarkPaid(ctx, id, paidDate, decimalOrZero(req.PaidAmount), req.Note)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.writePayment(w, r, *paid)
		return
	}

	if p.Paid {
		h.fail(w, r, &core.InvariantError{Record: "payment", Message: "a paid payment cannot be changed"})
		return
	}
	if req.Amount != "" {
		p.Amount = decimalOrZero(req.Amount)
	}
	if req.Date != "" {
		if p.Date, err = core.ParseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
	}
	p.Note = req.Note
	if err := h.Service.SavePayment(ctx, p); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writePayment(w, r, *p)
}

func (h *Handler) writePayment(w http.ResponseWriter, r *http.Request, p core.Payment) {
	accounts, err := h.Service.PaymentAccounts(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dto := toPaymentDTO(p)
	dto.AccountString = accounts.AccountString
	dto.AccountStringNew = accounts.AccountStringNew
	dto.AccountAlias = accounts.AccountAlias
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PERSON REGISTRY
// =============================================================================

// RelatedPersons returns a citizen and their relations from the registry.
// GET /api/related-persons?cpr=
func (h *Handler) RelatedPersons(w http.ResponseWriter, r *http.Request) {
	cpr := r.URL.Query().Get("cpr")
	if !registry.ValidCPR(cpr) {
		writeError(w, http.StatusBadRequest, "cpr must be ten digits", nil)
		return
	}
	p, err := registry.PersonInfo(r.Context(), h.Registry, cpr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// REFERENCE DATA ENDPOINTS
// =============================================================================

// CreateSection creates a legal section.
// POST /api/sections
func (h *Handler) CreateSection(w http.ResponseWriter, r *http.Request) {
	var req SectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	s := core.Section{ID: core.SectionID(core.NewID()), Paragraph: req.Paragraph, Text: req.Text, Kle: req.Kle}
	h.created(w, r, string(s.ID), h.Service.Store.SaveSection(r.Context(), s))
}

// CreateSectionInfo binds activity details to a section with account numbers.
// POST /api/section-infos
func (h *Handler) CreateSectionInfo(w http.ResponseWriter, r *http.Request) {
	var req SectionInfoRequest
	if !h.decode(w, r, &req) {
		return
	}
	si := core.SectionInfo{
		ID:                                     core.NewID(),
		DetailsID:                              core.DetailsID(req.DetailsID),
		SectionID:                              core.SectionID(req.SectionID),
		MainActivityMainAccountNumber:          req.MainAccount,
		SupplementaryActivityMainAccountNumber: req.SupplAccount,
	}
	h.created(w, r, si.ID, h.Service.Store.SaveSectionInfo(r.Context(), si))
}

// CreateActivityDetails creates an activity classification.
// POST /api/activity-details
func (h *Handler) CreateActivityDetails(w http.ResponseWriter, r *http.Request) {
	var req ActivityDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	d := core.ActivityDetails{
		ID:                  core.DetailsID(core.NewID()),
		Name:                req.Name,
		ActivityID:          req.ActivityID,
		MaxTolerancePercent: req.MaxTolerancePercent,
		MaxToleranceAmount:  decimalOrZero(req.MaxToleranceAmount),
	}
	h.created(w, r, string(d.ID), h.Service.Store.SaveActivityDetails(r.Context(), d))
}

// CreateServiceProvider creates a service provider. VAT factor defaults to 100.
// POST /api/service-providers
func (h *Handler) CreateServiceProvider(w http.ResponseWriter, r *http.Request) {
	var req ServiceProviderRequest
	if !h.decode(w, r, &req) {
		return
	}
	sp := core.ServiceProvider{
		ID:        core.ServiceProviderID(core.NewID()),
		CVR:       req.CVR,
		Name:      req.Name,
		VATFactor: decimalOrZero(req.VATFactor),
	}
	h.created(w, r, string(sp.ID), h.Service.Store.SaveServiceProvider(r.Context(), sp))
}

// CreateAccount creates a legacy account mapping.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	a := core.Account{
		ID:                             core.NewID(),
		SectionID:                      core.SectionID(req.SectionID),
		MainActivityDetailsID:          core.DetailsID(req.MainDetailsID),
		SupplementaryActivityDetailsID: core.DetailsID(req.SupplDetailsID),
		MainAccountNumber:              req.MainAccountNumber,
		ActivityNumber:                 req.ActivityNumber,
	}
	h.created(w, r, a.ID, h.Service.Store.SaveAccount(r.Context(), a))
}

// CreateRate creates a municipal rate with its price periods.
// POST /api/rates
func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if !h.decode(w, r, &req) {
		return
	}
	rate := core.Rate{ID: core.RateID(core.NewID()), Name: req.Name}
	for _, p := range req.Periods {
		start, err := core.ParseDate(p.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date", err)
			return
		}
		end, err := core.ParseOptionalDate(p.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date", err)
			return
		}
		rate.Periods = append(rate.Periods, core.RatePeriod{Start: start, End: end, Price: decimalOrZero(p.Price)})
	}
	h.created(w, r, string(rate.ID), h.Service.Store.SaveRate(r.Context(), rate))
}

// ImportAccountAliases reads an XLSX alias sheet from the request body and
// upserts every row in one transaction.
// POST /api/account-aliases/import
func (h *Handler) ImportAccountAliases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imp, err := factory.ReadAccountAliases(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alias workbook", err)
		return
	}
	err = h.Service.Store.WithTx(ctx, func(st core.Store) error {
		for _, alias := range imp.Aliases {
			if err := st.SaveAccountAlias(ctx, alias); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(imp.Duplicates) > 0 {
		LoggerFrom(ctx).Warn("duplicate account aliases in import", "keys", imp.Duplicates)
	}
	writeJSON(w, http.StatusOK, AliasImportDTO{Imported: len(imp.Aliases), Duplicates: imp.Duplicates})
}

func (h *Handler) created(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: id})
}

// =============================================================================
// HELPERS
// =============================================================================

func activityFromRequest(req ActivityRequest) (core.Activity, error) {
	start, err := core.ParseDate(req.StartDate)
	if err != nil {
		return core.Activity{}, err
	}
	end, err := core.ParseOptionalDate(req.EndDate)
	if err != nil {
		return core.Activity{}, err
	}
	return core.Activity{
		AppropriationID:   core.AppropriationID(req.AppropriationID),
		Type:              core.ActivityType(req.Type),
		Status:            core.Status(req.Status),
		StartDate:         start,
		EndDate:           end,
		DetailsID:         core.DetailsID(req.DetailsID),
		ServiceProviderID: core.ServiceProviderID(req.ServiceProviderID),
		Modifies:          core.ActivityID(req.Modifies),
		Note:              req.Note,
	}, nil
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			writeError(w, http.StatusBadRequest, "Validation failed", err)
			return false
		}
		details := make(map[string]string, len(fields))
		for _, fe := range fields {
			details[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: details})
		return false
	}
	return true
}

// statusFor maps an error category to its HTTP status.
func statusFor(err error) int {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrWorkflow), errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case core.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		LoggerFrom(r.Context()).Error("request failed", "error", err)
	}
	writeError(w, status, http.StatusText(status), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
