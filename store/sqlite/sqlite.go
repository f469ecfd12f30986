/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements core.TxStore using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  sections, activity_details, section_infos,   reference data
  service_providers, accounts, account_aliases,
  rates
  cases, appropriations                        case structure
  activities                                   versioned grant units
  payment_schedules, payments                  payment plans and rows

CONSTRAINTS:
  - idx_activities_main: one MAIN activity without modifies per appropriation
  - payment_schedules.activity_id UNIQUE: one schedule per activity
  - payments cascade with their schedule
  Constraint violations are returned wrapping core.ErrConflict.

VALUE ENCODING:
  Dates are TEXT "YYYY-MM-DD", decimals TEXT (exact), open dates NULL,
  empty references NULL.

CONCURRENCY:
  The pool holds a single connection, so a ":memory:" database is shared
  and writes never contend. WithTx serializes transactions with a mutex.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging) for better
  crash recovery.

USAGE:
  store, err := sqlite.New("./data/appropriation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := core.NewService(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/appropriation-engine/core"
)

// Store implements core.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements core.Store on top of a querier.
type queries struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Reference data
	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		paragraph TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		kle TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS activity_details (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		activity_id TEXT NOT NULL,
		max_tolerance_percent INTEGER NOT NULL DEFAULT 0,
		max_tolerance_amount TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS section_infos (
		id TEXT PRIMARY KEY,
		details_id TEXT NOT NULL REFERENCES activity_details(id),
		section_id TEXT NOT NULL REFERENCES sections(id),
		main_account_number TEXT NOT NULL DEFAULT '',
		suppl_main_account_number TEXT NOT NULL DEFAULT '',
		UNIQUE(details_id, section_id)
	);

	CREATE TABLE IF NOT EXISTS service_providers (
		id TEXT PRIMARY KEY,
		cvr TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		vat_factor TEXT NOT NULL DEFAULT '100'
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		section_id TEXT NOT NULL,
		main_details_id TEXT NOT NULL,
		suppl_details_id TEXT NOT NULL DEFAULT '',
		main_account_number TEXT NOT NULL,
		activity_number TEXT NOT NULL DEFAULT '',
		UNIQUE(section_id, main_details_id, suppl_details_id)
	);

	CREATE TABLE IF NOT EXISTS account_aliases (
		main_account_number TEXT NOT NULL,
		activity_number TEXT NOT NULL,
		alias TEXT NOT NULL,
		PRIMARY KEY (main_account_number, activity_number)
	);

	CREATE TABLE IF NOT EXISTS rates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		periods_json TEXT NOT NULL
	);

	-- Cases
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		sbsys_id TEXT NOT NULL DEFAULT '',
		cpr_number TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		case_worker TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS appropriations (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL REFERENCES cases(id),
		sbsys_id TEXT NOT NULL DEFAULT '',
		section_id TEXT NOT NULL REFERENCES sections(id),
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_appropriations_case
		ON appropriations(case_id);

	-- Activities
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		appropriation_id TEXT NOT NULL REFERENCES appropriations(id),
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		details_id TEXT NOT NULL DEFAULT '',
		service_provider_id TEXT,
		modifies TEXT,
		appropriation_date TEXT,
		approval_level TEXT NOT NULL DEFAULT '',
		approval_note TEXT NOT NULL DEFAULT '',
		approval_user TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_activities_appropriation
		ON activities(appropriation_id, start_date);

	-- One main activity that modifies nothing per appropriation
	CREATE UNIQUE INDEX IF NOT EXISTS idx_activities_main
		ON activities(appropriation_id)
		WHERE type = 'MAIN_ACTIVITY' AND modifies IS NULL;

	CREATE INDEX IF NOT EXISTS idx_activities_open_ended
		ON activities(id) WHERE end_date IS NULL;

	-- Payment schedules and payments
	CREATE TABLE IF NOT EXISTS payment_schedules (
		id TEXT PRIMARY KEY,
		activity_id TEXT UNIQUE,
		payment_id TEXT NOT NULL DEFAULT '',
		recipient_type TEXT NOT NULL,
		recipient_id TEXT NOT NULL DEFAULT '',
		recipient_name TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		cost_type TEXT NOT NULL,
		frequency TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		units TEXT NOT NULL DEFAULT '0',
		day_of_month INTEGER NOT NULL DEFAULT 1,
		rate_id TEXT NOT NULL DEFAULT '',
		fictive BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL REFERENCES payment_schedules(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		recipient_type TEXT NOT NULL,
		recipient_id TEXT NOT NULL DEFAULT '',
		recipient_name TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL,
		fictive BOOLEAN NOT NULL DEFAULT FALSE,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_date TEXT,
		paid_amount TEXT,
		note TEXT NOT NULL DEFAULT '',
		saved_account_string TEXT NOT NULL DEFAULT '',
		saved_account_string_new TEXT NOT NULL DEFAULT ''
	);

	-- Hot path: payments of a schedule by date
	CREATE INDEX IF NOT EXISTS idx_payments_schedule_date
		ON payments(schedule_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (core.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store core.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (q *queries) SaveSection(ctx context.Context, sec core.Section) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO sections (id, paragraph, text, kle) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			paragraph = excluded.paragraph, text = excluded.text, kle = excluded.kle
	`, sec.ID, sec.Paragraph, sec.Text, sec.Kle)
	return wrapWrite("section", err)
}

const sectionColumns = `id, paragraph, text, kle`

func scanSection(row scanner) (core.Section, error) {
	var sec core.Section
	err := row.Scan(&sec.ID, &sec.Paragraph, &sec.Text, &sec.Kle)
	return sec, err
}

func (q *queries) GetSection(ctx context.Context, id core.SectionID) (*core.Section, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id = ?`, id)
	return one(row, scanSection, "section", id)
}

func (q *queries) ListSections(ctx context.Context) ([]core.Section, error) {
	return list(ctx, q.q, scanSection, `SELECT `+sectionColumns+` FROM sections ORDER BY paragraph`)
}

func (q *queries) SaveActivityDetails(ctx context.Context, d core.ActivityDetails) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO activity_details (id, name, activity_id, max_tolerance_percent, max_tolerance_amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, activity_id = excluded.activity_id,
			max_tolerance_percent = excluded.max_tolerance_percent,
			max_tolerance_amount = excluded.max_tolerance_amount
	`, d.ID, d.Name, d.ActivityID, d.MaxTolerancePercent, d.MaxToleranceAmount.String())
	return wrapWrite("activity details", err)
}

const detailsColumns = `id, name, activity_id, max_tolerance_percent, max_tolerance_amount`

func scanDetails(row scanner) (core.ActivityDetails, error) {
	var d core.ActivityDetails
	err := row.Scan(&d.ID, &d.Name, &d.ActivityID, &d.MaxTolerancePercent, &d.MaxToleranceAmount)
	return d, err
}

func (q *queries) GetActivityDetails(ctx context.Context, id core.DetailsID) (*core.ActivityDetails, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+detailsColumns+` FROM activity_details WHERE id = ?`, id)
	return one(row, scanDetails, "activity details", id)
}

func (q *queries) ListActivityDetails(ctx context.Context) ([]core.ActivityDetails, error) {
	return list(ctx, q.q, scanDetails, `SELECT `+detailsColumns+` FROM activity_details ORDER BY name`)
}

func (q *queries) SaveSectionInfo(ctx context.Context, si core.SectionInfo) error {
	if si.ID == "" {
		si.ID = core.NewID()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO section_infos (id, details_id, section_id, main_account_number, suppl_main_account_number)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			details_id = excluded.details_id, section_id = excluded.section_id,
			main_account_number = excluded.main_account_number,
			suppl_main_account_number = excluded.suppl_main_account_number
	`, si.ID, si.DetailsID, si.SectionID, si.MainActivityMainAccountNumber, si.SupplementaryActivityMainAccountNumber)
	return wrapWrite("section info", err)
}

func (q *queries) FindSectionInfo(ctx context.Context, details core.DetailsID, section core.SectionID) (*core.SectionInfo, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, details_id, section_id, main_account_number, suppl_main_account_number
		FROM section_infos WHERE details_id = ? AND section_id = ?
	`, details, section)
	return one(row, func(row scanner) (core.SectionInfo, error) {
		var si core.SectionInfo
		err := row.Scan(&si.ID, &si.DetailsID, &si.SectionID,
			&si.MainActivityMainAccountNumber, &si.SupplementaryActivityMainAccountNumber)
		return si, err
	}, "section info", string(details)+"/"+string(section))
}

func (q *queries) SaveServiceProvider(ctx context.Context, sp core.ServiceProvider) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO service_providers (id, cvr, name, vat_factor) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cvr = excluded.cvr, name = excluded.name, vat_factor = excluded.vat_factor
	`, sp.ID, sp.CVR, sp.Name, decimalOr(sp.VATFactor, core.DefaultVATFactor))
	return wrapWrite("service provider", err)
}

const providerColumns = `id, cvr, name, vat_factor`

func scanProvider(row scanner) (core.ServiceProvider, error) {
	var sp core.ServiceProvider
	err := row.Scan(&sp.ID, &sp.CVR, &sp.Name, &sp.VATFactor)
	return sp, err
}

func (q *queries) GetServiceProvider(ctx context.Context, id core.ServiceProviderID) (*core.ServiceProvider, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM service_providers WHERE id = ?`, id)
	return one(row, scanProvider, "service provider", id)
}

func (q *queries) ListServiceProviders(ctx context.Context) ([]core.ServiceProvider, error) {
	return list(ctx, q.q, scanProvider, `SELECT `+providerColumns+` FROM service_providers ORDER BY name`)
}

func (q *queries) SaveAccount(ctx context.Context, a core.Account) error {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO accounts (id, section_id, main_details_id, suppl_details_id, main_account_number, activity_number)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			section_id = excluded.section_id, main_details_id = excluded.main_details_id,
			suppl_details_id = excluded.suppl_details_id,
			main_account_number = excluded.main_account_number,
			activity_number = excluded.activity_number
	`, a.ID, a.SectionID, a.MainActivityDetailsID, a.SupplementaryActivityDetailsID, a.MainAccountNumber, a.ActivityNumber)
	return wrapWrite("account", err)
}

func (q *queries) FindAccount(ctx context.Context, section core.SectionID, main, suppl core.DetailsID) (*core.Account, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, section_id, main_details_id, suppl_details_id, main_account_number, activity_number
		FROM accounts WHERE section_id = ? AND main_details_id = ? AND suppl_details_id = ?
	`, section, main, suppl)
	return one(row, func(row scanner) (core.Account, error) {
		var a core.Account
		err := row.Scan(&a.ID, &a.SectionID, &a.MainActivityDetailsID, &a.SupplementaryActivityDetailsID,
			&a.MainAccountNumber, &a.ActivityNumber)
		return a, err
	}, "account", fmt.Sprintf("%s/%s/%s", section, main, suppl))
}

func (q *queries) SaveAccountAlias(ctx context.Context, a core.AccountAlias) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO account_aliases (main_account_number, activity_number, alias) VALUES (?, ?, ?)
		ON CONFLICT(main_account_number, activity_number) DO UPDATE SET alias = excluded.alias
	`, a.MainAccountNumber, a.ActivityNumber, a.Alias)
	return wrapWrite("account alias", err)
}

func (q *queries) FindAccountAlias(ctx context.Context, mainAccountNumber, activityNumber string) (*core.AccountAlias, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT main_account_number, activity_number, alias
		FROM account_aliases WHERE main_account_number = ? AND activity_number = ?
	`, mainAccountNumber, activityNumber)
	return one(row, func(row scanner) (core.AccountAlias, error) {
		var a core.AccountAlias
		err := row.Scan(&a.MainAccountNumber, &a.ActivityNumber, &a.Alias)
		return a, err
	}, "account alias", mainAccountNumber+"-"+activityNumber)
}

// ratePeriodJSON is the stored shape of a rate period.
type ratePeriodJSON struct {
	Start string          `json:"start"`
	End   string          `json:"end,omitempty"`
	Price decimal.Decimal `json:"price"`
}

func (q *queries) SaveRate(ctx context.Context, r core.Rate) error {
	periods := make([]ratePeriodJSON, 0, len(r.Periods))
	for _, p := range r.Periods {
		periods = append(periods, ratePeriodJSON{
			Start: p.Start.String(),
			End:   core.FormatOptionalDate(p.End),
			Price: p.Price,
		})
	}
	periodsJSON, err := json.Marshal(periods)
	if err != nil {
		return fmt.Errorf("failed to marshal rate periods: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO rates (id, name, periods_json) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, periods_json = excluded.periods_json
	`, r.ID, r.Name, string(periodsJSON))
	return wrapWrite("rate", err)
}

func scanRate(row scanner) (core.Rate, error) {
	var (
		r           core.Rate
		periodsJSON string
		periods     []ratePeriodJSON
	)
	if err := row.Scan(&r.ID, &r.Name, &periodsJSON); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(periodsJSON), &periods); err != nil {
		return r, fmt.Errorf("rate %s periods: %w", r.ID, err)
	}
	for _, p := range periods {
		start, err := core.ParseDate(p.Start)
		if err != nil {
			return r, err
		}
		end, err := core.ParseOptionalDate(p.End)
		if err != nil {
			return r, err
		}
		r.Periods = append(r.Periods, core.RatePeriod{Start: start, End: end, Price: p.Price})
	}
	return r, nil
}

func (q *queries) GetRate(ctx context.Context, id core.RateID) (*core.Rate, error) {
	row := q.q.QueryRowContext(ctx, `SELECT id, name, periods_json FROM rates WHERE id = ?`, id)
	return one(row, scanRate, "rate", id)
}

func (q *queries) ListRates(ctx context.Context) ([]core.Rate, error) {
	return list(ctx, q.q, scanRate, `SELECT id, name, periods_json FROM rates ORDER BY name`)
}

// =============================================================================
// CASES AND APPROPRIATIONS
// =============================================================================

func (q *queries) SaveCase(ctx context.Context, c core.Case) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO cases (id, sbsys_id, cpr_number, name, case_worker) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sbsys_id = excluded.sbsys_id, cpr_number = excluded.cpr_number,
			name = excluded.name, case_worker = excluded.case_worker
	`, c.ID, c.SbsysID, c.CPRNumber, c.Name, c.CaseWorker)
	return wrapWrite("case", err)
}

const caseColumns = `id, sbsys_id, cpr_number, name, case_worker`

func scanCase(row scanner) (core.Case, error) {
	var c core.Case
	err := row.Scan(&c.ID, &c.SbsysID, &c.CPRNumber, &c.Name, &c.CaseWorker)
	return c, err
}

func (q *queries) GetCase(ctx context.Context, id core.CaseID) (*core.Case, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	return one(row, scanCase, "case", id)
}

func (q *queries) ListCases(ctx context.Context) ([]core.Case, error) {
	return list(ctx, q.q, scanCase, `SELECT `+caseColumns+` FROM cases ORDER BY sbsys_id`)
}

func (q *queries) SaveAppropriation(ctx context.Context, a core.Appropriation) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO appropriations (id, case_id, sbsys_id, section_id, note) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			case_id = excluded.case_id, sbsys_id = excluded.sbsys_id,
			section_id = excluded.section_id, note = excluded.note
	`, a.ID, a.CaseID, a.SbsysID, a.SectionID, a.Note)
	return wrapWrite("appropriation", err)
}

const appropriationColumns = `id, case_id, sbsys_id, section_id, note`

func scanAppropriation(row scanner) (core.Appropriation, error) {
	var a core.Appropriation
	err := row.Scan(&a.ID, &a.CaseID, &a.SbsysID, &a.SectionID, &a.Note)
	return a, err
}

func (q *queries) GetAppropriation(ctx context.Context, id core.AppropriationID) (*core.Appropriation, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+appropriationColumns+` FROM appropriations WHERE id = ?`, id)
	return one(row, scanAppropriation, "appropriation", id)
}

func (q *queries) ListAppropriations(ctx context.Context, caseID core.CaseID) ([]core.Appropriation, error) {
	return list(ctx, q.q, scanAppropriation,
		`SELECT `+appropriationColumns+` FROM appropriations WHERE case_id = ? ORDER BY sbsys_id`, caseID)
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func (q *queries) SaveActivity(ctx context.Context, a core.Activity) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO activities
		(id, appropriation_id, type, status, start_date, end_date, details_id, service_provider_id,
		 modifies, appropriation_date, approval_level, approval_note, approval_user, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			appropriation_id = excluded.appropriation_id, type = excluded.type, status = excluded.status,
			start_date = excluded.start_date, end_date = excluded.end_date, details_id = excluded.details_id,
			service_provider_id = excluded.service_provider_id, modifies = excluded.modifies,
			appropriation_date = excluded.appropriation_date, approval_level = excluded.approval_level,
			approval_note = excluded.approval_note, approval_user = excluded.approval_user, note = excluded.note
	`,
		a.ID, a.AppropriationID, a.Type, a.Status,
		a.StartDate.String(), optionalDate(a.EndDate), a.DetailsID,
		nullString(string(a.ServiceProviderID)), nullString(string(a.Modifies)),
		optionalDate(a.AppropriationDate),
		a.Approval.LevelID, a.Approval.Note, a.Approval.UserID, a.Note,
	)
	return wrapWrite("activity", err)
}

const activityColumns = `id, appropriation_id, type, status, start_date, end_date, details_id,
	service_provider_id, modifies, appropriation_date, approval_level, approval_note, approval_user, note`

func scanActivity(row scanner) (core.Activity, error) {
	var (
		a                 core.Activity
		start             string
		end               sql.NullString
		provider          sql.NullString
		modifies          sql.NullString
		appropriationDate sql.NullString
	)
	err := row.Scan(&a.ID, &a.AppropriationID, &a.Type, &a.Status, &start, &end, &a.DetailsID,
		&provider, &modifies, &appropriationDate,
		&a.Approval.LevelID, &a.Approval.Note, &a.Approval.UserID, &a.Note)
	if err != nil {
		return a, err
	}
	if a.StartDate, err = core.ParseDate(start); err != nil {
		return a, err
	}
	if a.EndDate, err = core.ParseOptionalDate(end.String); err != nil {
		return a, err
	}
	if a.AppropriationDate, err = core.ParseOptionalDate(appropriationDate.String); err != nil {
		return a, err
	}
	a.ServiceProviderID = core.ServiceProviderID(provider.String)
	a.Modifies = core.ActivityID(modifies.String)
	return a, nil
}

func (q *queries) GetActivity(ctx context.Context, id core.ActivityID) (*core.Activity, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	return one(row, scanActivity, "activity", id)
}

func (q *queries) ListActivities(ctx context.Context, appropriationID core.AppropriationID) ([]core.Activity, error) {
	return list(ctx, q.q, scanActivity, `
		SELECT `+activityColumns+` FROM activities
		WHERE appropriation_id = ? ORDER BY start_date, id
	`, appropriationID)
}

func (q *queries) ListOpenEnded(ctx context.Context) ([]core.Activity, error) {
	return list(ctx, q.q, scanActivity, `
		SELECT `+activityColumns+` FROM activities
		WHERE end_date IS NULL ORDER BY start_date, id
	`)
}

func (q *queries) DeleteActivity(ctx context.Context, id core.ActivityID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id)
	return deleted(res, err, "activity", id)
}

// =============================================================================
// PAYMENT SCHEDULES AND PAYMENTS
// =============================================================================

func (q *queries) SaveSchedule(ctx context.Context, s core.PaymentSchedule) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO payment_schedules
		(id, activity_id, payment_id, recipient_type, recipient_id, recipient_name, payment_method,
		 payment_type, cost_type, frequency, amount, units, day_of_month, rate_id, fictive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			activity_id = excluded.activity_id, payment_id = excluded.payment_id,
			recipient_type = excluded.recipient_type, recipient_id = excluded.recipient_id,
			recipient_name = excluded.recipient_name, payment_method = excluded.payment_method,
			payment_type = excluded.payment_type, cost_type = excluded.cost_type,
			frequency = excluded.frequency, amount = excluded.amount, units = excluded.units,
			day_of_month = excluded.day_of_month, rate_id = excluded.rate_id, fictive = excluded.fictive
	`,
		s.ID, nullString(string(s.ActivityID)), s.PaymentID,
		s.RecipientType, s.RecipientID, s.RecipientName, s.PaymentMethod,
		s.PaymentType, s.CostType, s.Frequency, s.Amount.String(), s.Units.String(),
		s.DayOfMonth, s.RateID, s.Fictive,
	)
	return wrapWrite("payment schedule", err)
}

const scheduleColumns = `id, activity_id, payment_id, recipient_type, recipient_id, recipient_name,
	payment_method, payment_type, cost_type, frequency, amount, units, day_of_month, rate_id, fictive`

func scanSchedule(row scanner) (core.PaymentSchedule, error) {
	var (
		s          core.PaymentSchedule
		activityID sql.NullString
	)
	err := row.Scan(&s.ID, &activityID, &s.PaymentID, &s.RecipientType, &s.RecipientID, &s.RecipientName,
		&s.PaymentMethod, &s.PaymentType, &s.CostType, &s.Frequency, &s.Amount, &s.Units,
		&s.DayOfMonth, &s.RateID, &s.Fictive)
	s.ActivityID = core.ActivityID(activityID.String)
	return s, err
}

func (q *queries) GetSchedule(ctx context.Context, id core.ScheduleID) (*core.PaymentSchedule, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE id = ?`, id)
	return one(row, scanSchedule, "payment schedule", id)
}

func (q *queries) GetScheduleByActivity(ctx context.Context, activityID core.ActivityID) (*core.PaymentSchedule, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE activity_id = ?`, activityID)
	return one(row, scanSchedule, "payment schedule of activity", activityID)
}

func (q *queries) DeleteSchedule(ctx context.Context, id core.ScheduleID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM payment_schedules WHERE id = ?`, id)
	return deleted(res, err, "payment schedule", id)
}

func (q *queries) SavePayments(ctx context.Context, payments []core.Payment) error {
	for _, p := range payments {
		paidAmount := sql.NullString{}
		if p.PaidAmount.Valid {
			paidAmount = sql.NullString{String: p.PaidAmount.Decimal.String(), Valid: true}
		}
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO payments
			(id, schedule_id, date, amount, recipient_type, recipient_id, recipient_name, payment_method,
			 fictive, paid, paid_date, paid_amount, note, saved_account_string, saved_account_string_new)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				schedule_id = excluded.schedule_id, date = excluded.date, amount = excluded.amount,
				recipient_type = excluded.recipient_type, recipient_id = excluded.recipient_id,
				recipient_name = excluded.recipient_name, payment_method = excluded.payment_method,
				fictive = excluded.fictive, paid = excluded.paid, paid_date = excluded.paid_date,
				paid_amount = excluded.paid_amount, note = excluded.note,
				saved_account_string = excluded.saved_account_string,
				saved_account_string_new = excluded.saved_account_string_new
		`,
			p.ID, p.ScheduleID, p.Date.String(), p.Amount.String(),
			p.RecipientType, p.RecipientID, p.RecipientName, p.PaymentMethod,
			p.Fictive, p.Paid, optionalDate(p.PaidDate), paidAmount, p.Note,
			p.SavedAccountString, p.SavedAccountStringNew,
		)
		if err := wrapWrite("payment", err); err != nil {
			return err
		}
	}
	return nil
}

const paymentColumns = `id, schedule_id, date, amount, recipient_type, recipient_id, recipient_name,
	payment_method, fictive, paid, paid_date, paid_amount, note, saved_account_string, saved_account_string_new`

func scanPayment(row scanner) (core.Payment, error) {
	var (
		p        core.Payment
		date     string
		paidDate sql.NullString
	)
	err := row.Scan(&p.ID, &p.ScheduleID, &date, &p.Amount, &p.RecipientType, &p.RecipientID, &p.RecipientName,
		&p.PaymentMethod, &p.Fictive, &p.Paid, &paidDate, &p.PaidAmount, &p.Note,
		&p.SavedAccountString, &p.SavedAccountStringNew)
	if err != nil {
		return p, err
	}
	if p.Date, err = core.ParseDate(date); err != nil {
		return p, err
	}
	p.PaidDate, err = core.ParseOptionalDate(paidDate.String)
	return p, err
}

func (q *queries) GetPayment(ctx context.Context, id core.PaymentID) (*core.Payment, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	return one(row, scanPayment, "payment", id)
}

func (q *queries) ListPayments(ctx context.Context, scheduleID core.ScheduleID) ([]core.Payment, error) {
	return list(ctx, q.q, scanPayment,
		`SELECT `+paymentColumns+` FROM payments WHERE schedule_id = ? ORDER BY date, id`, scheduleID)
}

func (q *queries) DeletePayments(ctx context.Context, ids []core.PaymentID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := q.q.ExecContext(ctx, `DELETE FROM payments WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func one[T any](row *sql.Row, scan func(scanner) (T, error), kind string, id any) (*T, error) {
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound(kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return &v, nil
}

func list[T any](ctx context.Context, q querier, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func deleted(res sql.Result, err error, kind string, id any) error {
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NotFound(kind, id)
	}
	return nil
}

// wrapWrite maps constraint violations onto core's error categories.
func wrapWrite(kind string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %v: %w", kind, err, core.ErrConflict)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s references a missing record: %w", kind, core.ErrNotFound)
		}
	}
	return fmt.Errorf("failed to save %s: %w", kind, err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func optionalDate(d *core.Date) sql.NullString {
	return nullString(core.FormatOptionalDate(d))
}

func decimalOr(d, fallback decimal.Decimal) string {
	if d.IsZero() {
		return fallback.String()
	}
	return d.String()
}

var _ core.TxStore = (*Store)(nil)
