// Package state persists orders and everything derived from them in
// SQLite. The database is the single source of truth across process
// restarts; nothing the engine holds in memory is authoritative.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/motiongranted/draftengine/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements core.Store on SQLite with WAL journaling.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{dbPath: dbPath, db: db}
	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table does not exist yet; the initial migration creates it.
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Times are stored as fixed-width UTC strings so string comparison in
// SQL matches chronological order. RFC3339Nano would trim trailing
// zeros and break that property.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return fmtTime(t)
}

// =============================================================================
// Orders
// =============================================================================

func (s *SQLiteStore) CreateOrder(ctx context.Context, o *core.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, tier, motion_type, current_phase, status,
			revision_count, validation_fails, cost_usd,
			citation_bank_id, latest_draft_id, disclosure,
			created_at, updated_at, last_activity_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.Tier, o.MotionType, o.CurrentPhase, o.Status,
		o.RevisionCount, o.ValidationFails, o.CostUSD,
		o.CitationBankID, o.LatestDraftID, o.Disclosure,
		fmtTime(o.CreatedAt), fmtTime(o.UpdatedAt), fmtTime(o.LastActivityAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict("EXISTS", fmt.Sprintf("order %s already exists", o.ID))
		}
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

const orderColumns = `id, tier, motion_type, current_phase, status,
	revision_count, validation_fails, cost_usd,
	citation_bank_id, latest_draft_id, disclosure,
	created_at, updated_at, last_activity_at`

func scanOrder(row interface{ Scan(...any) error }) (*core.Order, error) {
	var o core.Order
	var created, updated, lastActivity string
	err := row.Scan(
		&o.ID, &o.Tier, &o.MotionType, &o.CurrentPhase, &o.Status,
		&o.RevisionCount, &o.ValidationFails, &o.CostUSD,
		&o.CitationBankID, &o.LatestDraftID, &o.Disclosure,
		&created, &updated, &lastActivity,
	)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(updated)
	o.LastActivityAt = parseTime(lastActivity)
	return &o, nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id core.OrderID) (*core.Order, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound(fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("loading order: %w", err)
	}
	return o, nil
}

// TransitionOrder persists status and phase together in one guarded
// write. A guard miss means the order moved since the caller read it.
func (s *SQLiteStore) TransitionOrder(ctx context.Context, id core.OrderID, fromStatus core.OrderStatus, fromPhase core.Phase, toStatus core.OrderStatus, toPhase core.Phase) error {
	if toStatus != fromStatus && !core.CanTransition(fromStatus, toStatus) {
		return core.ErrInvalidTransition(fromStatus, toStatus)
	}

	now := fmtTime(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, current_phase = ?, updated_at = ?, last_activity_at = ?
		WHERE id = ? AND status = ? AND current_phase = ?
	`, toStatus, toPhase, now, now, id, fromStatus, fromPhase)
	if err != nil {
		return fmt.Errorf("transitioning order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transitioning order: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetOrder(ctx, id); getErr != nil {
			return getErr
		}
		return core.ErrConflict("GUARD_MISS",
			fmt.Sprintf("order %s moved since read (expected %s/%s)", id, fromStatus, fromPhase))
	}
	return nil
}

func (s *SQLiteStore) TouchOrder(ctx context.Context, id core.OrderID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET last_activity_at = ? WHERE id = ?", fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touching order: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddOrderCost(ctx context.Context, id core.OrderID, usd float64) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		UPDATE orders SET cost_usd = cost_usd + ?, updated_at = ?
		WHERE id = ?
		RETURNING cost_usd
	`, usd, fmtTime(time.Now()), id).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound(fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return 0, fmt.Errorf("adding order cost: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) SetDisclosure(ctx context.Context, id core.OrderID, disclosure string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET disclosure = ?, updated_at = ? WHERE id = ?",
		disclosure, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("setting disclosure: %w", err)
	}
	return nil
}

// IncrementRevisionCount bumps the counter in a single statement, so
// concurrent increments never read a stale value.
func (s *SQLiteStore) IncrementRevisionCount(ctx context.Context, id core.OrderID) (core.IncrementResult, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE orders SET revision_count = revision_count + 1, updated_at = ?
		WHERE id = ?
		RETURNING revision_count
	`, fmtTime(time.Now()), id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IncrementResult{}, core.ErrNotFound(fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return core.IncrementResult{}, fmt.Errorf("incrementing revision count: %w", err)
	}
	return core.IncrementResult{
		Count:                count,
		TriggeredBoundedExit: count >= core.MaxRevisionLoops,
	}, nil
}

func (s *SQLiteStore) BumpValidationFailures(ctx context.Context, id core.OrderID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE orders SET validation_fails = validation_fails + 1
		WHERE id = ?
		RETURNING validation_fails
	`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound(fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return 0, fmt.Errorf("bumping validation failures: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ResetValidationFailures(ctx context.Context, id core.OrderID) error {
	_, err := s.db.ExecContext(ctx, "UPDATE orders SET validation_fails = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("resetting validation failures: %w", err)
	}
	return nil
}

// =============================================================================
// Phase outputs
// =============================================================================

func (s *SQLiteStore) SavePhaseOutput(ctx context.Context, out *core.PhaseOutput) error {
	created := out.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phase_outputs (
			id, order_id, phase, tier, status, payload, citation_text,
			model, tokens_in, tokens_out, cost_usd, disclosure, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		out.ID, out.OrderID, out.Phase, out.Tier, out.Status,
		string(out.Payload), out.CitationText,
		out.Model, out.TokensIn, out.TokensOut, out.CostUSD,
		out.Disclosure, fmtTime(created),
	)
	if err != nil {
		return fmt.Errorf("inserting phase output: %w", err)
	}
	return nil
}

const outputColumns = `id, order_id, phase, tier, status, payload, citation_text,
	model, tokens_in, tokens_out, cost_usd, disclosure, created_at`

func scanOutput(row interface{ Scan(...any) error }) (*core.PhaseOutput, error) {
	var out core.PhaseOutput
	var payload, created string
	err := row.Scan(
		&out.ID, &out.OrderID, &out.Phase, &out.Tier, &out.Status,
		&payload, &out.CitationText,
		&out.Model, &out.TokensIn, &out.TokensOut, &out.CostUSD,
		&out.Disclosure, &created,
	)
	if err != nil {
		return nil, err
	}
	out.Payload = json.RawMessage(payload)
	out.CreatedAt = parseTime(created)
	return &out, nil
}

func (s *SQLiteStore) ListPhaseOutputs(ctx context.Context, id core.OrderID) ([]*core.PhaseOutput, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+outputColumns+" FROM phase_outputs WHERE order_id = ? ORDER BY created_at, rowid", id)
	if err != nil {
		return nil, fmt.Errorf("listing phase outputs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outs []*core.PhaseOutput
	for rows.Next() {
		out, err := scanOutput(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning phase output: %w", err)
		}
		outs = append(outs, out)
	}
	return outs, rows.Err()
}

func (s *SQLiteStore) LatestPhaseOutput(ctx context.Context, id core.OrderID, phase core.Phase) (*core.PhaseOutput, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+outputColumns+" FROM phase_outputs WHERE order_id = ? AND phase = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		id, phase)
	out, err := scanOutput(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound(fmt.Sprintf("order %s has no %s output", id, phase))
	}
	if err != nil {
		return nil, fmt.Errorf("loading phase output: %w", err)
	}
	return out, nil
}

// =============================================================================
// Citation bank
// =============================================================================

func (s *SQLiteStore) SaveCitations(ctx context.Context, id core.OrderID, cites []core.UniqueCitation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range cites {
		var warnings any
		if len(c.FormatWarnings) > 0 {
			b, err := json.Marshal(c.FormatWarnings)
			if err != nil {
				return fmt.Errorf("marshaling format warnings: %w", err)
			}
			warnings = string(b)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO citations (order_id, text, type, source, occurrences, complete, format_warnings)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(order_id, text) DO UPDATE SET occurrences = occurrences + excluded.occurrences
		`, id, c.Text, c.Type, c.Source, c.Occurrences, boolInt(c.Complete), warnings)
		if err != nil {
			return fmt.Errorf("inserting citation: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListCitations(ctx context.Context, id core.OrderID) ([]core.UniqueCitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text, type, source, occurrences, complete, format_warnings
		FROM citations WHERE order_id = ? ORDER BY rowid
	`, id)
	if err != nil {
		return nil, fmt.Errorf("listing citations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cites []core.UniqueCitation
	for rows.Next() {
		var c core.UniqueCitation
		var complete int
		var warnings sql.NullString
		if err := rows.Scan(&c.Text, &c.Type, &c.Source, &c.Occurrences, &complete, &warnings); err != nil {
			return nil, fmt.Errorf("scanning citation: %w", err)
		}
		c.Complete = complete != 0
		if warnings.Valid && warnings.String != "" {
			if err := json.Unmarshal([]byte(warnings.String), &c.FormatWarnings); err != nil {
				return nil, fmt.Errorf("unmarshaling format warnings: %w", err)
			}
		}
		cites = append(cites, c)
	}
	return cites, rows.Err()
}

func (s *SQLiteStore) SaveStatutes(ctx context.Context, id core.OrderID, statutes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range statutes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO statutes (order_id, text) VALUES (?, ?)
			ON CONFLICT(order_id, text) DO NOTHING
		`, id, st); err != nil {
			return fmt.Errorf("inserting statute: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListStatutes(ctx context.Context, id core.OrderID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT text FROM statutes WHERE order_id = ? ORDER BY rowid", id)
	if err != nil {
		return nil, fmt.Errorf("listing statutes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var statutes []string
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("scanning statute: %w", err)
		}
		statutes = append(statutes, st)
	}
	return statutes, rows.Err()
}

func (s *SQLiteStore) SaveVerification(ctx context.Context, res *core.VerificationResult) error {
	created := res.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verifications (
			order_id, citation, confidence, stage, classification,
			stage1_model, stage1_finding, stage2_model, stage2_finding, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.OrderID, res.Citation, res.Confidence, int(res.Stage), res.Classification,
		res.Stage1Model, res.Stage1Finding, res.Stage2Model, res.Stage2Finding,
		fmtTime(created),
	)
	if err != nil {
		return fmt.Errorf("inserting verification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListVerifications(ctx context.Context, id core.OrderID) ([]*core.VerificationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, citation, confidence, stage, classification,
			stage1_model, stage1_finding, stage2_model, stage2_finding, created_at
		FROM verifications WHERE order_id = ? ORDER BY rowid
	`, id)
	if err != nil {
		return nil, fmt.Errorf("listing verifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*core.VerificationResult
	for rows.Next() {
		var res core.VerificationResult
		var stage int
		var created string
		if err := rows.Scan(
			&res.OrderID, &res.Citation, &res.Confidence, &stage, &res.Classification,
			&res.Stage1Model, &res.Stage1Finding, &res.Stage2Model, &res.Stage2Finding,
			&created,
		); err != nil {
			return nil, fmt.Errorf("scanning verification: %w", err)
		}
		res.Stage = core.VerificationStage(stage)
		res.CreatedAt = parseTime(created)
		results = append(results, &res)
	}
	return results, rows.Err()
}

// =============================================================================
// Loop grades
// =============================================================================

func (s *SQLiteStore) SaveLoopGrade(ctx context.Context, g *core.LoopGrade) error {
	blob, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshaling grade: %w", err)
	}
	created := g.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO loop_grades (order_id, loop, grade, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(order_id, loop) DO UPDATE SET grade = excluded.grade
	`, g.OrderID, g.Loop, string(blob), fmtTime(created))
	if err != nil {
		return fmt.Errorf("inserting grade: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLoopGrade(ctx context.Context, id core.OrderID, loop int) (*core.LoopGrade, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT grade FROM loop_grades WHERE order_id = ? AND loop = ?", id, loop).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound(fmt.Sprintf("order %s has no grade for loop %d", id, loop))
	}
	if err != nil {
		return nil, fmt.Errorf("loading grade: %w", err)
	}
	var g core.LoopGrade
	if err := json.Unmarshal([]byte(blob), &g); err != nil {
		return nil, fmt.Errorf("unmarshaling grade: %w", err)
	}
	return &g, nil
}

// =============================================================================
// Checkpoints
// =============================================================================

func (s *SQLiteStore) CreateCheckpoint(ctx context.Context, c *core.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (
			id, order_id, type, phase, status, resolution, message,
			created_at, reminder_at, escalation_at, final_at, resolved_at,
			reminder_sent, escalation_sent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.OrderID, c.Type, c.Phase, c.Status, c.Resolution, c.Message,
		fmtTime(c.CreatedAt), nullTime(c.ReminderAt), nullTime(c.EscalationAt),
		nullTime(c.FinalAt), nil,
		boolInt(c.ReminderSent), boolInt(c.EscalationSent),
	)
	if err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}
	return nil
}

const checkpointColumns = `id, order_id, type, phase, status, resolution, message,
	created_at, reminder_at, escalation_at, final_at, resolved_at,
	reminder_sent, escalation_sent`

func scanCheckpoint(row interface{ Scan(...any) error }) (*core.Checkpoint, error) {
	var c core.Checkpoint
	var created string
	var reminder, escalation, final, resolved sql.NullString
	var reminderSent, escalationSent int
	err := row.Scan(
		&c.ID, &c.OrderID, &c.Type, &c.Phase, &c.Status, &c.Resolution, &c.Message,
		&created, &reminder, &escalation, &final, &resolved,
		&reminderSent, &escalationSent,
	)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	c.ReminderAt = parseTime(reminder.String)
	c.EscalationAt = parseTime(escalation.String)
	c.FinalAt = parseTime(final.String)
	if resolved.Valid && resolved.String != "" {
		t := parseTime(resolved.String)
		c.ResolvedAt = &t
	}
	c.ReminderSent = reminderSent != 0
	c.EscalationSent = escalationSent != 0
	return &c, nil
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (*core.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE id = ?", id)
	c, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound(fmt.Sprintf("checkpoint %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	return c, nil
}

// ResolveCheckpoint closes a pending checkpoint. The guard on status
// makes double resolution a conflict, which webhook replay handling
// relies on.
func (s *SQLiteStore) ResolveCheckpoint(ctx context.Context, id string, r core.Resolution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkpoints SET status = ?, resolution = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`, core.CheckpointResolved, r, fmtTime(time.Now()), id, core.CheckpointPending)
	if err != nil {
		return fmt.Errorf("resolving checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving checkpoint: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetCheckpoint(ctx, id); getErr != nil {
			return getErr
		}
		return core.ErrConflict("RESOLVED", fmt.Sprintf("checkpoint %s already resolved", id))
	}
	return nil
}

func (s *SQLiteStore) MarkCheckpointNotice(ctx context.Context, id string, reminder, escalation bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE checkpoints SET reminder_sent = ?, escalation_sent = ? WHERE id = ?",
		boolInt(reminder), boolInt(escalation), id)
	if err != nil {
		return fmt.Errorf("marking checkpoint notice: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryCheckpoints(ctx context.Context, query string, args ...any) ([]*core.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cps []*core.Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		cps = append(cps, c)
	}
	return cps, rows.Err()
}

func (s *SQLiteStore) PendingCheckpoints(ctx context.Context, orderID core.OrderID) ([]*core.Checkpoint, error) {
	return s.queryCheckpoints(ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE order_id = ? AND status = ? ORDER BY created_at",
		orderID, core.CheckpointPending)
}

func (s *SQLiteStore) PendingHoldsDue(ctx context.Context, now time.Time) ([]*core.Checkpoint, error) {
	return s.queryCheckpoints(ctx, `
		SELECT `+checkpointColumns+` FROM checkpoints
		WHERE type = ? AND status = ?
		  AND ((reminder_sent = 0 AND reminder_at < ?)
		    OR (escalation_sent = 0 AND escalation_at < ?)
		    OR final_at < ?)
		ORDER BY created_at
	`, core.CheckpointHold, core.CheckpointPending, fmtTime(now), fmtTime(now), fmtTime(now))
}

func (s *SQLiteStore) StaleHolds(ctx context.Context, olderThan time.Time) ([]*core.Checkpoint, error) {
	return s.queryCheckpoints(ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE type = ? AND status = ? AND created_at < ? ORDER BY created_at",
		core.CheckpointHold, core.CheckpointPending, fmtTime(olderThan))
}

// =============================================================================
// Sweep queries
// =============================================================================

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...any) ([]*core.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []*core.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) StaleApprovals(ctx context.Context, inactiveSince time.Time) ([]*core.Order, error) {
	return s.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = ? AND last_activity_at < ?",
		core.StatusAwaitingApproval, fmtTime(inactiveSince))
}

func (s *SQLiteStore) StaleRefundLocks(ctx context.Context, heldSince time.Time) ([]*core.Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+qualifiedOrderColumns("o")+`
		FROM orders o JOIN refund_locks l ON l.order_id = o.id
		WHERE l.acquired_at < ? AND o.status NOT IN (?, ?, ?)
	`, fmtTime(heldSince),
		core.StatusCancelledUser, core.StatusCancelledAdmin, core.StatusRefunded)
}

func qualifiedOrderColumns(alias string) string {
	return alias + `.id, ` + alias + `.tier, ` + alias + `.motion_type, ` + alias + `.current_phase, ` + alias + `.status,
	` + alias + `.revision_count, ` + alias + `.validation_fails, ` + alias + `.cost_usd,
	` + alias + `.citation_bank_id, ` + alias + `.latest_draft_id, ` + alias + `.disclosure,
	` + alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.last_activity_at`
}

// =============================================================================
// Refund lock
// =============================================================================

func (s *SQLiteStore) AcquireRefundLock(ctx context.Context, id core.OrderID) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO refund_locks (order_id, acquired_at) VALUES (?, ?)
		ON CONFLICT(order_id) DO NOTHING
	`, id, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("acquiring refund lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquiring refund lock: %w", err)
	}
	if n == 0 {
		return core.ErrConflict(core.CodeLockHeld, fmt.Sprintf("refund lock for order %s already held", id))
	}
	return nil
}

func (s *SQLiteStore) ReleaseRefundLock(ctx context.Context, id core.OrderID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM refund_locks WHERE order_id = ?", id)
	if err != nil {
		return fmt.Errorf("releasing refund lock: %w", err)
	}
	return nil
}

// =============================================================================
// Metered lookup budget
// =============================================================================

func (s *SQLiteStore) MeteredLookupsUsed(ctx context.Context, month string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		"SELECT used FROM metered_lookups WHERE month = ?", month).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading metered usage: %w", err)
	}
	return used, nil
}

func (s *SQLiteStore) RecordMeteredLookup(ctx context.Context, month string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metered_lookups (month, used) VALUES (?, 1)
		ON CONFLICT(month) DO UPDATE SET used = used + 1
	`, month)
	if err != nil {
		return fmt.Errorf("recording metered lookup: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

var _ core.Store = (*SQLiteStore)(nil)
