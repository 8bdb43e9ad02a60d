package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// schema defines the tables for the monitoring persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS remediation_actions (
    id               TEXT PRIMARY KEY,
    insight_id       TEXT NOT NULL DEFAULT '',
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    action_type      TEXT NOT NULL,
    container_id     TEXT NOT NULL,
    container_name   TEXT NOT NULL DEFAULT '',
    endpoint_id      INTEGER NOT NULL DEFAULT 0,
    endpoint_name    TEXT NOT NULL DEFAULT '',
    rationale        TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'pending',
    created_at       DATETIME NOT NULL,
    approved_at      DATETIME,
    approved_by      TEXT NOT NULL DEFAULT '',
    executed_at      DATETIME,
    execution_result TEXT NOT NULL DEFAULT '',
    error_message    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_actions_status      ON remediation_actions(status);
CREATE INDEX IF NOT EXISTS idx_actions_created_at  ON remediation_actions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_actions_container   ON remediation_actions(container_id, status);
`,
	},
	// Migration 2: anomaly_events
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS anomaly_events (
    id             TEXT PRIMARY KEY,
    endpoint_id    INTEGER NOT NULL DEFAULT 0,
    endpoint_name  TEXT NOT NULL DEFAULT '',
    container_id   TEXT NOT NULL,
    container_name TEXT NOT NULL DEFAULT '',
    metric_type    TEXT NOT NULL,
    current_value  REAL NOT NULL DEFAULT 0.0,
    expected_value REAL NOT NULL DEFAULT 0.0,
    zscore         REAL NOT NULL DEFAULT 0.0,
    direction      TEXT NOT NULL DEFAULT 'normal',
    detected_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anomaly_container   ON anomaly_events(container_id);
CREATE INDEX IF NOT EXISTS idx_anomaly_detected_at ON anomaly_events(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_anomaly_metric_type ON anomaly_events(metric_type);
`,
	},
	// Migration 3: rejection metadata on remediation_actions
	{
		version: 3,
		sql: `
ALTER TABLE remediation_actions ADD COLUMN rejected_at DATETIME;
ALTER TABLE remediation_actions ADD COLUMN rejected_by TEXT NOT NULL DEFAULT '';
ALTER TABLE remediation_actions ADD COLUMN rejection_reason TEXT NOT NULL DEFAULT '';
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Remediation actions ──────────────────────────────────────────────────────

const actionColumns = `id,insight_id,title,description,action_type,container_id,container_name,endpoint_id,endpoint_name,rationale,status,created_at,approved_at,approved_by,rejected_at,rejected_by,rejection_reason,executed_at,execution_result,error_message`

func (s *sqliteStore) CreateAction(ctx context.Context, action *models.RemediationAction) error {
	if action.Status == "" {
		action.Status = models.StatusPending
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO remediation_actions(`+actionColumns+`)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		action.ID, action.InsightID, action.Title, action.Description,
		string(action.ActionType), action.ContainerID, action.ContainerName,
		action.EndpointID, action.EndpointName, action.Rationale,
		string(action.Status), action.CreatedAt.UTC(),
		nullableTime(action.ApprovedAt), action.ApprovedBy,
		nullableTime(action.RejectedAt), action.RejectedBy, action.RejectionReason,
		nullableTime(action.ExecutedAt), action.ExecutionResult, action.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetAction(ctx context.Context, id string) (*models.RemediationAction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM remediation_actions WHERE id=?`, id)
	action, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return action, nil
}

func (s *sqliteStore) ApproveAction(ctx context.Context, id, approvedBy string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
        UPDATE remediation_actions
        SET status=?, approved_at=?, approved_by=?
        WHERE id=? AND status=?
    `, string(models.StatusApproved), time.Now().UTC(), approvedBy, id, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("approve action: %w", err)
	}
	return rowsChanged(result)
}

func (s *sqliteStore) RejectAction(ctx context.Context, id, rejectedBy, reason string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
        UPDATE remediation_actions
        SET status=?, rejected_at=?, rejected_by=?, rejection_reason=?
        WHERE id=? AND status=?
    `, string(models.StatusRejected), time.Now().UTC(), rejectedBy, reason,
		id, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("reject action: %w", err)
	}
	return rowsChanged(result)
}

func (s *sqliteStore) MarkExecuting(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
        UPDATE remediation_actions
        SET status=?
        WHERE id=? AND status=?
    `, string(models.StatusExecuting), id, string(models.StatusApproved))
	if err != nil {
		return false, fmt.Errorf("mark executing: %w", err)
	}
	return rowsChanged(result)
}

func (s *sqliteStore) MarkExecuted(ctx context.Context, id, execResult, errMsg string) (bool, error) {
	status := models.StatusExecuted
	if errMsg != "" {
		status = models.StatusFailed
	}
	result, err := s.db.ExecContext(ctx, `
        UPDATE remediation_actions
        SET status=?, executed_at=?, execution_result=?, error_message=?
        WHERE id=? AND status=?
    `, string(status), time.Now().UTC(), execResult, errMsg, id, string(models.StatusExecuting))
	if err != nil {
		return false, fmt.Errorf("mark executed: %w", err)
	}
	return rowsChanged(result)
}

func (s *sqliteStore) ListActionsByStatus(ctx context.Context, statuses ...models.ActionStatus) ([]*models.RemediationAction, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + actionColumns + ` FROM remediation_actions WHERE status IN (`
	args := []any{}
	for i, st := range statuses {
		if i > 0 {
			query += `,`
		}
		query += `?`
		args = append(args, string(st))
	}
	query += `) ORDER BY created_at DESC`

	return s.queryActions(ctx, query, args...)
}

func (s *sqliteStore) ListActionHistory(ctx context.Context, status models.ActionStatus, limit, offset int) ([]*models.RemediationAction, error) {
	query := `SELECT ` + actionColumns + ` FROM remediation_actions`
	args := []any{}
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 || offset > 0 {
		if limit <= 0 {
			limit = -1 // SQLite: OFFSET requires LIMIT; -1 means unbounded
		}
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, offset)
	}
	return s.queryActions(ctx, query, args...)
}

func (s *sqliteStore) HasOpenAction(ctx context.Context, containerID string, actionType models.ActionType) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM remediation_actions
        WHERE container_id=? AND action_type=? AND status IN (?,?)
    `, containerID, string(actionType),
		string(models.StatusPending), string(models.StatusApproved)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check open action: %w", err)
	}
	return count > 0, nil
}

func (s *sqliteStore) ActionSummary(ctx context.Context) (*models.ActionHistorySummary, error) {
	summary := &models.ActionHistorySummary{}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM remediation_actions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary.TotalActions += count
		switch models.ActionStatus(status) {
		case models.StatusPending:
			summary.Pending = count
		case models.StatusApproved:
			summary.Approved = count
		case models.StatusRejected:
			summary.Rejected = count
		case models.StatusExecuted:
			summary.Executed = count
		case models.StatusFailed:
			summary.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM remediation_actions WHERE created_at >= ?`, cutoff).
		Scan(&summary.ActionsLast24h)
	if err != nil {
		return nil, fmt.Errorf("count last 24h: %w", err)
	}

	if completed := summary.Executed + summary.Failed; completed > 0 {
		summary.SuccessRate = float64(summary.Executed) / float64(completed) * 100
	}
	return summary, nil
}

func (s *sqliteStore) PurgeOldActions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
        DELETE FROM remediation_actions
        WHERE created_at < ? AND status IN (?,?,?)
    `, cutoff.UTC(),
		string(models.StatusRejected), string(models.StatusExecuted), string(models.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("purge actions: %w", err)
	}
	return result.RowsAffected()
}

func (s *sqliteStore) queryActions(ctx context.Context, query string, args ...any) ([]*models.RemediationAction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.RemediationAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, action)
	}
	return result, rows.Err()
}

// ─── Anomaly events ───────────────────────────────────────────────────────────

func (s *sqliteStore) RecordAnomaly(ctx context.Context, result *models.AnomalyResult) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO anomaly_events(id, endpoint_id, endpoint_name, container_id, container_name,
            metric_type, current_value, expected_value, zscore, direction, detected_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?)
    `,
		result.ID, result.EndpointID, result.EndpointName,
		result.ContainerID, result.ContainerName,
		string(result.MetricType), result.CurrentValue, result.ExpectedValue,
		result.ZScore, string(result.Direction), result.DetectedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (s *sqliteStore) QueryAnomalies(ctx context.Context, q AnomalyQuery) ([]*models.AnomalyResult, error) {
	query := `SELECT id,endpoint_id,endpoint_name,container_id,container_name,metric_type,current_value,expected_value,zscore,direction,detected_at FROM anomaly_events WHERE 1=1`
	args := []any{}

	if q.ContainerID != "" {
		query += ` AND container_id = ?`
		args = append(args, q.ContainerID)
	}
	if q.MetricType != "" {
		query += ` AND metric_type = ?`
		args = append(args, string(q.MetricType))
	}
	if !q.From.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND detected_at <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY detected_at DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.AnomalyResult
	for rows.Next() {
		rec := &models.AnomalyResult{IsAnomaly: true}
		var metricType, direction, ts string
		if err := rows.Scan(&rec.ID, &rec.EndpointID, &rec.EndpointName,
			&rec.ContainerID, &rec.ContainerName, &metricType,
			&rec.CurrentValue, &rec.ExpectedValue, &rec.ZScore, &direction, &ts); err != nil {
			return nil, err
		}
		rec.MetricType = models.MetricType(metricType)
		rec.Direction = models.AnomalyDirection(direction)
		rec.DetectedAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) AnomalySummary(ctx context.Context, containerID string) (*models.AnomalySummary, error) {
	summary := &models.AnomalySummary{
		ContainerID: containerID,
		ByMetric:    make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT metric_type, COUNT(*) FROM anomaly_events
        WHERE container_id=? GROUP BY metric_type
    `, containerID)
	if err != nil {
		return nil, fmt.Errorf("count by metric: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var metricType string
		var count int
		if err := rows.Scan(&metricType, &count); err != nil {
			return nil, err
		}
		summary.ByMetric[metricType] = count
		summary.TotalCount += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if summary.TotalCount > 0 {
		var name, ts string
		err = s.db.QueryRowContext(ctx, `
            SELECT container_name, detected_at FROM anomaly_events
            WHERE container_id=? ORDER BY detected_at DESC LIMIT 1
        `, containerID).Scan(&name, &ts)
		if err != nil {
			return nil, fmt.Errorf("latest anomaly: %w", err)
		}
		summary.ContainerName = name
		if last, perr := parseTime(ts); perr == nil {
			summary.LastDetected = &last
		}
	}
	return summary, nil
}

func (s *sqliteStore) PurgeOldAnomalies(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM anomaly_events WHERE detected_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge anomalies: %w", err)
	}
	return result.RowsAffected()
}

// ─── Scan helpers ─────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*models.RemediationAction, error) {
	action := &models.RemediationAction{}
	var actionType, status, createdAt string
	var approvedAt, rejectedAt, executedAt sql.NullString
	err := row.Scan(&action.ID, &action.InsightID, &action.Title, &action.Description,
		&actionType, &action.ContainerID, &action.ContainerName,
		&action.EndpointID, &action.EndpointName, &action.Rationale,
		&status, &createdAt, &approvedAt, &action.ApprovedBy,
		&rejectedAt, &action.RejectedBy, &action.RejectionReason,
		&executedAt, &action.ExecutionResult, &action.ErrorMessage)
	if err != nil {
		return nil, err
	}
	action.ActionType = models.ActionType(actionType)
	action.Status = models.ActionStatus(status)
	action.CreatedAt, _ = parseTime(createdAt)
	if approvedAt.Valid {
		if t, perr := parseTime(approvedAt.String); perr == nil {
			action.ApprovedAt = &t
		}
	}
	if rejectedAt.Valid {
		if t, perr := parseTime(rejectedAt.String); perr == nil {
			action.RejectedAt = &t
		}
	}
	if executedAt.Valid {
		if t, perr := parseTime(executedAt.String); perr == nil {
			action.ExecutedAt = &t
		}
	}
	return action, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func rowsChanged(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
