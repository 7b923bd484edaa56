// Package database provides SQLite implementation of the Store interface.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/civicwatch/vigil/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			reporter_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			area_code TEXT NOT NULL DEFAULT '',
			province TEXT NOT NULL DEFAULT '',
			district TEXT NOT NULL DEFAULT '',
			ward TEXT NOT NULL DEFAULT '',
			street TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			attachments TEXT NOT NULL DEFAULT '[]',
			status INTEGER NOT NULL DEFAULT 0,
			severity INTEGER NOT NULL DEFAULT 3,
			trust_score INTEGER NOT NULL DEFAULT 0,
			verification_level TEXT NOT NULL DEFAULT 'unverified',
			confirmation_count INTEGER NOT NULL DEFAULT 0,
			dispute_count INTEGER NOT NULL DEFAULT 0,
			reported_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_type ON reports(type)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_district ON reports(district)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports(reporter_id)`,
		`CREATE TABLE IF NOT EXISTS report_votes (
			report_id TEXT NOT NULL,
			voter_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (report_id, voter_id),
			FOREIGN KEY (report_id) REFERENCES reports(id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			key_hash TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_hash ON users(key_hash)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			request_size INTEGER NOT NULL,
			response_code INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs(timestamp)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const reportColumns = `id, reporter_id, title, description, type, lat, lng, address, area_code,
	province, district, ward, street, source, attachments, status, severity,
	trust_score, verification_level, confirmation_count, dispute_count,
	reported_at, created_at, updated_at, version`

// CreateReport stores a new report.
func (s *SQLiteStore) CreateReport(ctx context.Context, r *models.Report) error {
	attachmentsJSON, _ := json.Marshal(r.Attachments)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ReporterID, r.Title, r.Description, r.Type, r.Lat, r.Lng, r.Address, r.AreaCode,
		r.Province, r.District, r.Ward, r.Street, r.Source, string(attachmentsJSON), r.Status, r.Severity,
		r.TrustScore, r.VerificationLevel, r.ConfirmationCount, r.DisputeCount,
		r.ReportedAt, r.CreatedAt, r.UpdatedAt, r.Version,
	)
	return err
}

// GetReport retrieves a report by ID. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReports returns reports matching the filter, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]*models.Report, error) {
	var conds []string
	var args []interface{}

	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.District != "" {
		conds = append(conds, "district = ?")
		args = append(args, filter.District)
	}
	if filter.Province != "" {
		conds = append(conds, "province = ?")
		args = append(args, filter.Province)
	}
	if filter.ReporterID != "" {
		conds = append(conds, "reporter_id = ?")
		args = append(args, filter.ReporterID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *filter.Status)
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// UpdateReport persists r under a version check; see Store.
func (s *SQLiteStore) UpdateReport(ctx context.Context, r *models.Report) error {
	res, err := s.updateReportExec(ctx, s.db, r)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	r.Version++
	return nil
}

// ApplyVote records the vote ledger entry and the report row in one
// transaction; see Store.
func (s *SQLiteStore) ApplyVote(ctx context.Context, r *models.Report, voterID string, kind string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO report_votes (report_id, voter_id, kind, created_at)
		VALUES (?, ?, ?, ?)`,
		r.ID, voterID, kind, r.UpdatedAt)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		// Voter already has a ledger entry for this report.
		return false, nil
	}

	res, err = s.updateReportExec(ctx, tx, r)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Rolling back also discards the ledger entry, so a retry of the
		// same vote is not mistaken for a duplicate.
		return false, ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	r.Version++
	return true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) updateReportExec(ctx context.Context, db execer, r *models.Report) (sql.Result, error) {
	attachmentsJSON, _ := json.Marshal(r.Attachments)
	return db.ExecContext(ctx, `
		UPDATE reports SET
			title = ?, description = ?, type = ?, lat = ?, lng = ?, address = ?, area_code = ?,
			province = ?, district = ?, ward = ?, street = ?, source = ?, attachments = ?,
			status = ?, severity = ?, trust_score = ?, verification_level = ?,
			confirmation_count = ?, dispute_count = ?, reported_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		r.Title, r.Description, r.Type, r.Lat, r.Lng, r.Address, r.AreaCode,
		r.Province, r.District, r.Ward, r.Street, r.Source, string(attachmentsJSON),
		r.Status, r.Severity, r.TrustScore, r.VerificationLevel,
		r.ConfirmationCount, r.DisputeCount, r.ReportedAt, r.UpdatedAt,
		r.ID, r.Version)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var attachmentsJSON string
	err := row.Scan(&r.ID, &r.ReporterID, &r.Title, &r.Description, &r.Type, &r.Lat, &r.Lng,
		&r.Address, &r.AreaCode, &r.Province, &r.District, &r.Ward, &r.Street, &r.Source,
		&attachmentsJSON, &r.Status, &r.Severity, &r.TrustScore, &r.VerificationLevel,
		&r.ConfirmationCount, &r.DisputeCount, &r.ReportedAt, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(attachmentsJSON), &r.Attachments)
	r.SeverityLevel = models.SeverityLevelFor(r.Severity)
	return &r, nil
}

// CreateUser stores a new user credential.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, key_hash, name, created_at)
		VALUES (?, ?, ?, ?)`,
		u.ID, u.KeyHash, u.Name, u.CreatedAt)
	return err
}

// GetUserByKeyHash retrieves a user by credential hash.
func (s *SQLiteStore) GetUserByKeyHash(ctx context.Context, hash string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, key_hash, name, created_at, last_seen_at
		FROM users WHERE key_hash = ?`, hash)

	var u models.User
	err := row.Scan(&u.ID, &u.KeyHash, &u.Name, &u.CreatedAt, &u.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserLastSeen updates the last seen timestamp.
func (s *SQLiteStore) UpdateUserLastSeen(ctx context.Context, id string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_seen_at = ? WHERE id = ?`, t, id)
	return err
}

// ListUsers returns all users.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, last_seen_at
		FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt, &u.LastSeenAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user credential.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

// LogRequest stores an audit log entry.
func (s *SQLiteStore) LogRequest(ctx context.Context, log *models.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, endpoint, method, request_size, response_code, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.UserID, log.Endpoint, log.Method, log.RequestSize,
		log.ResponseCode, log.DurationMs, log.Timestamp)
	return err
}

// GetAuditLogs returns paginated audit logs.
func (s *SQLiteStore) GetAuditLogs(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, method, request_size, response_code, duration_ms, timestamp
		FROM audit_logs ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Endpoint, &l.Method,
			&l.RequestSize, &l.ResponseCode, &l.DurationMs, &l.Timestamp); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
