// Package database provides the data access layer with support for multiple backends.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/civicwatch/vigil/internal/models"
)

// ErrConflict is returned when an optimistic-concurrency update loses the
// race: the report's version no longer matches the one the caller read.
var ErrConflict = errors.New("report was modified concurrently")

// ReportFilter narrows ListReports. Zero values mean "any".
type ReportFilter struct {
	Type       models.IncidentType
	District   string
	Province   string
	ReporterID string
	Status     *models.ReportStatus
	Limit      int
	Offset     int
}

// Store defines the interface for data persistence.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]*models.Report, error)

	// UpdateReport persists r if and only if the stored version still equals
	// r.Version, bumping the version on success. Returns ErrConflict otherwise.
	UpdateReport(ctx context.Context, r *models.Report) error

	// ApplyVote atomically records the (report, voter) ledger entry and
	// persists r under the same version check. Returns (false, nil) when the
	// voter already has a ledger entry for this report, leaving the report
	// untouched; ErrConflict when the version check fails.
	ApplyVote(ctx context.Context, r *models.Report, voterID string, kind string) (bool, error)

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByKeyHash(ctx context.Context, hash string) (*models.User, error)
	UpdateUserLastSeen(ctx context.Context, id string, t time.Time) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	// Audit logs
	LogRequest(ctx context.Context, log *models.AuditLog) error
	GetAuditLogs(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)

	// Lifecycle
	Close() error
	Migrate() error
}
