package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/civicwatch/vigil/internal/database"
	"github.com/civicwatch/vigil/internal/models"
	"github.com/civicwatch/vigil/internal/trust"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// updateRetries bounds the optimistic-concurrency retry loop before a
// Conflict surfaces to the caller.
const updateRetries = 5

// Service governs the report lifecycle: creation, voting, updates and
// administrative closing. Every mutation is a read-score-write loop against
// the store's version check.
type Service struct {
	store database.Store
	trust *trust.Engine
	now   func() time.Time
}

// NewService creates a lifecycle service.
func NewService(store database.Store, engine *trust.Engine) *Service {
	return &Service{
		store: store,
		trust: engine,
		now:   time.Now,
	}
}

// WithClock overrides the time source. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates the input and stores a new Active report with trust
// fields at their defaults. All field violations are reported together.
func (s *Service) Create(ctx context.Context, input models.CreateReportInput, reporterID string) (*models.Report, error) {
	severity := models.DefaultSeverity
	if input.Severity != nil {
		severity = *input.Severity
	}

	var fields []models.FieldError
	fields = append(fields, validateType(input.Type)...)
	fields = append(fields, validateCoordinates(input.Lat, input.Lng)...)
	fields = append(fields, validateSeverity(severity)...)
	fields = append(fields, validateAttachments(input.Attachments)...)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	now := s.now()
	r := &models.Report{
		ID:                uuid.New().String(),
		ReporterID:        reporterID,
		Title:             input.Title,
		Description:       input.Description,
		Type:              input.Type,
		Lat:               input.Lat,
		Lng:               input.Lng,
		Address:           input.Address,
		AreaCode:          input.AreaCode,
		Province:          input.Province,
		District:          input.District,
		Ward:              input.Ward,
		Street:            input.Street,
		Source:            input.Source,
		Attachments:       input.Attachments,
		Status:            models.StatusActive,
		Severity:          severity,
		SeverityLevel:     models.SeverityLevelFor(severity),
		TrustScore:        0,
		VerificationLevel: s.trust.Level(0, 0),
		ReportedAt:        input.ReportedAt,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	if err := s.store.CreateReport(ctx, r); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	log.Info().
		Str("report_id", r.ID).
		Str("type", string(r.Type)).
		Int("severity", r.Severity).
		Msg("Report created")
	return r, nil
}

// Get returns a report by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Report, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// List returns reports matching the filter.
func (s *Service) List(ctx context.Context, filter database.ReportFilter) ([]*models.Report, error) {
	return s.store.ListReports(ctx, filter)
}

// Confirm applies a corroborating vote. The applied result is false when the
// voter already voted on this report; the report is returned unchanged in
// that case, which is a recognized no-op rather than an error.
func (s *Service) Confirm(ctx context.Context, id, voterID string) (*models.Report, bool, error) {
	return s.applyVote(ctx, id, voterID, trust.VoteConfirm)
}

// Dispute applies a contesting vote. A dispute that drags the trust score to
// zero with enough accumulated disputes flags the report for review; it is
// never auto-closed.
func (s *Service) Dispute(ctx context.Context, id, voterID string) (*models.Report, bool, error) {
	return s.applyVote(ctx, id, voterID, trust.VoteDispute)
}

func (s *Service) applyVote(ctx context.Context, id, voterID string, kind trust.VoteKind) (*models.Report, bool, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		r, err := s.store.GetReport(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("get report: %w", err)
		}
		if r == nil {
			return nil, false, ErrNotFound
		}
		if r.Status == models.StatusClosed {
			return nil, false, ErrInvalidState
		}

		next := s.trust.Apply(kind, trust.StateOf(r))
		r.TrustScore = next.TrustScore
		r.ConfirmationCount = next.ConfirmationCount
		r.DisputeCount = next.DisputeCount
		r.VerificationLevel = next.Level
		if kind == trust.VoteDispute && r.Status == models.StatusActive && s.trust.FlagForReview(next) {
			r.Status = models.StatusUnderReview
			log.Warn().
				Str("report_id", r.ID).
				Int("dispute_count", r.DisputeCount).
				Msg("Report flagged for review")
		}
		r.UpdatedAt = s.now()

		applied, err := s.store.ApplyVote(ctx, r, voterID, string(kind))
		if errors.Is(err, database.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("apply vote: %w", err)
		}
		if !applied {
			// Duplicate vote: return the stored state untouched.
			current, err := s.store.GetReport(ctx, id)
			if err != nil {
				return nil, false, fmt.Errorf("get report: %w", err)
			}
			if current == nil {
				return nil, false, ErrNotFound
			}
			return current, false, nil
		}
		return r, true, nil
	}
	return nil, false, ErrConflict
}

// Update patches a report's content fields. Only the original reporter may
// update, closed reports are immutable, and patched fields are re-validated
// under the same rules as Create. Trust and status fields can never be set
// through this path.
func (s *Service) Update(ctx context.Context, id string, patch models.ReportPatch, requestorID string) (*models.Report, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		r, err := s.store.GetReport(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get report: %w", err)
		}
		if r == nil {
			return nil, ErrNotFound
		}
		if r.ReporterID != requestorID {
			return nil, ErrForbidden
		}
		if r.Status == models.StatusClosed {
			return nil, ErrInvalidState
		}

		applyPatch(r, patch)

		var fields []models.FieldError
		fields = append(fields, validateType(r.Type)...)
		fields = append(fields, validateCoordinates(r.Lat, r.Lng)...)
		fields = append(fields, validateSeverity(r.Severity)...)
		fields = append(fields, validateAttachments(r.Attachments)...)
		if len(fields) > 0 {
			return nil, &ValidationError{Fields: fields}
		}

		r.SeverityLevel = models.SeverityLevelFor(r.Severity)
		r.UpdatedAt = s.now()

		err = s.store.UpdateReport(ctx, r)
		if errors.Is(err, database.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update report: %w", err)
		}
		return r, nil
	}
	return nil, ErrConflict
}

// Close moves a report to its terminal state. Administrative only; closing
// an already closed report is a no-op.
func (s *Service) Close(ctx context.Context, id string) (*models.Report, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		r, err := s.store.GetReport(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get report: %w", err)
		}
		if r == nil {
			return nil, ErrNotFound
		}
		if r.Status == models.StatusClosed {
			return r, nil
		}

		r.Status = models.StatusClosed
		r.UpdatedAt = s.now()

		err = s.store.UpdateReport(ctx, r)
		if errors.Is(err, database.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("close report: %w", err)
		}
		log.Info().Str("report_id", r.ID).Msg("Report closed")
		return r, nil
	}
	return nil, ErrConflict
}

func applyPatch(r *models.Report, patch models.ReportPatch) {
	if patch.Title != nil {
		r.Title = *patch.Title
	}
	if patch.Description != nil {
		r.Description = *patch.Description
	}
	if patch.Type != nil {
		r.Type = *patch.Type
	}
	if patch.Lat != nil {
		r.Lat = *patch.Lat
	}
	if patch.Lng != nil {
		r.Lng = *patch.Lng
	}
	if patch.Address != nil {
		r.Address = *patch.Address
	}
	if patch.AreaCode != nil {
		r.AreaCode = *patch.AreaCode
	}
	if patch.Province != nil {
		r.Province = *patch.Province
	}
	if patch.District != nil {
		r.District = *patch.District
	}
	if patch.Ward != nil {
		r.Ward = *patch.Ward
	}
	if patch.Street != nil {
		r.Street = *patch.Street
	}
	if patch.Source != nil {
		r.Source = *patch.Source
	}
	if patch.Attachments != nil {
		r.Attachments = *patch.Attachments
	}
	if patch.Severity != nil {
		r.Severity = *patch.Severity
	}
	if patch.ReportedAt != nil {
		r.ReportedAt = patch.ReportedAt
	}
}

func validateType(t models.IncidentType) []models.FieldError {
	if t == "" {
		return []models.FieldError{{Field: "type", Message: "type is required"}}
	}
	if !t.Valid() {
		return []models.FieldError{{Field: "type", Message: fmt.Sprintf("unknown incident type %q", t)}}
	}
	return nil
}

func validateCoordinates(lat, lng float64) []models.FieldError {
	var fields []models.FieldError
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		fields = append(fields, models.FieldError{Field: "lat", Message: "lat must be a finite number in [-90, 90]"})
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		fields = append(fields, models.FieldError{Field: "lng", Message: "lng must be a finite number in [-180, 180]"})
	}
	return fields
}

func validateSeverity(severity int) []models.FieldError {
	if severity < 1 || severity > 5 {
		return []models.FieldError{{Field: "severity", Message: "severity must be between 1 and 5"}}
	}
	return nil
}

func validateAttachments(attachments []string) []models.FieldError {
	if len(attachments) > models.MaxAttachments {
		return []models.FieldError{{
			Field:   "attachments",
			Message: fmt.Sprintf("at most %d attachments allowed", models.MaxAttachments),
		}}
	}
	return nil
}
