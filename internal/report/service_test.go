package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/civicwatch/vigil/internal/database"
	"github.com/civicwatch/vigil/internal/models"
	"github.com/civicwatch/vigil/internal/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, database.Store) {
	t.Helper()
	store, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "vigil.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewService(store, trust.NewEngine(trust.DefaultConfig()))
	return svc, store
}

func validInput() models.CreateReportInput {
	return models.CreateReportInput{
		Title:    "Phone snatched near the market",
		Type:     models.IncidentRobbery,
		Lat:      10.0,
		Lng:      106.0,
		District: "District 1",
		Province: "Ho Chi Minh City",
	}
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "reporter-1", created.ReporterID)
	assert.Equal(t, models.StatusActive, created.Status)
	assert.Equal(t, models.DefaultSeverity, created.Severity)
	assert.Equal(t, models.SeverityMedium, created.SeverityLevel)
	assert.Equal(t, 0, created.TrustScore)
	assert.Equal(t, models.LevelUnverified, created.VerificationLevel)
	assert.Equal(t, 0, created.ConfirmationCount)
	assert.Equal(t, 0, created.DisputeCount)
	assert.Equal(t, now, created.CreatedAt)
	assert.Equal(t, now, created.UpdatedAt)
}

func TestCreateReportsEveryViolation(t *testing.T) {
	svc, _ := newTestService(t)

	severity := 9
	input := models.CreateReportInput{
		Type:     "arson-ish",
		Lat:      200,
		Lng:      -999,
		Severity: &severity,
		Attachments: []string{
			"u1", "u2", "u3", "u4", "u5", "u6",
		},
	}

	_, err := svc.Create(context.Background(), input, "reporter-1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	fields := make(map[string]bool)
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["type"])
	assert.True(t, fields["lat"])
	assert.True(t, fields["lng"])
	assert.True(t, fields["severity"])
	assert.True(t, fields["attachments"])
	assert.Len(t, verr.Fields, 5, "every violated field is reported together")
}

func TestSeverityLevelDerivation(t *testing.T) {
	svc, _ := newTestService(t)

	for severity, want := range map[int]models.SeverityLevel{
		1: models.SeverityLow,
		2: models.SeverityLow,
		3: models.SeverityMedium,
		4: models.SeverityHigh,
		5: models.SeverityHigh,
	} {
		input := validInput()
		input.Severity = &severity
		created, err := svc.Create(context.Background(), input, "reporter-1")
		require.NoError(t, err)
		assert.Equalf(t, want, created.SeverityLevel, "severity %d", severity)

		// Derived again on read, not trusted from the write path.
		fetched, err := svc.Get(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, want, fetched.SeverityLevel)
	}
}

func TestConfirmIsIdempotentPerVoter(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	first, applied, err := svc.Confirm(context.Background(), created.ID, "voter-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, first.ConfirmationCount)
	assert.Equal(t, 5, first.TrustScore)

	second, applied, err := svc.Confirm(context.Background(), created.ID, "voter-1")
	require.NoError(t, err)
	assert.False(t, applied, "second vote by the same voter is a recognized no-op")
	assert.Equal(t, 1, second.ConfirmationCount)
	assert.Equal(t, 5, second.TrustScore)

	// A dispute by the same voter is also blocked by the ledger.
	third, applied, err := svc.Dispute(context.Background(), created.ID, "voter-1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 0, third.DisputeCount)
}

func TestConfirmAccumulatesAcrossVoters(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	var last *models.Report
	for i := 0; i < 6; i++ {
		var applied bool
		last, applied, err = svc.Confirm(context.Background(), created.ID, fmt.Sprintf("voter-%d", i))
		require.NoError(t, err)
		require.True(t, applied)
	}

	assert.Equal(t, 6, last.ConfirmationCount)
	assert.Equal(t, 30, last.TrustScore)
	assert.Equal(t, models.LevelPending, last.VerificationLevel)
}

func TestConcurrentConfirmsFromDistinctVoters(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	const voters = 4
	var wg sync.WaitGroup
	errs := make([]error, voters)
	applieds := make([]bool, voters)

	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, applieds[i], errs[i] = svc.Confirm(context.Background(), created.ID, fmt.Sprintf("voter-%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < voters; i++ {
		require.NoError(t, errs[i])
		assert.True(t, applieds[i])
	}

	final, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, voters, final.ConfirmationCount, "no increment may be lost")
	assert.Equal(t, voters*5, final.TrustScore)
}

func TestDisputeFlagsForReview(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	r, _, err := svc.Dispute(context.Background(), created.ID, "voter-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, r.Status)

	r, _, err = svc.Dispute(context.Background(), created.ID, "voter-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, r.Status)

	r, _, err = svc.Dispute(context.Background(), created.ID, "voter-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, r.Status, "third dispute at score zero moves the report to review")
	assert.Equal(t, 0, r.TrustScore)
	assert.Equal(t, 3, r.DisputeCount)

	// Review is not terminal: votes are still accepted.
	r, applied, err := svc.Confirm(context.Background(), created.ID, "voter-4")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.StatusUnderReview, r.Status)
}

func TestVoteOnMissingReport(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Confirm(context.Background(), "no-such-id", "voter-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVoteOnClosedReport(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), created.ID)
	require.NoError(t, err)

	_, _, err = svc.Confirm(context.Background(), created.ID, "voter-1")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, _, err = svc.Dispute(context.Background(), created.ID, "voter-1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateRequiresReporter(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	title := "edited"
	_, err = svc.Update(context.Background(), created.ID, models.ReportPatch{Title: &title}, "someone-else")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdatePatchesContentFields(t *testing.T) {
	svc, _ := newTestService(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc.WithClock(func() time.Time { return current })

	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	current = base.Add(time.Hour)
	title := "Corrected title"
	severity := 5
	updated, err := svc.Update(context.Background(), created.ID, models.ReportPatch{
		Title:    &title,
		Severity: &severity,
	}, "reporter-1")
	require.NoError(t, err)

	assert.Equal(t, "Corrected title", updated.Title)
	assert.Equal(t, 5, updated.Severity)
	assert.Equal(t, models.SeverityHigh, updated.SeverityLevel)
	assert.Equal(t, created.Type, updated.Type, "unpatched fields survive")
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	// Trust state is untouched by the update path.
	assert.Equal(t, 0, updated.TrustScore)
	assert.Equal(t, models.StatusActive, updated.Status)
}

func TestUpdateRevalidates(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	lat := 91.0
	_, err = svc.Update(context.Background(), created.ID, models.ReportPatch{Lat: &lat}, "reporter-1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "lat", verr.Fields[0].Field)
}

func TestUpdateClosedReport(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), created.ID)
	require.NoError(t, err)

	title := "too late"
	_, err = svc.Update(context.Background(), created.ID, models.ReportPatch{Title: &title}, "reporter-1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCloseIsTerminalAndIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput(), "reporter-1")
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)

	again, err := svc.Close(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, again.Status)
}

func TestGetMissing(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "no-such-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}
