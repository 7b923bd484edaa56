// Package alert implements proximity danger evaluation over active reports.
package alert

import (
	"fmt"
	"sort"

	"github.com/civicwatch/vigil/internal/geo"
	"github.com/civicwatch/vigil/internal/models"
)

// DefaultRadiusMeters is applied when the caller does not supply a radius.
const DefaultRadiusMeters = 2000.0

// Danger score thresholds for alert grading.
const (
	highScoreThreshold   = 15.0
	mediumScoreThreshold = 7.0
)

// Evaluate decides whether an aggregate danger alert should be raised for a
// user at (lat, lng) given a collection of reports. Only Active reports
// within radiusMeters contribute. Pure and re-entrant: safe to call on every
// location update, with no alert state kept here.
func Evaluate(lat, lng float64, reports []*models.Report, radiusMeters float64) models.AlertResult {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}

	var nearby []models.NearbyReport
	var totalScore float64

	for _, r := range reports {
		if r.Status != models.StatusActive {
			continue
		}
		d := geo.Distance(lat, lng, r.Lat, r.Lng)
		if d > radiusMeters {
			continue
		}
		totalScore += dangerWeight(r)
		nearby = append(nearby, models.NearbyReport{
			ID:                r.ID,
			Title:             r.Title,
			Type:              r.Type,
			Lat:               r.Lat,
			Lng:               r.Lng,
			Address:           r.Address,
			Severity:          r.Severity,
			VerificationLevel: r.VerificationLevel,
			DistanceMeters:    d,
			CreatedAt:         r.CreatedAt,
		})
	}

	// Nearest first; ties by severity descending, then id for determinism.
	sort.Slice(nearby, func(i, j int) bool {
		if nearby[i].DistanceMeters != nearby[j].DistanceMeters {
			return nearby[i].DistanceMeters < nearby[j].DistanceMeters
		}
		if nearby[i].Severity != nearby[j].Severity {
			return nearby[i].Severity > nearby[j].Severity
		}
		return nearby[i].ID < nearby[j].ID
	})

	result := models.AlertResult{
		HasAlert:         len(nearby) > 0,
		AlertLevel:       grade(len(nearby), totalScore),
		TotalReports:     len(nearby),
		TotalDangerScore: totalScore,
		Reports:          nearby,
	}
	if result.HasAlert {
		result.Message = fmt.Sprintf("%d active incident report(s) within %.0fm of your location", len(nearby), radiusMeters)
	}
	return result
}

// dangerWeight is severity scaled by how far verification has progressed.
func dangerWeight(r *models.Report) float64 {
	return float64(r.Severity) * levelMultiplier(r.VerificationLevel)
}

func levelMultiplier(level models.VerificationLevel) float64 {
	switch level {
	case models.LevelConfirmed:
		return 1.5
	case models.LevelVerified:
		return 1.2
	case models.LevelPending:
		return 1.0
	default:
		return 0.5
	}
}

func grade(count int, score float64) models.AlertLevel {
	switch {
	case score >= highScoreThreshold:
		return models.AlertHigh
	case score >= mediumScoreThreshold:
		return models.AlertMedium
	case count == 0 && score == 0:
		return models.AlertNone
	default:
		return models.AlertLow
	}
}
