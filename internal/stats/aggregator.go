// Package stats derives read-only statistics over report collections.
package stats

import (
	"sort"

	"github.com/civicwatch/vigil/internal/models"
)

// DefaultDistrictLimit caps the byDistrict breakdown at the busiest districts.
const DefaultDistrictLimit = 8

// Summarize computes counts by type and district over the given reports.
// Deterministic given stable input order: groups are ranked by count
// descending with ties broken by first appearance in the input. Reports
// without a district are excluded from byDistrict but counted everywhere
// else. The caller decides the filter scope.
func Summarize(reports []*models.Report) models.Statistics {
	typeCounts := make(map[models.IncidentType]int)
	var typeOrder []models.IncidentType
	districtCounts := make(map[string]int)
	var districtOrder []string

	for _, r := range reports {
		if typeCounts[r.Type] == 0 {
			typeOrder = append(typeOrder, r.Type)
		}
		typeCounts[r.Type]++

		if r.District == "" {
			continue
		}
		if districtCounts[r.District] == 0 {
			districtOrder = append(districtOrder, r.District)
		}
		districtCounts[r.District]++
	}

	byType := make([]models.TypeCount, 0, len(typeOrder))
	for _, t := range typeOrder {
		byType = append(byType, models.TypeCount{Type: t, Count: typeCounts[t]})
	}
	sort.SliceStable(byType, func(i, j int) bool {
		return byType[i].Count > byType[j].Count
	})

	byDistrict := make([]models.DistrictCount, 0, len(districtOrder))
	for _, d := range districtOrder {
		byDistrict = append(byDistrict, models.DistrictCount{District: d, Count: districtCounts[d]})
	}
	sort.SliceStable(byDistrict, func(i, j int) bool {
		return byDistrict[i].Count > byDistrict[j].Count
	})
	if len(byDistrict) > DefaultDistrictLimit {
		byDistrict = byDistrict[:DefaultDistrictLimit]
	}

	return models.Statistics{
		Total:      len(reports),
		ByType:     byType,
		ByDistrict: byDistrict,
	}
}

// Heatmap aggregates reports into (province, district, type) cells with
// centroid coordinates. Cell order follows first appearance in the input.
func Heatmap(reports []*models.Report) []models.HeatmapPoint {
	type cellKey struct {
		province string
		district string
		incident models.IncidentType
	}
	type cell struct {
		sumLat, sumLng float64
		count          int
		maxSeverity    int
	}

	cells := make(map[cellKey]*cell)
	var order []cellKey

	for _, r := range reports {
		key := cellKey{province: r.Province, district: r.District, incident: r.Type}
		c, ok := cells[key]
		if !ok {
			c = &cell{}
			cells[key] = c
			order = append(order, key)
		}
		c.sumLat += r.Lat
		c.sumLng += r.Lng
		c.count++
		if r.Severity > c.maxSeverity {
			c.maxSeverity = r.Severity
		}
	}

	points := make([]models.HeatmapPoint, 0, len(order))
	for _, key := range order {
		c := cells[key]
		points = append(points, models.HeatmapPoint{
			Lat:      c.sumLat / float64(c.count),
			Lng:      c.sumLng / float64(c.count),
			Province: key.province,
			District: key.district,
			Type:     key.incident,
			Count:    c.count,
			Severity: models.SeverityLevelFor(c.maxSeverity),
		})
	}
	return points
}
