package enrich

import (
	"math"
	"strings"

	"homey-driverkit/internal/descriptor"
)

// Uncategorized is the category of ids without a "<category>-" prefix.
const Uncategorized = "uncategorized"

// CategoryCounts aggregates the records of one category.
type CategoryCounts struct {
	Total    int `json:"total"`
	Valid    int `json:"valid"`
	Complete int `json:"complete"`
}

// Summary aggregates the validation of a set of records. Valid and
// complete are distinct: valid means the zigbee block is complete, complete
// means the score is 100.
type Summary struct {
	TotalCount    int                       `json:"total_count"`
	ValidCount    int                       `json:"valid_count"`
	CompleteCount int                       `json:"complete_count"`
	AverageScore  int                       `json:"average_score"`
	ValidPercent  int                       `json:"valid_percent"`
	ByCategory    map[string]CategoryCounts `json:"by_category"`
}

// Category returns the category prefix of a driver id.
func Category(id string) string {
	cat, _, ok := strings.Cut(id, "-")
	if !ok || cat == "" {
		return Uncategorized
	}
	return cat
}

// ValidateAll scores and classifies every record.
func ValidateAll(records []*descriptor.Record) Summary {
	s := Summary{TotalCount: len(records), ByCategory: make(map[string]CategoryCounts)}
	if len(records) == 0 {
		return s
	}
	total := 0
	for _, rec := range records {
		score := Score(rec)
		total += score

		cat := Category(rec.ID)
		c := s.ByCategory[cat]
		c.Total++
		if !NeedsEnrichment(rec) {
			s.ValidCount++
			c.Valid++
		}
		if score == 100 {
			s.CompleteCount++
			c.Complete++
		}
		s.ByCategory[cat] = c
	}
	s.AverageScore = roundDiv(total, len(records))
	s.ValidPercent = roundDiv(s.ValidCount*100, len(records))
	return s
}

func roundDiv(a, b int) int {
	return int(math.Floor(float64(a)/float64(b) + 0.5))
}
