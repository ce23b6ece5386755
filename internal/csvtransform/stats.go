package csvtransform

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// FieldStats tracks value lengths for one column. Diagnostic only.
type FieldStats struct {
	Field       string
	Count       int
	MinLength   int
	MaxLength   int
	TotalLength int
}

func NewFieldStats(field string) *FieldStats {
	return &FieldStats{Field: field}
}

func (s *FieldStats) Add(value string) {
	n := len([]rune(value))
	if s.Count == 0 || n < s.MinLength {
		s.MinLength = n
	}
	if n > s.MaxLength {
		s.MaxLength = n
	}
	s.TotalLength += n
	s.Count++
}

func (s *FieldStats) Average() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.TotalLength) / float64(s.Count)
}

func (s *FieldStats) String() string {
	return fmt.Sprintf("Field: %s, Count: %d, Min: %d, Max: %d, Avg: %.2f",
		s.Field, s.Count, s.MinLength, s.MaxLength, s.Average())
}

// LogFieldStats writes one line per column, in column order when known.
func LogFieldStats(logger *zerolog.Logger, stats map[string]*FieldStats, order []string) {
	names := order
	if len(names) == 0 {
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		s, ok := stats[name]
		if !ok {
			continue
		}
		logger.Info().
			Str("field", s.Field).
			Int("count", s.Count).
			Int("min_length", s.MinLength).
			Int("max_length", s.MaxLength).
			Float64("avg_length", s.Average()).
			Msg("field length statistics")
	}
}
