package csvtransform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// contextCheckInterval is how often, in rows, Parse checks for cancellation.
const contextCheckInterval = 500

// Table is a parsed CSV held in schema column order.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the values of one column, or nil if the table has no such column.
func (t *Table) Column(name string) []string {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values
}

// Parse reads path, validates its header against schema and returns the rows in
// schema column order together with per-column length statistics.
func Parse(ctx context.Context, path string, schema Schema, logger zerolog.Logger) (*Table, map[string]*FieldStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	return ParseReader(ctx, f, schema, logger)
}

// ParseReader is Parse over an arbitrary stream. A leading UTF-8 BOM is dropped and
// invalid UTF-8 is replaced with U+FFFD.
func ParseReader(ctx context.Context, r io.Reader, schema Schema, logger zerolog.Logger) (*Table, map[string]*FieldStats, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, &SchemaError{Schema: schema.Name, Empty: true}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	index, err := schema.Validate(header)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug().Strs("headers", header).Msg("csv header validation passed")

	stats := make(map[string]*FieldStats, len(schema.Columns))
	for _, c := range schema.Columns {
		stats[c] = NewFieldStats(c)
	}

	table := &Table{Columns: append([]string(nil), schema.Columns...)}
	var line, skipped int
	for {
		line++
		if line%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				// an unterminated quote swallows every line up to EOF into one field
				logger.Warn().Err(err).
					Int("line", parseErr.StartLine).
					Int("lines_lost", parseErr.Line-parseErr.StartLine+1).
					Msg("skipping unreadable csv row")
				continue
			}
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}

		if isBlank(record) {
			continue
		}
		if len(record) > len(header) {
			lineNo, _ := reader.FieldPos(0)
			logger.Warn().Int("line", lineNo).Int("fields", len(record)).Int("expected", len(header)).Msg("csv row has extra fields, ignoring them")
		}

		row := make([]string, len(schema.Columns))
		for i, pos := range index {
			if pos < len(record) {
				row[i] = strings.TrimSpace(record[pos])
			}
			stats[schema.Columns[i]].Add(row[i])
		}
		table.Rows = append(table.Rows, row)
	}

	logger.Info().Int("rows", len(table.Rows)).Int("skipped", skipped).Str("schema", schema.Name).Msg("parsed csv file")
	return table, stats, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
