package csvtransform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMismatch is matched by every header validation failure.
var ErrSchemaMismatch = errors.New("csv schema mismatch")

// Schema is the fixed, ordered column set a file type must carry.
type Schema struct {
	Name    string
	Columns []string
}

var GmailMetadata = Schema{
	Name: "Gmail metadata",
	Columns: []string{
		"Rfc822MessageId",
		"GmailMessageId",
		"FileName",
		"Account",
		"Labels",
		"From",
		"Subject",
		"To",
		"CC",
		"BCC",
		"DateSent",
		"DateReceived",
		"SubjectAtStart",
		"SubjectAtEnd",
		"DateFirstMessageSent",
		"DateLastMessageSent",
		"DateFirstMessageReceived",
		"DateLastMessageReceived",
		"ThreadedMessageCount",
	},
}

var DriveLinks = Schema{
	Name: "Gmail drive links",
	Columns: []string{
		"Account",
		"Rfc822MessageId",
		"GmailMessageId",
		"DriveUrl",
		"DriveItemId",
	},
}

// SchemaError lists the header drift found in an input file.
type SchemaError struct {
	Schema     string
	Missing    []string
	Unexpected []string
	Duplicate  []string
	Empty      bool
}

func (e *SchemaError) Error() string {
	if e.Empty {
		return "CSV file is empty or contains no headers"
	}
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required headers: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected headers: "+strings.Join(e.Unexpected, ", "))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicate headers: "+strings.Join(e.Duplicate, ", "))
	}
	return fmt.Sprintf("%s CSV header validation failed: %s", e.Schema, strings.Join(parts, "; "))
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Validate compares a header row with the schema as sets. Missing and unexpected
// columns are both fatal. On success it returns, for every schema column, its index
// in the header.
func (s Schema) Validate(header []string) ([]int, error) {
	if len(header) == 0 || (len(header) == 1 && strings.TrimSpace(header[0]) == "") {
		return nil, &SchemaError{Schema: s.Name, Empty: true}
	}

	positions := make(map[string]int, len(header))
	var duplicate []string
	for i, h := range header {
		h = normalizeHeader(h)
		if _, seen := positions[h]; seen {
			duplicate = append(duplicate, h)
			continue
		}
		positions[h] = i
	}

	expected := make(map[string]struct{}, len(s.Columns))
	var missing []string
	for _, c := range s.Columns {
		expected[c] = struct{}{}
		if _, ok := positions[c]; !ok {
			missing = append(missing, c)
		}
	}

	var unexpected []string
	for i, h := range header {
		h = normalizeHeader(h)
		if _, ok := expected[h]; !ok && positions[h] == i {
			unexpected = append(unexpected, h)
		}
	}

	if len(missing) > 0 || len(unexpected) > 0 || len(duplicate) > 0 {
		return nil, &SchemaError{Schema: s.Name, Missing: missing, Unexpected: unexpected, Duplicate: duplicate}
	}

	index := make([]int, len(s.Columns))
	for i, c := range s.Columns {
		index[i] = positions[c]
	}
	return index, nil
}

func normalizeHeader(h string) string {
	return strings.Trim(strings.TrimSpace(h), `"`)
}
