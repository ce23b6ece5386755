package csvtransform

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gmailHeader() string {
	return strings.Join(GmailMetadata.Columns, ",")
}

func gmailRow(id string) string {
	fields := make([]string, len(GmailMetadata.Columns))
	for i, c := range GmailMetadata.Columns {
		fields[i] = c + "-" + id
	}
	return strings.Join(fields, ",")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateHeader(t *testing.T) {
	without := func(drop string) []string {
		var out []string
		for _, c := range GmailMetadata.Columns {
			if c != drop {
				out = append(out, c)
			}
		}
		return out
	}

	tests := []struct {
		name       string
		header     []string
		missing    []string
		unexpected []string
	}{
		{name: "exact", header: GmailMetadata.Columns},
		{name: "missing subject", header: without("Subject"), missing: []string{"Subject"}},
		{name: "extra column", header: append(append([]string(nil), GmailMetadata.Columns...), "ExtraField"), unexpected: []string{"ExtraField"}},
		{name: "renamed column", header: append(without("CC"), "Cc"), missing: []string{"CC"}, unexpected: []string{"Cc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, err := GmailMetadata.Validate(tt.header)
			if tt.missing == nil && tt.unexpected == nil {
				require.NoError(t, err)
				assert.Len(t, index, len(GmailMetadata.Columns))
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaMismatch)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.missing, schemaErr.Missing)
			assert.Equal(t, tt.unexpected, schemaErr.Unexpected)
		})
	}
}

func TestValidateHeaderRejectsDuplicates(t *testing.T) {
	header := append(append([]string(nil), DriveLinks.Columns...), "Account")
	_, err := DriveLinks.Validate(header)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"Account"}, schemaErr.Duplicate)
}

func TestParseHeaderOnlyFilePasses(t *testing.T) {
	path := writeFile(t, "empty.csv", gmailHeader()+"\r\n")

	table, stats, err := Parse(context.Background(), path, GmailMetadata, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Len(t, stats, len(GmailMetadata.Columns))
}

func TestParseEmptyFileFails(t *testing.T) {
	path := writeFile(t, "blank.csv", "")

	_, _, err := Parse(context.Background(), path, GmailMetadata, zerolog.Nop())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestParseSchemaMismatchFails(t *testing.T) {
	header := strings.Replace(gmailHeader(), "Subject,", "", 1)
	path := writeFile(t, "missing.csv", header+"\n")

	_, _, err := Parse(context.Background(), path, GmailMetadata, zerolog.Nop())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "Subject")
}

func TestParseSkipsMalformedRow(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	lines := []string{gmailHeader(), gmailRow("1"), gmailRow("2"), gmailRow("3")}
	// bare quote inside an unquoted field
	lines = append(lines, `bad"row`+strings.Repeat(",x", len(GmailMetadata.Columns)-1))
	lines = append(lines, gmailRow("4"), gmailRow("5"))

	path := writeFile(t, "rows.csv", strings.Join(lines, "\n")+"\n")
	table, _, err := Parse(context.Background(), path, GmailMetadata, logger)
	require.NoError(t, err)
	assert.Equal(t, 5, table.Len())
	assert.Contains(t, buf.String(), "skipping unreadable csv row")
}

func TestParseUnterminatedQuoteReportsLostLines(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	lines := []string{gmailHeader(), gmailRow("1"), gmailRow("2"), gmailRow("3")}
	lines = append(lines, `"unterminated`+strings.Repeat(",x", len(GmailMetadata.Columns)-1))
	lines = append(lines, gmailRow("4"), gmailRow("5"))

	path := writeFile(t, "runaway.csv", strings.Join(lines, "\n")+"\n")
	table, _, err := Parse(context.Background(), path, GmailMetadata, logger)
	require.NoError(t, err)
	// the open quote runs to EOF and takes the last two rows with it
	assert.Equal(t, 3, table.Len())
	assert.Contains(t, buf.String(), "skipping unreadable csv row")
	assert.Contains(t, buf.String(), `"line":5`)
	assert.Contains(t, buf.String(), `"lines_lost":`)
	assert.Contains(t, buf.String(), `"skipped":1`)
}

func TestParseToleratesShortRowsBlankLinesAndBOM(t *testing.T) {
	content := "\ufeff" + gmailHeader() + "\n" +
		"  <msg-1@example.com>  ,gm-1\n" +
		"\n" +
		gmailRow("2") + "\n"
	path := writeFile(t, "short.csv", content)

	table, stats, err := Parse(context.Background(), path, GmailMetadata, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	first := table.Rows[0]
	assert.Equal(t, "<msg-1@example.com>", first[0])
	assert.Equal(t, "gm-1", first[1])
	for _, v := range first[2:] {
		assert.Equal(t, "", v)
	}

	subject := stats["Subject"]
	assert.Equal(t, 2, subject.Count)
	assert.Equal(t, 0, subject.MinLength)
	assert.Equal(t, len("Subject-2"), subject.MaxLength)
}

func TestParseReordersColumnsIntoSchemaOrder(t *testing.T) {
	content := "DriveItemId,DriveUrl,GmailMessageId,Rfc822MessageId,Account\n" +
		"item-1,https://drive.example.com/1,gm-1,<m1>,alice@example.com\n"
	path := writeFile(t, "links.csv", content)

	table, _, err := Parse(context.Background(), path, DriveLinks, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DriveLinks.Columns, table.Columns)
	assert.Equal(t, []string{"alice@example.com", "<m1>", "gm-1", "https://drive.example.com/1", "item-1"}, table.Rows[0])
}

func TestParseHonoursCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(gmailHeader() + "\n")
	for i := 0; i < contextCheckInterval*2; i++ {
		sb.WriteString(gmailRow("r") + "\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ParseReader(ctx, strings.NewReader(sb.String()), GmailMetadata, zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAugment(t *testing.T) {
	table := &Table{Columns: []string{"A"}}
	for i := 0; i < 20000; i++ {
		table.Rows = append(table.Rows, []string{"v"})
	}

	out := Augment(table, "0f8fad5b-d9cb-469f-a165-70867728950e")
	assert.Equal(t, []string{"A", ColumnIdentifier, ColumnFileLinkedDocument}, out.Columns)
	require.Equal(t, table.Len(), out.Len())

	seen := make(map[string]struct{}, out.Len())
	for _, id := range out.Column(ColumnIdentifier) {
		_, dup := seen[id]
		require.False(t, dup, "duplicate identifier %s", id)
		seen[id] = struct{}{}
	}
	for _, v := range out.Column(ColumnFileLinkedDocument) {
		require.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", v)
	}
	// the input is left alone
	assert.Equal(t, []string{"A"}, table.Columns)
	assert.Len(t, table.Rows[0], 1)
}

func TestQuoteField(t *testing.T) {
	tests := map[string]string{
		"plain":        "plain",
		" leading":     " leading",
		"a,b":          `"a,b"`,
		`say "hi"`:     `"say ""hi"""`,
		"line\nbreak":  "\"line\nbreak\"",
		"carriage\rx":  "\"carriage\rx\"",
		"":             "",
		`a,b"c`:        `"a,b""c"`,
		"tab\tinside":  "tab\tinside",
		"semi;colon":   "semi;colon",
		"unicode ✓ ok": "unicode ✓ ok",
	}
	for in, want := range tests {
		assert.Equal(t, want, quoteField(in), "input %q", in)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	source := writeFile(t, "export.csv", "ignored")

	table := &Table{
		Columns: []string{"Subject", "To", ColumnIdentifier},
		Rows: [][]string{
			{`a,b"c`, "x@example.com", "id-1"},
			{"multi\r\nline", " padded ", "id-2"},
		},
	}

	out, err := Write(table, source)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(source), "export_with_identifiers.csv"), out)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	original, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, "ignored", string(original))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "Subject,To,Identifier\r\n"))
	assert.Contains(t, string(raw), `"a,b""c",x@example.com,id-1`+"\r\n")

	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, `a,b"c`, records[1][0])
	// encoding/csv folds \r\n inside quoted fields to \n
	assert.Equal(t, "multi\nline", records[2][0])
	assert.Equal(t, " padded ", records[2][1])
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/data/in", "Mailbox Export_with_identifiers.csv"), OutputPath("/data/in/Mailbox Export.csv"))
	assert.Equal(t, filepath.Join("/data", "noext_with_identifiers.csv"), OutputPath("/data/noext"))
}

func TestFieldStats(t *testing.T) {
	s := NewFieldStats("Subject")
	assert.Equal(t, 0, s.MinLength)
	assert.Equal(t, float64(0), s.Average())

	for _, v := range []string{"abc", "a", "abcdef", "ü"} {
		s.Add(v)
	}
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 1, s.MinLength)
	assert.Equal(t, 6, s.MaxLength)
	assert.Equal(t, 11, s.TotalLength)
	assert.Equal(t, "Field: Subject, Count: 4, Min: 1, Max: 6, Avg: 2.75", s.String())
}

func TestEndToEndParseAugmentWrite(t *testing.T) {
	lines := []string{gmailHeader(), gmailRow("1"), gmailRow("2"), gmailRow("3")}
	source := writeFile(t, "gmail.csv", strings.Join(lines, "\r\n")+"\r\n")

	table, _, err := Parse(context.Background(), source, GmailMetadata, zerolog.Nop())
	require.NoError(t, err)

	out, err := Write(Augment(table, "corr-1"), source)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	header := records[0]
	assert.Equal(t, append(append([]string(nil), GmailMetadata.Columns...), ColumnIdentifier, ColumnFileLinkedDocument), header)
	ids := map[string]bool{}
	for _, rec := range records[1:] {
		assert.Equal(t, "corr-1", rec[len(rec)-1])
		ids[rec[len(rec)-2]] = true
	}
	assert.Len(t, ids, 3)
}
