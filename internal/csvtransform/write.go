package csvtransform

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	outputSuffix   = "_with_identifiers.csv"
	outputFileMode = 0o644
)

// OutputPath derives the augmented file name placed next to the source.
func OutputPath(sourcePath string) string {
	dir := filepath.Dir(sourcePath)
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(dir, stem+outputSuffix)
}

// Write serialises t next to sourcePath and returns the new file's path. The source
// file is never touched.
func Write(t *Table, sourcePath string) (string, error) {
	out := OutputPath(sourcePath)
	if filepath.Clean(out) == filepath.Clean(sourcePath) {
		return "", fmt.Errorf("refusing to overwrite source file %s", sourcePath)
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), ".ldimport-*.csv")
	if err != nil {
		return "", fmt.Errorf("create output csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteTo(tmp, t); err != nil {
		tmp.Close()
		return "", err
	}
	// CreateTemp makes the file owner-only; the import service reads it from the share.
	if err := tmp.Chmod(outputFileMode); err != nil {
		tmp.Close()
		return "", fmt.Errorf("set output csv mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close output csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return "", fmt.Errorf("move output csv into place: %w", err)
	}
	return out, nil
}

// WriteTo writes the header and rows with CRLF line endings. A field is quoted only
// when it holds a comma, a double quote, CR or LF.
func WriteTo(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	if err := writeRecord(bw, t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writeRecord(bw, row); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush output csv: %w", err)
	}
	return nil
}

func writeRecord(w *bufio.Writer, record []string) error {
	for i, field := range record {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quoteField(field)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

func quoteField(field string) string {
	if !strings.ContainsAny(field, ",\"\r\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
