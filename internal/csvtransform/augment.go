package csvtransform

import "github.com/google/uuid"

const (
	ColumnIdentifier         = "Identifier"
	ColumnFileLinkedDocument = "FileLinkedDocument"
)

// Augment returns a copy of t with a fresh Identifier per row and the shared
// correlation value in FileLinkedDocument.
func Augment(t *Table, correlationValue string) *Table {
	out := &Table{
		Columns: append(append([]string(nil), t.Columns...), ColumnIdentifier, ColumnFileLinkedDocument),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		augmented := make([]string, 0, len(row)+2)
		augmented = append(augmented, row...)
		augmented = append(augmented, uuid.NewString(), correlationValue)
		out.Rows[i] = augmented
	}
	return out
}
