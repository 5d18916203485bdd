package internal

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/lychee-technology/formflow"
)

// CSVTimestampLayout is the layout of the Submitted At column.
const CSVTimestampLayout = "2006-01-02T15:04:05.000Z"

// DefaultCSVFilename is used when the caller does not name the export.
const DefaultCSVFilename = "form-submissions.csv"

// CSVHeader returns the export header: the two fixed columns followed by
// the input field names in schema order.
func CSVHeader(form *formflow.FormSchema) []string {
	fields := form.InputFields()
	header := make([]string, 0, len(fields)+2)
	header = append(header, "Submission ID", "Submitted At")
	for _, f := range fields {
		header = append(header, f.Name)
	}
	return header
}

// WriteSubmissionsCSV writes one row per submission. Quoting of commas,
// quotes and newlines is left to encoding/csv.
func WriteSubmissionsCSV(w io.Writer, form *formflow.FormSchema, submissions []formflow.Submission) error {
	cw := csv.NewWriter(w)
	header := CSVHeader(form)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	fields := header[2:]
	row := make([]string, len(header))
	for _, s := range submissions {
		row[0] = s.ID
		row[1] = s.SubmittedAt.UTC().Format(CSVTimestampLayout)
		for i, name := range fields {
			row[i+2] = displayValue(s.Data[name])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", s.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
