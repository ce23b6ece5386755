package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stanstork/linkdoc-import/internal/models"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return outputTable, nil
	case "json":
		return outputJSON, nil
	case "yaml":
		return outputYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (supported: table, json, yaml)", s)
	}
}

// printOutput renders data in the requested format. Table output uses headers and rows.
func printOutput(w io.Writer, format outputFormat, data interface{}, headers []string, rows [][]string) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return printTable(w, headers, rows)
	}
}

func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(headers, "\t")))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func jobRows(jobs []models.ImportJob) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		claimedBy := "-"
		if j.ClaimedBy != nil {
			claimedBy = *j.ClaimedBy
		}
		rows = append(rows, []string{
			fmt.Sprint(j.ID),
			j.ImportIdentifier.String(),
			j.Status(),
			string(j.FileType),
			claimedBy,
			formatTime(j.ClaimedAt),
			j.FilePath,
		})
	}
	return rows
}

var jobHeaders = []string{"ID", "Import identifier", "Status", "File type", "Claimed by", "Claimed at", "File"}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
