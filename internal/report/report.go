// Package report reduces trace records into tabular summaries: per-stage
// timing against version count, and side-by-side comparison across tool
// configuration variants.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/vhibench/vhibench/internal/result"
	"github.com/vhibench/vhibench/internal/trace"
)

// DefaultStages are the stages the time-series report covers unless the
// caller picks its own set.
var DefaultStages = []string{trace.StageLoadVersions, trace.StageInfer}

// Table is a reduced result set: ordered columns and rows of cells keyed by
// column name. A cell absent from a row renders empty.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// TimeSeries reduces records to one row per (repository, stage), with the
// mean elapsed seconds per observed version count in the bucket columns.
// Version counts a repository never reached simply have no cell.
func TimeSeries(records []trace.Record, stages []string) *Table {
	type key struct {
		name  string
		stage string
		count int
	}
	sums := make(map[key]float64)
	hits := make(map[key]int)
	repos := make(map[string]bool)
	buckets := make(map[int]bool)

	for _, rec := range records {
		for _, stage := range stages {
			secs, ok := rec.Stage(stage)
			if !ok {
				continue
			}
			k := key{rec.Name, stage, rec.NoVersions}
			sums[k] += secs
			hits[k]++
			repos[rec.Name] = true
			buckets[rec.NoVersions] = true
		}
	}

	sortedBuckets := make([]int, 0, len(buckets))
	for b := range buckets {
		sortedBuckets = append(sortedBuckets, b)
	}
	sort.Ints(sortedBuckets)

	columns := []string{"name", "stage"}
	for _, b := range sortedBuckets {
		columns = append(columns, strconv.Itoa(b))
	}

	sortedRepos := make([]string, 0, len(repos))
	for name := range repos {
		sortedRepos = append(sortedRepos, name)
	}
	sort.Strings(sortedRepos)

	table := &Table{Columns: columns}
	for _, name := range sortedRepos {
		for _, stage := range stages {
			row := map[string]any{"name": name, "stage": stage}
			filled := false
			for _, b := range sortedBuckets {
				k := key{name, stage, b}
				if n := hits[k]; n > 0 {
					row[strconv.Itoa(b)] = sums[k] / float64(n)
					filled = true
				}
			}
			if filled {
				table.Rows = append(table.Rows, row)
			}
		}
	}
	return table
}

// VariantRecords are the records captured under one named tool
// configuration.
type VariantRecords struct {
	Name    string
	Records []trace.Record
}

// comparisonMetrics maps the stage columns of the comparison report to the
// telemetry stages they summarize.
var comparisonMetrics = []struct {
	column string
	stage  string
}{
	{"load_s", trace.StageLoadVersions},
	{"infer_s", trace.StageInfer},
	{"save_s", trace.StageSaving},
	{"total_s", trace.StageTotal},
}

// Comparison reduces pre-partitioned variant records to one row per
// repository: identity metadata from the first variant holding a record,
// then per-variant mean stage durations under variant-prefixed columns.
// Repositories missing from a variant leave that variant's cells empty.
func Comparison(variants []VariantRecords) *Table {
	columns := []string{"name", "version_count", "avg_files_per_version"}
	for _, v := range variants {
		for _, m := range comparisonMetrics {
			columns = append(columns, v.Name+"_"+m.column)
		}
	}

	repos := make(map[string]bool)
	for _, v := range variants {
		for _, rec := range v.Records {
			repos[rec.Name] = true
		}
	}
	sortedRepos := make([]string, 0, len(repos))
	for name := range repos {
		sortedRepos = append(sortedRepos, name)
	}
	sort.Strings(sortedRepos)

	table := &Table{Columns: columns}
	for _, name := range sortedRepos {
		row := map[string]any{"name": name}
		for _, v := range variants {
			var matched []trace.Record
			for _, rec := range v.Records {
				if rec.Name == name {
					matched = append(matched, rec)
				}
			}
			if len(matched) == 0 {
				continue
			}
			if _, ok := row["version_count"]; !ok {
				row["version_count"] = matched[0].NoVersions
				row["avg_files_per_version"] = matched[0].AvgFilesPerVersion
			}
			for _, m := range comparisonMetrics {
				sum, n := 0.0, 0
				for _, rec := range matched {
					if secs, ok := rec.Stage(m.stage); ok {
						sum += secs
						n++
					}
				}
				if n > 0 {
					row[v.Name+"_"+m.column] = sum / float64(n)
				}
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// Write renders the table as csv, json, or an aligned text table.
func (t *Table) Write(w io.Writer, format string) error {
	switch format {
	case "csv":
		return t.WriteCSV(w)
	case "json":
		return t.WriteJSON(w)
	default:
		return t.WriteText(w)
	}
}

func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = formatCell(row[col])
		}
		if err := cw.Write(cells); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (t *Table) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	headers := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		headers[i] = strings.ToUpper(col)
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = formatCell(row[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func (t *Table) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	rows := t.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return enc.Encode(rows)
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Generate reads a run's records and writes its time-series report.
func Generate(runDir, format string, stages []string, w io.Writer) error {
	records, err := result.ReadRecords(runDir)
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		stages = DefaultStages
	}
	return TimeSeries(records, stages).Write(w, format)
}
