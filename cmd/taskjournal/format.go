package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/c360studio/taskjournal/aggregation"
	"github.com/c360studio/taskjournal/tasks"
)

const dueLayout = "2006-01-02 15:04"

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(dueLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printTask writes a one-line summary of t.
func printTask(w io.Writer, t *tasks.Task) {
	status := "pending"
	if t.Completed {
		status = "done"
	}
	fmt.Fprintf(w, "%s  %s  [%s / %s", t.ID, t.Name, t.Type, t.Category)
	if sub := t.SubcategoryLabel(); sub != "" {
		fmt.Fprintf(w, " / %s", sub)
	}
	fmt.Fprintf(w, "]  due %s  %s\n", formatDue(t.DueDate), status)
}

func printTaskTable(w io.Writer, list []tasks.Task) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCATEGORY\tSUBCATEGORY\tWHO\tDUE\tDONE")
	for i := range list {
		t := &list[i]
		done := ""
		if t.Completed {
			done = "x"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(t.ID), t.Name, t.Type, t.Category,
			orDash(t.SubcategoryLabel()), orDash(t.Who), formatDue(t.DueDate), done)
	}
	tw.Flush()
}

// shortID keeps the first UUID group, which is enough to read a table.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func printDashboard(w io.Writer, d *aggregation.Dashboard) {
	fmt.Fprintf(w, "Tasks: %d total, %d completed (%d%%)\n\n", d.Total, d.Completed, d.Rate.CompletedPercent)

	for _, b := range []aggregation.Breakdown{d.Categories, d.Subcategories, d.Who} {
		if len(b.Groups) == 0 {
			continue
		}
		fmt.Fprintf(w, "By %s:\n", b.Dimension)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, g := range b.Groups {
			fmt.Fprintf(tw, "  %s\t%d\t%d%%\n", g.Label, g.Count, g.Percent)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(d.Completions.Days) > 0 {
		fmt.Fprintln(w, "Completed per day:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for i, day := range d.Completions.Days {
			fmt.Fprintf(tw, "  %s\t%d\n", day, d.Completions.Totals[i])
		}
		tw.Flush()
	}
}
