package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat accepts "table" or "json".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table or json)", s)
}

func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Report(w io.Writer, f Format, r *integrity.ScanReport) error {
	if f == FormatJSON {
		return JSON(w, r)
	}
	s := r.Summary
	fmt.Fprintf(w, "Report %s  tenant=%s  by=%s  finished=%s  (%dms)\n",
		r.ID, r.TenantID, r.TriggeredBy, r.FinishedAt.Format(time.RFC3339), s.DurationMS)
	fmt.Fprintf(w, "Issues: %d  critical=%d high=%d medium=%d low=%d error=%d\n",
		s.TotalIssues, s.BySeverity.Critical, s.BySeverity.High, s.BySeverity.Medium, s.BySeverity.Low, s.BySeverity.Error)
	skipped := make([]string, 0, len(s.Skipped))
	for rule := range s.Skipped {
		skipped = append(skipped, rule)
	}
	sort.Strings(skipped)
	for _, rule := range skipped {
		fmt.Fprintf(w, "Skipped: %s (%s)\n", rule, s.Skipped[rule])
	}
	if len(r.Issues) == 0 {
		_, err := fmt.Fprintln(w, "No issues found.")
		return err
	}

	tw := table.NewWriter()
	tw.SetAllowedRowLength(160)
	tw.AppendHeader(table.Row{"ID", "Severity", "Rule", "Entity", "Status", "Fix", "Description"})
	for _, is := range r.Issues {
		tw.AppendRow(table.Row{
			is.ID,
			strings.ToUpper(string(is.Severity)),
			is.RuleID,
			is.EntityType + "/" + is.EntityID,
			is.Status,
			yesNo(is.Fixable),
			text.WrapText(is.Description, 60),
		})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func History(w io.Writer, f Format, entries []integrity.ScanHistoryEntry) error {
	if f == FormatJSON {
		return JSON(w, entries)
	}
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Report", "Finished", "By", "Issues", "Critical", "High", "Medium", "Low", "Error", "Skipped"})
	for _, e := range entries {
		c := e.Summary.BySeverity
		tw.AppendRow(table.Row{
			e.ID, e.FinishedAt.Format(time.RFC3339), e.TriggeredBy,
			e.Summary.TotalIssues, c.Critical, c.High, c.Medium, c.Low, c.Error, len(e.Summary.Skipped),
		})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func Outcome(w io.Writer, f Format, o *integrity.FixOutcome) error {
	if f == FormatJSON {
		return JSON(w, o)
	}
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Issue", "Outcome", "Detail"})
	for _, is := range o.Fixed {
		tw.AppendRow(table.Row{is.ID, "fixed", is.RuleID + " " + is.EntityID})
	}
	for _, is := range o.AutoResolved {
		tw.AppendRow(table.Row{is.ID, "auto_resolved", "condition no longer present"})
	}
	for _, is := range o.Failed {
		tw.AppendRow(table.Row{is.ID, "fix_failed", text.WrapText(is.Error, 60)})
	}
	for _, sk := range o.Skipped {
		tw.AppendRow(table.Row{sk.ID, "skipped", sk.Reason})
	}
	tw.AppendFooter(table.Row{"", "total", fmt.Sprintf("%d fixed, %d auto-resolved, %d failed, %d skipped",
		len(o.Fixed), len(o.AutoResolved), len(o.Failed), len(o.Skipped))})
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func Rules(w io.Writer, f Format, infos []integrity.RuleInfo) error {
	if f == FormatJSON {
		return JSON(w, infos)
	}
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Rule", "Category", "Severity", "Entity", "Auto-fix", "Title"})
	for _, ri := range infos {
		tw.AppendRow(table.Row{ri.ID, ri.Category, ri.Severity, ri.EntityType, yesNo(ri.Fixable), ri.Title})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
