package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/match"
	"github.com/Another0Noob/mangadex-sync/internal/reconcile"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var styles = newPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// palette is a small stylesheet of named [lipgloss.Style] fields.
type palette struct {
	title  lipgloss.Style
	header lipgloss.Style
	ok     lipgloss.Style
	err    lipgloss.Style
	warn   lipgloss.Style
	dim    lipgloss.Style
}

func newPalette(t, s, e, w, d string) palette {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return palette{
		title:  fg(t).Bold(true),
		header: fg(t).Bold(true).Padding(0, 1),
		ok:     fg(s).Bold(true),
		err:    fg(e).Bold(true),
		warn:   fg(w),
		dim:    fg(d).Italic(true),
	}
}

const maxCell = 48

func cell(s string) string {
	r := []rune(s)
	if len(r) <= maxCell {
		return s
	}
	return string(r[:maxCell-1]) + "…"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.dim).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func styleResult(r reconcile.Result) string {
	switch r {
	case reconcile.Applied:
		return styles.ok.Render(string(r))
	case reconcile.Failed:
		return styles.err.Render(string(r))
	default:
		return styles.warn.Render(string(r))
	}
}

func renderReport(r *reconcile.Report) string {
	var b strings.Builder

	title := fmt.Sprintf("Sync %s -> %s", r.Source, r.Target)
	if r.DryRun {
		title += " (dry run)"
	}
	b.WriteString(styles.title.Render(title) + "\n")
	b.WriteString(styles.dim.Render("run "+r.RunID) + "\n")

	if len(r.Outcomes) > 0 {
		t := newTable("TITLE", "ACTION", "RESULT", "TARGET", "REASON")
		for _, o := range r.Outcomes {
			target := o.TargetID
			if target == "" && o.Plan.Target != nil {
				target = o.Plan.Target.ID
			}
			t.Row(cell(o.Plan.Source.Title), string(o.Plan.Action), styleResult(o.Result), target, cell(o.Reason))
		}
		b.WriteString(t.Render() + "\n")
	}

	s := r.Summary
	fmt.Fprintf(&b, "%s created, %s updated, %s skipped, %s failed in %s\n",
		styles.ok.Render(strconv.Itoa(s.Created)),
		styles.ok.Render(strconv.Itoa(s.Updated)),
		styles.warn.Render(strconv.Itoa(s.Skipped)),
		styles.err.Render(strconv.Itoa(s.Failed)),
		r.Duration.Round(time.Millisecond),
	)
	if failures := r.Failures(); len(failures) > 0 {
		b.WriteString(styles.err.Render("Failed:") + "\n")
		for _, o := range failures {
			fmt.Fprintf(&b, "  %s (%s, %d attempts): %s\n", o.Plan.Source.Title, o.Plan.Action, o.Attempts, o.Reason)
		}
	}
	if r.Systemic() {
		b.WriteString(styles.err.Render("Every title failed. Check MangaDex status and your credentials.") + "\n")
	}
	return b.String()
}

func renderPlans(plans []reconcile.Plan) string {
	var b strings.Builder
	counts := make(map[reconcile.Action]int)

	t := newTable("TITLE", "ACTION", "STATUS", "PROGRESS", "TARGET", "REASON")
	for _, p := range plans {
		counts[p.Action]++
		target := ""
		if p.Target != nil {
			target = p.Target.ID
		}
		t.Row(cell(p.Source.Title), string(p.Action), string(p.Status), strconv.Itoa(p.Progress), target, cell(p.Reason))
	}
	b.WriteString(t.Render() + "\n")

	fmt.Fprintf(&b, "%d planned: %d create, %d update, %d noop\n",
		len(plans),
		counts[reconcile.ActionCreate],
		counts[reconcile.ActionUpdateStatus]+counts[reconcile.ActionUpdateProgress]+counts[reconcile.ActionUpdateBoth],
		counts[reconcile.ActionNoop],
	)
	return b.String()
}

// matchView is the printable form of a match.Result.
type matchView struct {
	Title       string           `json:"title"`
	Confidence  match.Confidence `json:"confidence"`
	Score       float64          `json:"score"`
	TargetID    string           `json:"target_id,omitempty"`
	TargetTitle string           `json:"target_title,omitempty"`
	Listed      bool             `json:"listed"`
}

func matchViews(results []match.Result) []matchView {
	views := make([]matchView, len(results))
	for i, res := range results {
		v := matchView{Title: res.Source.Title, Confidence: res.Confidence, Score: res.Score}
		if res.Matched() {
			v.TargetID = res.Target.ID
			v.TargetTitle = res.Target.Title
			v.Listed = res.Target.Listed
		}
		views[i] = v
	}
	return views
}

func renderMatches(views []matchView) string {
	var b strings.Builder
	counts := make(map[match.Confidence]int)

	t := newTable("TITLE", "MATCH", "SCORE", "MANGADEX TITLE", "FOLLOWED")
	for _, v := range views {
		counts[v.Confidence]++
		tier := v.Confidence.String()
		if v.Confidence == match.None {
			tier = styles.err.Render(tier)
		}
		followed := ""
		if v.TargetID != "" {
			followed = strconv.FormatBool(v.Listed)
		}
		t.Row(cell(v.Title), tier, strconv.FormatFloat(v.Score, 'f', 2, 64), cell(v.TargetTitle), followed)
	}
	b.WriteString(t.Render() + "\n")

	fmt.Fprintf(&b, "%d exact, %d alternate-title, %d fuzzy, %d unmatched\n",
		counts[match.Exact], counts[match.AlternateTitle], counts[match.Fuzzy], counts[match.None])
	return b.String()
}
