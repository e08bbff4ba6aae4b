package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/socketrpc"
)

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	serviceStyle = lipgloss.NewStyle().Width(18)

	levelStyles = map[model.Level]lipgloss.Style{
		model.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		model.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		model.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		model.LevelDebug:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

func levelLabel(l model.Level) string {
	style, ok := levelStyles[l]
	if !ok {
		style = dimStyle
	}
	return style.Width(8).Render(strings.ToUpper(string(l)))
}

func describeCriteria(c model.FilterCriteria) string {
	var parts []string
	if c.Level != "" && c.Level != model.All {
		parts = append(parts, "level="+c.Level)
	}
	if c.Service != "" && c.Service != model.All {
		parts = append(parts, "service="+c.Service)
	}
	if c.Search != "" {
		parts = append(parts, fmt.Sprintf("search=%q", c.Search))
	}
	if c.StartDate != nil {
		parts = append(parts, "from "+c.StartDate.Format("2006-01-02 15:04"))
	}
	if c.EndDate != nil {
		parts = append(parts, "to "+c.EndDate.Format("2006-01-02 15:04"))
	}
	if len(parts) == 0 {
		return dimStyle.Render("none")
	}
	return strings.Join(parts, ", ")
}

func renderStatus(w io.Writer, res socketrpc.SnapshotResult) {
	fmt.Fprintln(w, boldStyle.Render("Records"))
	fmt.Fprintf(w, "  total     %s\n", accentStyle.Render(fmt.Sprint(res.Total)))
	fmt.Fprintf(w, "  visible   %s\n", accentStyle.Render(fmt.Sprint(res.Visible)))
	if res.Rejected > 0 {
		fmt.Fprintf(w, "  rejected  %s\n", levelStyles[model.LevelWarning].Render(fmt.Sprint(res.Rejected)))
	}
	fmt.Fprintf(w, "  filters   %s\n", describeCriteria(res.Criteria))
	if len(res.Services) > 0 {
		fmt.Fprintf(w, "  services  %s\n", dimStyle.Render(strings.Join(res.Services, ", ")))
	}
}

func renderSummary(w io.Writer, res socketrpc.SummaryResult) {
	m := res.Metrics
	fmt.Fprintf(w, "%s %s\n\n", boldStyle.Render("Analytics"), dimStyle.Render("("+string(res.TimeRange)+")"))
	fmt.Fprintf(w, "  Total logs      %s\n", accentStyle.Render(fmt.Sprint(m.Total)))
	fmt.Fprintf(w, "  Error rate      %s\n", accentStyle.Render(fmt.Sprintf("%.1f%%", m.ErrorRate)))
	if m.MostActiveService.Value != "" {
		fmt.Fprintf(w, "  Most active     %s %s\n", m.MostActiveService.Value, dimStyle.Render(fmt.Sprintf("(%d)", m.MostActiveService.Count)))
	}
	if m.ErrorHotspot.Value != "" {
		fmt.Fprintf(w, "  Error hotspot   %s %s\n", m.ErrorHotspot.Value, dimStyle.Render(fmt.Sprintf("(%d)", m.ErrorHotspot.Count)))
	}
	if m.PeakBucket.Total > 0 {
		fmt.Fprintf(w, "  Peak            %s %s\n", m.PeakBucket.Label, dimStyle.Render(fmt.Sprintf("(%d)", m.PeakBucket.Total)))
	}

	fmt.Fprintf(w, "\n%s\n", boldStyle.Render("Trend"))
	fmt.Fprintln(w, trendChart(res.Summary.Buckets))

	fmt.Fprintf(w, "\n%s\n", boldStyle.Render("Levels"))
	fmt.Fprintln(w, levelChart(res.Summary))

	if len(res.TopServices) > 0 {
		fmt.Fprintf(w, "\n%s\n", boldStyle.Render("Top services"))
		for _, svc := range res.TopServices {
			fmt.Fprintf(w, "  %s %d\n", serviceStyle.Render(svc.Value), svc.Count)
		}
	}
}

func renderRecords(w io.Writer, res socketrpc.FilterResult) {
	for _, rec := range res.Records {
		fmt.Fprintf(w, "%s %s %s %s\n",
			dimStyle.Render(rec.Timestamp.Format("2006-01-02 15:04:05")),
			levelLabel(rec.Level),
			serviceStyle.Render(rec.Service),
			rec.Message,
		)
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d of %d matched, %d total", len(res.Records), res.Matched, res.Total)))
}
