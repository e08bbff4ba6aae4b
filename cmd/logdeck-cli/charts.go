package main

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	trendHeight = 8
	levelHeight = 6
	levelBarW   = 7
	levelGap    = 2
)

// Bar fills use the same colour for foreground and background so the
// block runes render solid.
var barStyles = map[model.Level]lipgloss.Style{
	model.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Background(lipgloss.Color("196")),
	model.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Background(lipgloss.Color("220")),
	model.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Background(lipgloss.Color("42")),
	model.LevelDebug:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Background(lipgloss.Color("245")),
}

var emptyBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("250"))

// stackOrder puts the least severe level at the bottom of a stacked bar.
var stackOrder = []model.Level{model.LevelDebug, model.LevelInfo, model.LevelWarning, model.LevelError}

// trendChart draws one stacked bar per bucket, oldest on the left, with the
// first and last bucket labels underneath.
func trendChart(buckets []model.TrendBucket) string {
	var peak int64
	for _, b := range buckets {
		peak = max(peak, b.Total)
	}
	if peak == 0 {
		return "  " + dimStyle.Render("no records in range")
	}

	width := len(buckets)*2 - 1
	bc := barchart.New(width, trendHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(1),
		barchart.WithNoAxis(),
	)
	for _, b := range buckets {
		var values []barchart.BarValue
		for _, lvl := range stackOrder {
			if n := b.Levels[lvl]; n > 0 {
				values = append(values, barchart.BarValue{
					Name:  string(lvl),
					Value: float64(n),
					Style: barStyles[lvl],
				})
			}
		}
		if len(values) == 0 {
			values = append(values, barchart.BarValue{Name: "EMPTY", Value: 0, Style: emptyBarStyle})
		}
		bc.Push(barchart.BarData{Label: "", Values: values})
	}
	bc.Draw()

	first, last := buckets[0].Label, buckets[len(buckets)-1].Label
	axis := first + " " + last
	if pad := width - len(first) - len(last); pad > 0 {
		axis = first + strings.Repeat(" ", pad) + last
	}
	legend := make([]string, 0, len(stackOrder))
	for i := len(stackOrder) - 1; i >= 0; i-- {
		lvl := stackOrder[i]
		legend = append(legend, levelStyles[lvl].Render("■ "+string(lvl)))
	}

	return indent(bc.View()) + "\n" +
		indent(dimStyle.Render(axis)) + "\n" +
		indent(strings.Join(legend, "  "))
}

// levelChart draws the level distribution as one bar per level with the
// count and share of the total under each bar.
func levelChart(sum model.AggregationResult) string {
	if sum.Total == 0 {
		return "  " + dimStyle.Render("no records")
	}

	levels := model.AllLevels()
	width := len(levels)*levelBarW + (len(levels)-1)*levelGap
	bc := barchart.New(width, levelHeight,
		barchart.WithBarGap(levelGap),
		barchart.WithBarWidth(levelBarW),
		barchart.WithNoAxis(),
	)

	cell := lipgloss.NewStyle().Width(levelBarW).Align(lipgloss.Center)
	gap := strings.Repeat(" ", levelGap)
	var names, counts, shares []string
	for _, lvl := range levels {
		n := sum.Levels[lvl]
		bc.Push(barchart.BarData{
			Label:  "",
			Values: []barchart.BarValue{{Name: string(lvl), Value: float64(n), Style: barStyles[lvl]}},
		})
		names = append(names, levelStyles[lvl].Inherit(cell).Render(strings.ToUpper(string(lvl))))
		counts = append(counts, cell.Render(fmt.Sprint(n)))
		shares = append(shares, dimStyle.Inherit(cell).Render(fmt.Sprintf("%.1f%%", float64(n)*100/float64(sum.Total))))
	}
	bc.Draw()

	return indent(bc.View()) + "\n" +
		indent(strings.Join(names, gap)) + "\n" +
		indent(strings.Join(counts, gap)) + "\n" +
		indent(strings.Join(shares, gap))
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
