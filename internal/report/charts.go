package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"rebal/internal/engine"
)

// 中文说明：
// report 把历史台账和预测结果渲染成 echarts HTML 页面，
// 直接由 HTTP 层返回给浏览器查看。

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"

	chartWidthPx  = 1200
	chartHeightPx = 520
)

// RenderHistory 渲染一组再分配运行的预算走势：
// 每个变体一条分配预算曲线，外加总预算参考线。
func RenderHistory(w io.Writer, campaignID string, results []engine.ReallocationResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no reallocation runs to render")
	}

	xAxis := make([]string, 0, len(results))
	totals := make([]opts.LineData, 0, len(results))
	perVariant := make(map[string][]opts.LineData)
	variantSeen := make(map[string]bool)
	for _, res := range results {
		for _, alloc := range res.Allocations {
			variantSeen[alloc.VariantID] = true
		}
	}
	variants := make([]string, 0, len(variantSeen))
	for id := range variantSeen {
		variants = append(variants, id)
	}
	sort.Strings(variants)

	for _, res := range results {
		xAxis = append(xAxis, res.Timestamp.UTC().Format(time.RFC3339))
		totals = append(totals, opts.LineData{Value: res.TotalBudget})
		byID := make(map[string]float64, len(res.Allocations))
		for _, alloc := range res.Allocations {
			byID[alloc.VariantID] = alloc.AllocatedBudget
		}
		for _, id := range variants {
			if v, ok := byID[id]; ok {
				perVariant[id] = append(perVariant[id], opts.LineData{Value: v})
			} else {
				perVariant[id] = append(perVariant[id], opts.LineData{Value: nil})
			}
		}
	}

	title := "Budget reallocation history"
	if campaignID != "" {
		title = fmt.Sprintf("Budget reallocation history - %s", campaignID)
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(chartInit()),
		charts.WithTitleOpts(opts.Title{
			Title:      title,
			Subtitle:   fmt.Sprintf("%d runs", len(results)),
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{
				Color: colorTextSecondary,
			},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}, Top: "30"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("total_budget", totals)
	for _, id := range variants {
		line.AddSeries(id, perVariant[id])
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)
	return page.Render(w)
}

// RenderForecast 渲染预测曲线，带可选的上下置信带。
func RenderForecast(w io.Writer, res engine.ForecastResult) error {
	if len(res.Forecast) == 0 {
		return fmt.Errorf("no forecast points to render")
	}

	xAxis := make([]string, 0, len(res.Forecast))
	conv := make([]opts.LineData, 0, len(res.Forecast))
	lower := make([]opts.LineData, 0, len(res.Forecast))
	upper := make([]opts.LineData, 0, len(res.Forecast))
	hasBand := false
	for _, p := range res.Forecast {
		xAxis = append(xAxis, p.Date)
		conv = append(conv, opts.LineData{Value: p.Conversions})
		lower = append(lower, opts.LineData{Value: p.Lower})
		upper = append(upper, opts.LineData{Value: p.Upper})
		if p.Lower != 0 || p.Upper != 0 {
			hasBand = true
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(chartInit()),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Conversion forecast - %d days", res.ForecastDays),
			Subtitle: fmt.Sprintf("total forecasted conversions: %.1f",
				res.Summary.TotalForecastedConversions),
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}, Top: "30"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("conversions", conv)
	if hasBand {
		line.AddSeries("lower", lower)
		line.AddSeries("upper", upper)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)
	return page.Render(w)
}

func chartInit() opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", chartHeightPx),
		BackgroundColor: colorBackground,
	}
}
