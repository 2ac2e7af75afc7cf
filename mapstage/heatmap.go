package mapstage

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// PlotRegionHeatmap renders an interactive heatmap of request counts with
// dataset versions on one axis and resolved regions on the other.
func PlotRegionHeatmap(summaries map[string]*DatasetVersionSummary, filename string) error {
	datasetVersions := SortedKeys(summaries)

	regionSet := map[string]bool{}
	for _, key := range datasetVersions {
		for region := range summaries[key].RegionCounts {
			regionSet[region] = true
		}
	}
	regions := make([]string, 0, len(regionSet))
	for region := range regionSet {
		regions = append(regions, region)
	}

	regionIndex := make(map[string]int, len(regions))
	for i, region := range regions {
		regionIndex[region] = i
	}

	var heatmapData []opts.HeatMapData
	var maxCount int64
	for y, key := range datasetVersions {
		summary := summaries[key]
		for region, count := range summary.RegionCounts {
			if count > maxCount {
				maxCount = count
			}
			heatmapData = append(heatmapData, opts.HeatMapData{
				Value: [3]interface{}{regionIndex[region], y, count},
				Name:  fmt.Sprintf("%s / %s", key, region),
			})
		}
	}

	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       "Dataset Access by Region",
			Width:           "180vh",
			Height:          "100vh",
			Theme:           types.ThemeVintage,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Requests per Dataset Version by Region",
			Left:  "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Trigger: "item",
			Formatter: opts.FuncOpts(`function (params) {
		return params.name + '<br />Requests: ' + params.value[2];
	}`),
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show: opts.Bool(true),
			Min:  0,
			Max:  float32(maxCount),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#ffff8f", "#ff0000", "#000000"},
			},
			Orient: "vertical",
			Right:  "5%",
			Top:    "middle",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Region",
			Type: "category",
			Data: regions,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Dataset Version",
			Type: "category",
			Data: datasetVersions,
		}),
	)
	heatmap.AddSeries("Requests", heatmapData)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(heatmap)

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("mapstage: creating heatmap file %q: %w", filename, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("mapstage: rendering heatmap: %w", err)
	}
	return nil
}
