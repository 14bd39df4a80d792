// Package report renders an HTML overview of a session's trajectories
// with go-echarts: one scatter series per point over the frame, plus a
// bar chart of visibility and path statistics.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/pointlane/trackedit/internal/semantic"
	"github.com/pointlane/trackedit/internal/track"
)

// seriesName prefers the semantic label over the raw id.
func seriesName(index *semantic.Index, id int64) string {
	if index != nil {
		if entry, err := index.Get(id); err == nil && entry.Label != "" {
			return fmt.Sprintf("%s (#%d)", entry.Label, id)
		}
	}
	return "point " + strconv.FormatInt(id, 10)
}

// WriteOverview renders the trajectory overview document to w.
func WriteOverview(w io.Writer, store *track.Store, index *semantic.Index) error {
	meta := store.Meta()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Trajectory Overview",
			Width:     "900px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Trajectories",
			Subtitle: fmt.Sprintf("%d points over %d frames, %dx%d @ %.2f fps",
				store.Len(), meta.FrameCount, meta.Width, meta.Height, meta.FPS),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: meta.Width, Name: "x (px)"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: meta.Height, Name: "y (px)"}),
	)

	ids := store.PointIDs()
	for _, id := range ids {
		tr, err := store.Trajectory(id)
		if err != nil {
			continue
		}
		data := make([]opts.ScatterData, 0, len(tr))
		for frame, rec := range tr {
			if !rec.Visible {
				continue
			}
			// Image y grows downwards; flip so the chart matches the video.
			data = append(data, opts.ScatterData{Value: []interface{}{rec.X, float64(meta.Height) - rec.Y, frame}})
		}
		scatter.AddSeries(seriesName(index, id), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	}

	summaries := track.SummarizeAll(store)
	names := make([]string, 0, len(summaries))
	visible := make([]opts.BarData, 0, len(summaries))
	pathLen := make([]opts.BarData, 0, len(summaries))
	for _, sum := range summaries {
		names = append(names, seriesName(index, sum.PointID))
		visible = append(visible, opts.BarData{Value: sum.VisibleFrames})
		pathLen = append(pathLen, opts.BarData{Value: sum.PathLengthPx})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-point summary"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("visible frames", visible,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("path length (px)", pathLen)

	page := components.NewPage()
	page.AddCharts(scatter, bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render overview: %w", err)
	}
	return nil
}
