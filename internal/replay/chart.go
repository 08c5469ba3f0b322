package replay

import (
	"fmt"
	"image/color"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// chartPad is the margin drawn around the emitter rectangle (ft).
const chartPad = 2.0

// ExportChart renders an interactive HTML scatter of the accepted fixes, the
// emitters and, when present, the reference solutions.
func (r *Result) ExportChart(filename string) error {
	var fixes, refs []opts.ScatterData
	for _, c := range r.Cycles {
		if !c.Accepted {
			continue
		}
		fixes = append(fixes, opts.ScatterData{Value: []interface{}{c.X, c.Y, c.Cost}, Name: fmt.Sprintf("cycle %d", c.Index)})
		if c.Reference != nil && c.Reference.Converged {
			refs = append(refs, opts.ScatterData{Value: []interface{}{c.Reference.X, c.Reference.Y}})
		}
	}

	emitters := make([]opts.ScatterData, 0, 4)
	for k := 0; k < 4; k++ {
		x, y := r.Params.Emitter(k)
		emitters = append(emitters, opts.ScatterData{Value: []interface{}{x, y}, Name: fmt.Sprintf("emitter %d", k)})
	}

	halfW := r.Params.Width/2 + chartPad
	halfH := r.Params.Height/2 + chartPad

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Positioning replay", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Accepted fixes",
			Subtitle: fmt.Sprintf("session=%s accepted=%d/%d", r.SessionID, r.Summary.Accepted, r.Summary.Cycles),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Min: -halfW, Max: halfW, Name: "X (ft)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -halfH, Max: halfH, Name: "Y (ft)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("emitters", emitters, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))
	scatter.AddSeries("fixes", fixes, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	if len(refs) > 0 {
		scatter.AddSeries("reference", refs, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer file.Close()

	if err := scatter.Render(file); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// ExportPlot saves a static image of the track; the format follows the
// file extension (png, svg, pdf).
func (r *Result) ExportPlot(filename string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s", r.SessionID)
	p.X.Label.Text = "X (ft)"
	p.Y.Label.Text = "Y (ft)"
	p.X.Min, p.X.Max = -r.Params.Width/2-chartPad, r.Params.Width/2+chartPad
	p.Y.Min, p.Y.Max = -r.Params.Height/2-chartPad, r.Params.Height/2+chartPad
	p.Add(plotter.NewGrid())

	outline := make(plotter.XYs, 0, 5)
	for k := 0; k < 5; k++ {
		x, y := r.Params.Emitter(k % 4)
		outline = append(outline, plotter.XY{X: x, Y: y})
	}
	rect, err := plotter.NewLine(outline)
	if err != nil {
		return fmt.Errorf("failed to build outline: %w", err)
	}
	rect.Color = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	rect.Width = vg.Points(1)
	p.Add(rect)

	var track plotter.XYs
	for _, c := range r.Cycles {
		if c.Accepted {
			track = append(track, plotter.XY{X: c.X, Y: c.Y})
		}
	}
	if len(track) > 0 {
		line, points, err := plotter.NewLinePoints(track)
		if err != nil {
			return fmt.Errorf("failed to build track: %w", err)
		}
		line.Color = color.RGBA{B: 200, A: 255}
		line.Width = vg.Points(0.5)
		points.Color = color.RGBA{B: 200, A: 255}
		points.Radius = vg.Points(1.5)
		p.Add(line, points)
		p.Legend.Add("fixes", line, points)
	}

	if err := p.Save(6*vg.Inch, 8*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
