// Command backlash-report is an offline tool over a backlash log
// database: it prints the per-axis dead-zone quantile summary, plots
// dead-zone magnitude across the run, and renders an HTML dashboard
// for browsing both.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rgbond/antctl/internal/backlash"
)

var (
	dbPath  = flag.String("db", "backlash.db", "path to the backlash SQLite log")
	outDir  = flag.String("out", "backlash-report", "output directory for the plot and dashboard files")
	jsonOut = flag.Bool("json", false, "print the quantile summary as JSON instead of a text table")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	l, err := backlash.Open(*dbPath)
	if err != nil {
		log.Fatalf("backlash-report: open %s: %v", *dbPath, err)
	}
	defer l.Close()

	summary, err := l.Summary()
	if err != nil {
		log.Fatalf("backlash-report: summary: %v", err)
	}
	series, err := l.Series()
	if err != nil {
		log.Fatalf("backlash-report: series: %v", err)
	}

	if *jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(summary); err != nil {
			log.Fatalf("backlash-report: encode summary: %v", err)
		}
	} else {
		printSummary(summary)
	}

	if len(series) == 0 {
		log.Printf("backlash-report: no correction rows logged, skipping plot and dashboard")
		return
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("backlash-report: mkdir %s: %v", *outDir, err)
	}

	plotPath := filepath.Join(*outDir, "dead_zone.png")
	if err := plotDeadZone(series, plotPath); err != nil {
		log.Fatalf("backlash-report: plot: %v", err)
	}
	log.Printf("wrote %s", plotPath)

	dashboardPath := filepath.Join(*outDir, "dashboard.html")
	if err := writeDashboard(summary, series, dashboardPath); err != nil {
		log.Fatalf("backlash-report: dashboard: %v", err)
	}
	log.Printf("wrote %s", dashboardPath)
}

func printSummary(s backlash.Summary) {
	fmt.Printf("%-5s %6s %8s %8s %8s %12s\n", "axis", "count", "p50", "p85", "p98", "mean_actual")
	row := func(axis string, q backlash.AxisQuantiles) {
		fmt.Printf("%-5s %6d %8.2f %8.2f %8.2f %12.2f\n", axis, q.Count, q.P50, q.P85, q.P98, q.MeanActual)
	}
	row("m1", s.M1)
	row("m2", s.M2)
}

// plotDeadZone renders the per-axis dead-zone magnitude across the
// run's corrections, one line per axis, matching the teacher's
// gonum/plot ring-time-series layout.
func plotDeadZone(series []backlash.MoveSample, path string) error {
	p := plot.New()
	p.Title.Text = "Backlash dead zone by move"
	p.X.Label.Text = "Move index"
	p.Y.Label.Text = "Dead zone (steps)"

	m1Pts := make(plotter.XYs, len(series))
	m2Pts := make(plotter.XYs, len(series))
	for i, s := range series {
		m1Pts[i] = plotter.XY{X: float64(s.MoveIndex), Y: float64(s.M1DeadZone)}
		m2Pts[i] = plotter.XY{X: float64(s.MoveIndex), Y: float64(s.M2DeadZone)}
	}

	m1Line, err := plotter.NewLine(m1Pts)
	if err != nil {
		return fmt.Errorf("m1 line: %w", err)
	}
	m1Line.Width = vg.Points(1)
	p.Add(m1Line)
	p.Legend.Add("m1", m1Line)

	m2Line, err := plotter.NewLine(m2Pts)
	if err != nil {
		return fmt.Errorf("m2 line: %w", err)
	}
	m2Line.Width = vg.Points(1)
	p.Add(m2Line)
	p.Legend.Add("m2", m2Line)

	p.Legend.Top = true
	p.Legend.Left = false

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

// writeDashboard renders a single-page HTML dashboard: a bar chart of
// the quantile summary and a line chart of dead-zone magnitude across
// the run, following the teacher's go-echarts page-of-charts pattern.
func writeDashboard(summary backlash.Summary, series []backlash.MoveSample, path string) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Dead-zone quantiles", Subtitle: "steps, per axis"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"p50", "p85", "p98"}).
		AddSeries("m1", []opts.BarData{{Value: summary.M1.P50}, {Value: summary.M1.P85}, {Value: summary.M1.P98}}).
		AddSeries("m2", []opts.BarData{{Value: summary.M2.P50}, {Value: summary.M2.P85}, {Value: summary.M2.P98}})

	moveIdx := make([]string, len(series))
	m1DZ := make([]opts.LineData, len(series))
	m2DZ := make([]opts.LineData, len(series))
	for i, s := range series {
		moveIdx[i] = fmt.Sprintf("%d", s.MoveIndex)
		m1DZ[i] = opts.LineData{Value: s.M1DeadZone}
		m2DZ[i] = opts.LineData{Value: s.M2DeadZone}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Dead zone by move", Subtitle: fmt.Sprintf("%d corrections", len(series))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(moveIdx).
		AddSeries("m1", m1DZ).
		AddSeries("m2", m2DZ)

	page := components.NewPage()
	page.AddCharts(bar, line)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return page.Render(f)
}
