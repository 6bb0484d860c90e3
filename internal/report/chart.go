package report

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/vicanso/go-charts/v2"

	"github.com/aristath/frontier/internal/modules/sweep"
)

// ErrNothingToPlot is returned when a frontier has fewer than two solved points.
var ErrNothingToPlot = errors.New("not enough solved points to plot")

// RenderChart draws realised risk and return per risk aversion as a PNG.
func RenderChart(f *sweep.Frontier) ([]byte, error) {
	solved := f.Solved()
	if len(solved) < 2 {
		return nil, ErrNothingToPlot
	}

	labels := make([]string, len(solved))
	risks := make([]float64, len(solved))
	returns := make([]float64, len(solved))
	for i, p := range solved {
		labels[i] = strconv.FormatFloat(p.RiskAversion, 'g', -1, 64)
		risks[i] = p.Stats.Risk
		returns[i] = p.Stats.Return
	}

	names := []string{"Risk", "Return"}
	seriesList := charts.NewSeriesListDataFromValues([][]float64{risks, returns}, charts.ChartTypeLine)
	for i := range seriesList {
		seriesList[i].Name = names[i]
		seriesList[i].AxisIndex = i
	}

	painter, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc("Efficient frontier", fmt.Sprintf("%d assets • risk aversion sweep", len(f.Assets))),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag()}),
		charts.YAxisOptionFunc(
			charts.YAxisOption{DivideCount: 5},
			charts.YAxisOption{DivideCount: 5, Position: charts.PositionRight},
		),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}

// WriteChart renders the chart to path.
func WriteChart(path string, f *sweep.Frontier) error {
	img, err := RenderChart(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, img, 0644); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return nil
}
