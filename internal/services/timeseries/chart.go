package timeseries

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/folio/internal/models"
)

// RenderChart renders the range's series as a PNG. A series with fewer than
// two points is drawn as a flat line across the planned sections.
func (s *Service) RenderChart(ctx context.Context, userID, rangeKey string) ([]byte, error) {
	resp, err := s.GetTimeseries(ctx, userID, rangeKey, "")
	if err != nil {
		return nil, err
	}
	points := resp.Series
	if len(points) < 2 {
		points = flatSeries(resp)
	}
	return RenderSeriesChart(points, ParseRange(resp.Range))
}

// flatSeries spans the first and last section with the single known point,
// or zeros when there is none.
func flatSeries(resp *models.TimeseriesResponse) []models.SeriesPoint {
	first, last := resp.Window.StartTime, resp.Window.EndTime
	if n := len(resp.Sections); n >= 2 {
		first, last = resp.Sections[0], resp.Sections[n-1]
	}
	var p models.SeriesPoint
	if len(resp.Series) == 1 {
		p = resp.Series[0]
	}
	a, b := p, p
	a.T, b.T = first, last
	return []models.SeriesPoint{a, b}
}

// RenderSeriesChart draws portfolio value (solid) against cost basis and
// net invested (dashed).
func RenderSeriesChart(points []models.SeriesPoint, r Range) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(points))
	}

	xValues := make([]time.Time, len(points))
	valueY := make([]float64, len(points))
	costY := make([]float64, len(points))
	investedY := make([]float64, len(points))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, p := range points {
		xValues[i] = time.UnixMilli(p.T).UTC()
		valueY[i] = p.PortfolioAbs
		costY[i] = p.CostBasisAbs
		investedY[i] = p.NetInvestedAbs
		for _, v := range []float64{valueY[i], costY[i], investedY[i]} {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
	}

	layout := axisLayout(r)

	graph := chart.Chart{
		Title:  "Portfolio Value (" + string(r) + ")",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format(layout)
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.1fk", f/1000)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Portfolio Value",
				Style:   chart.Style{StrokeColor: drawing.ColorFromHex("2563eb"), StrokeWidth: 2.5},
				XValues: xValues,
				YValues: valueY,
			},
			chart.TimeSeries{
				Name: "Cost Basis",
				Style: chart.Style{
					StrokeColor:     drawing.ColorFromHex("9ca3af"),
					StrokeWidth:     1.5,
					StrokeDashArray: []float64{5.0, 3.0},
				},
				XValues: xValues,
				YValues: costY,
			},
			chart.TimeSeries{
				Name: "Net Invested",
				Style: chart.Style{
					StrokeColor:     drawing.ColorFromHex("16a34a"),
					StrokeWidth:     1.0,
					StrokeDashArray: []float64{2.0, 2.0},
				},
				XValues: xValues,
				YValues: investedY,
			},
		},
	}
	if maxY == minY {
		// a flat series has no y-range to derive ticks from
		graph.YAxis.Range = &chart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func axisLayout(r Range) string {
	switch r {
	case Range1H, Range1D:
		return "15:04"
	case Range3D, Range1W:
		return "Jan 2 15h"
	case Range1M, Range3M:
		return "Jan 2"
	default:
		return "Jan 06"
	}
}
