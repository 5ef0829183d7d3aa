package models

import "time"

// PriceSample is one historical close.
type PriceSample struct {
	T time.Time `json:"t"`
	C float64   `json:"c"`
}

// Quote is a live price for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplayPoint is the reconstructed portfolio state at one section.
type ReplayPoint struct {
	T              time.Time `json:"t"`
	PortfolioValue float64   `json:"portfolioValue"`
	CostBasis      float64   `json:"costBasis"`
	NetDeposits    float64   `json:"netDeposits"`
	Cash           float64   `json:"cash"`
}

// SeriesPoint is one chart point of GET /timeseries. Times are unix milliseconds.
type SeriesPoint struct {
	T                 int64   `json:"t"`
	PortfolioAbs      float64 `json:"portfolioAbs"`
	CostBasisAbs      float64 `json:"costBasisAbs"`
	NetInvestedAbs    float64 `json:"netInvestedAbs"`
	DeltaFromStart    float64 `json:"deltaFromStart$"`
	DeltaFromStartPct float64 `json:"deltaFromStartPct"`
	OverallReturn     float64 `json:"overallReturn$"`
	OverallReturnPct  float64 `json:"overallReturnPct"`
}

// SeriesWindow bounds a series in unix milliseconds.
type SeriesWindow struct {
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
}

// SeriesTotals summarises the last point of a series.
type SeriesTotals struct {
	TPV            float64 `json:"tpv"`
	CostBasis      float64 `json:"costBasis"`
	TotalReturn    float64 `json:"totalReturn"`
	TotalReturnPct float64 `json:"totalReturnPct"`
}

// TimeseriesResponse is the body of GET /timeseries.
type TimeseriesResponse struct {
	Range    string        `json:"range"`
	Gran     string        `json:"gran,omitempty"`
	Source   string        `json:"source"`
	Series   []SeriesPoint `json:"series"`
	Sections []int64       `json:"sections"`
	Window   SeriesWindow  `json:"window"`
	Totals   SeriesTotals  `json:"totals"`
}

// UnixMilli converts a time slice to unix milliseconds.
func UnixMilli(ts []time.Time) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.UnixMilli()
	}
	return out
}
