package timeseries

import (
	"sort"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// FillPolicy controls how SampleAt fills a timestamp with no exact sample.
type FillPolicy int

const (
	// ForwardOnly uses the latest sample at or before t.
	ForwardOnly FillPolicy = iota
	// ForwardThenBackward falls back to the earliest sample when nothing
	// precedes t.
	ForwardThenBackward
)

// SampleSource tells which fill produced a sampled price.
type SampleSource string

const (
	SourceForward  SampleSource = "forward"
	SourceBackward SampleSource = "backward"
	SourceNone     SampleSource = "none"
)

// SampleAt returns the price of an ascending series at t. ok is false when
// the policy finds no sample; callers then apply their own fallback (cost
// basis for valuation).
func SampleAt(series []models.PriceSample, t time.Time, policy FillPolicy) (float64, SampleSource, bool) {
	if len(series) == 0 {
		return 0, SourceNone, false
	}

	// first index with T > t
	i := sort.Search(len(series), func(i int) bool { return series[i].T.After(t) })
	if i > 0 {
		return series[i-1].C, SourceForward, true
	}
	if policy == ForwardThenBackward {
		return series[0].C, SourceBackward, true
	}
	return 0, SourceNone, false
}
