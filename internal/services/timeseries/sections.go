// Package timeseries plans chart sections and reconstructs portfolio value
// over time by replaying the ledger against price history.
package timeseries

import (
	"sort"
	"strings"
	"time"
)

// Range is a chart time range.
type Range string

const (
	Range1H  Range = "1H"
	Range1D  Range = "1D"
	Range3D  Range = "3D"
	Range1W  Range = "1W"
	Range1M  Range = "1M"
	Range3M  Range = "3M"
	Range6M  Range = "6M"
	Range1Y  Range = "1Y"
	RangeAll Range = "ALL"
)

const day = 24 * time.Hour

// allFallback is the window used for ALL when nothing has happened yet.
const allFallback = 30 * day

type rangeSpec struct {
	points   int
	bucket   time.Duration // zero for ALL: derived from the window
	duration time.Duration // zero for ALL
}

var rangeSpecs = map[Range]rangeSpec{
	Range1H:  {points: 60, bucket: time.Minute, duration: time.Hour},
	Range1D:  {points: 24, bucket: time.Hour, duration: day},
	Range3D:  {points: 36, bucket: 2 * time.Hour, duration: 3 * day},
	Range1W:  {points: 14, bucket: 12 * time.Hour, duration: 7 * day},
	Range1M:  {points: 30, bucket: day, duration: 30 * day},
	Range3M:  {points: 45, bucket: 2 * day, duration: 90 * day},
	Range6M:  {points: 60, bucket: 3 * day, duration: 180 * day},
	Range1Y:  {points: 60, bucket: 6 * day, duration: 365 * day},
	RangeAll: {points: 80},
}

var rangeAliases = map[string]Range{
	"1h": Range1H, "60m": Range1H, "1hour": Range1H,
	"1d": Range1D, "24h": Range1D, "daily": Range1D,
	"3d": Range3D, "72h": Range3D,
	"1w": Range1W, "7d": Range1W, "1week": Range1W,
	"1m": Range1M, "30d": Range1M, "1month": Range1M,
	"3m": Range3M, "90d": Range3M,
	"6m": Range6M, "180d": Range6M,
	"1y": Range1Y, "12m": Range1Y, "365d": Range1Y,
	"all": RangeAll, "max": RangeAll,
}

// ParseRange normalises a range string. Matching is case-insensitive and
// unknown values fall back to 1D.
func ParseRange(s string) Range {
	if r, ok := rangeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r
	}
	return Range1D
}

// Points is the planned number of sections.
func (r Range) Points() int {
	return specFor(r).points
}

// Duration is the lookback of the range; zero for ALL.
func (r Range) Duration() time.Duration {
	return specFor(r).duration
}

func specFor(r Range) rangeSpec {
	if s, ok := rangeSpecs[r]; ok {
		return s
	}
	return rangeSpecs[Range1D]
}

// RangeHint maps a range to the history granularity requested from the
// price source.
func RangeHint(r Range) string {
	switch r {
	case Range1H, Range1D, Range3D:
		return "1d"
	case Range1W:
		return "1m"
	case Range1M:
		return "3m"
	case Range3M:
		return "6m"
	default:
		return "1y"
	}
}

// WindowFor returns the [start, end] window of r ending at now. For ALL the
// window starts at earliest, or 30 days back when earliest is unknown.
func WindowFor(r Range, now time.Time, earliest *time.Time) (time.Time, time.Time) {
	if r == RangeAll {
		if earliest != nil && earliest.Before(now) {
			return *earliest, now
		}
		return now.Add(-allFallback), now
	}
	return now.Add(-specFor(r).duration), now
}

// BucketFor returns the bucket width of r over the given window.
func BucketFor(r Range, start, end time.Time) time.Duration {
	spec := specFor(r)
	if spec.bucket > 0 {
		return spec.bucket
	}
	b := end.Sub(start) / time.Duration(spec.points-1)
	b = b.Truncate(time.Millisecond)
	if b < time.Minute {
		b = time.Minute
	}
	return b
}

// PlanSections returns the ascending, de-duplicated chart timestamps for r
// between start and now. The result always has at least two entries.
func PlanSections(r Range, start, now time.Time) []time.Time {
	if r == Range1H {
		return planMinutes(start, now)
	}

	spec := specFor(r)
	b := BucketFor(r, start, now).Milliseconds()

	alignedStart := floorDiv(start.UnixMilli(), b) * b
	alignedEnd := -floorDiv(-now.UnixMilli(), b) * b

	duration := alignedEnd - alignedStart
	if duration < b {
		duration = b
	}

	n := int64(spec.points - 1)
	ms := make([]int64, 0, spec.points)
	for i := int64(0); i <= n; i++ {
		ms = append(ms, alignedStart+i*duration/n)
	}
	if last := ms[len(ms)-1]; last < alignedEnd {
		ms[len(ms)-1] = alignedEnd
	}

	return finalize(ms, b)
}

// planMinutes emits one section per minute of the last hour plus now. A
// start older than an hour is clamped to now-1h.
func planMinutes(start, now time.Time) []time.Time {
	step := time.Minute.Milliseconds()
	until := now.UnixMilli()
	from := start.UnixMilli()
	if earliest := until - 60*step; from < earliest {
		from = earliest
	}

	ms := make([]int64, 0, 62)
	for i := int64(0); i <= 60; i++ {
		t := from + i*step
		if t > until {
			break
		}
		ms = append(ms, t)
	}
	ms = append(ms, until)

	return finalize(ms, step)
}

func finalize(ms []int64, bucket int64) []time.Time {
	sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })

	out := make([]time.Time, 0, len(ms)+1)
	var prev int64
	for i, v := range ms {
		if i > 0 && v == prev {
			continue
		}
		out = append(out, time.UnixMilli(v).UTC())
		prev = v
	}
	if len(out) == 1 {
		out = append(out, out[0].Add(time.Duration(bucket)*time.Millisecond))
	}
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
