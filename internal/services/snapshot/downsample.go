package snapshot

import (
	"sort"
	"time"

	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/timeseries"
)

// DefaultDownsampleThreshold is the snapshot count above which series are
// bucketed before mapping.
const DefaultDownsampleThreshold = 300

// BucketWidth is the downsampling bucket for a range.
func BucketWidth(r timeseries.Range) time.Duration {
	switch r {
	case timeseries.Range1M, timeseries.Range3M:
		return time.Hour
	case timeseries.Range6M, timeseries.Range1Y:
		return 6 * time.Hour
	case timeseries.RangeAll:
		return 24 * time.Hour
	default:
		return 30 * time.Minute
	}
}

// Downsample keeps the latest snapshot per bucket when there are more than
// threshold snapshots. The result is ascending.
func Downsample(snaps []models.PortfolioSnapshot, r timeseries.Range, threshold int) []models.PortfolioSnapshot {
	if threshold <= 0 {
		threshold = DefaultDownsampleThreshold
	}
	if len(snaps) <= threshold {
		return sortedCopy(snaps)
	}

	width := BucketWidth(r).Milliseconds()
	latest := make(map[int64]models.PortfolioSnapshot)
	for _, s := range snaps {
		key := s.Timestamp.UnixMilli() / width
		if cur, ok := latest[key]; !ok || !s.Timestamp.Before(cur.Timestamp) {
			latest[key] = s
		}
	}

	out := make([]models.PortfolioSnapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func sortedCopy(snaps []models.PortfolioSnapshot) []models.PortfolioSnapshot {
	out := append([]models.PortfolioSnapshot(nil), snaps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// MapToSections assigns one snapshot to every section: the latest at or
// before it, carrying the last one forward across gaps, or the first
// snapshot before any has been seen. Each output carries the section's
// timestamp. snaps must be ascending.
func MapToSections(snaps []models.PortfolioSnapshot, sections []time.Time) []models.PortfolioSnapshot {
	if len(snaps) == 0 {
		return []models.PortfolioSnapshot{}
	}

	out := make([]models.PortfolioSnapshot, 0, len(sections))
	i := 0
	for _, section := range sections {
		for i+1 < len(snaps) && !snaps[i+1].Timestamp.After(section) {
			i++
		}
		// snaps[i] is the latest at or before section, or snaps[0] when
		// nothing precedes it
		s := snaps[i]
		s.Timestamp = section
		out = append(out, s)
	}
	return out
}
