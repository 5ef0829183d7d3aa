package snapshot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/timeseries"
)

var epoch = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func snapAt(offset time.Duration, tpv int64) models.PortfolioSnapshot {
	return models.PortfolioSnapshot{Timestamp: epoch.Add(offset), TPV: decimal.NewFromInt(tpv)}
}

func TestMapToSections_CarryForward(t *testing.T) {
	snaps := []models.PortfolioSnapshot{snapAt(0, 100), snapAt(100*time.Second, 200)}
	var sections []time.Time
	for _, s := range []int{0, 25, 50, 75, 100, 125} {
		sections = append(sections, epoch.Add(time.Duration(s)*time.Second))
	}

	mapped := MapToSections(snaps, sections)
	require.Len(t, mapped, 6)

	want := []int64{100, 100, 100, 100, 200, 200}
	for i, m := range mapped {
		assert.True(t, m.TPV.Equal(decimal.NewFromInt(want[i])), "section %d tpv = %s", i, m.TPV)
		assert.Equal(t, sections[i], m.Timestamp, "section %d must carry the section time", i)
	}
	assert.Equal(t, epoch.Add(100*time.Second), snaps[1].Timestamp, "input not mutated")
}

func TestMapToSections_FirstSnapshotBeforeAnySeen(t *testing.T) {
	snaps := []models.PortfolioSnapshot{snapAt(time.Hour, 7)}
	mapped := MapToSections(snaps, []time.Time{epoch, epoch.Add(2 * time.Hour)})

	require.Len(t, mapped, 2)
	assert.True(t, mapped[0].TPV.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, epoch, mapped[0].Timestamp)
}

func TestMapToSections_Empty(t *testing.T) {
	mapped := MapToSections(nil, []time.Time{epoch})
	assert.NotNil(t, mapped)
	assert.Empty(t, mapped)
}

func TestDownsample_UnderThresholdSortsOnly(t *testing.T) {
	snaps := []models.PortfolioSnapshot{snapAt(time.Minute, 2), snapAt(0, 1)}
	out := Downsample(snaps, timeseries.Range1D, 300)

	require.Len(t, out, 2)
	assert.True(t, out[0].Timestamp.Before(out[1].Timestamp))
}

func TestDownsample_KeepsLastPerBucket(t *testing.T) {
	// 400 snapshots one minute apart over a 1M range: 1h buckets.
	var snaps []models.PortfolioSnapshot
	for i := 399; i >= 0; i-- {
		snaps = append(snaps, snapAt(time.Duration(i)*time.Minute, int64(i)))
	}

	out := Downsample(snaps, timeseries.Range1M, 300)
	require.Len(t, out, 7) // minutes 0..399 span hours 0..6

	for i := 1; i < len(out); i++ {
		assert.True(t, out[i-1].Timestamp.Before(out[i].Timestamp))
	}
	assert.True(t, out[0].TPV.Equal(decimal.NewFromInt(59)), "bucket keeps its latest snapshot")
	assert.True(t, out[6].TPV.Equal(decimal.NewFromInt(399)))
}

func TestBucketWidth(t *testing.T) {
	assert.Equal(t, time.Hour, BucketWidth(timeseries.Range3M))
	assert.Equal(t, 6*time.Hour, BucketWidth(timeseries.Range1Y))
	assert.Equal(t, 24*time.Hour, BucketWidth(timeseries.RangeAll))
	assert.Equal(t, 30*time.Minute, BucketWidth(timeseries.Range1W))
}
