package valuation

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bobmcallan/folio/internal/models"
)

// BuildHoldings reduces stored positions to the open holdings fed to
// mark-to-market. A missing total cost falls back to avg * shares.
func BuildHoldings(positions []models.Position) map[string]models.Holding {
	out := make(map[string]models.Holding, len(positions))
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		cost := p.TotalCost
		if cost.IsZero() {
			cost = p.AvgPrice.Mul(p.TotalShares)
		}
		out[p.Symbol] = models.Holding{
			Symbol:    p.Symbol,
			Shares:    p.TotalShares,
			AvgPrice:  p.AvgPrice,
			CostBasis: cost,
		}
	}
	return out
}

// HoldingsKey is a content hash over the open positions. Two position sets
// produce the same key exactly when they value identically.
func HoldingsKey(positions []models.Position) string {
	open := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Symbol < open[j].Symbol })

	h := sha256.New()
	for _, p := range open {
		h.Write([]byte(p.Symbol))
		h.Write([]byte{0})
		h.Write([]byte(p.TotalShares.String()))
		h.Write([]byte{0})
		h.Write([]byte(p.AvgPrice.String()))
		h.Write([]byte{0})
		h.Write([]byte(p.TotalCost.String()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HoldingsCache memoises BuildHoldings by content hash.
type HoldingsCache struct {
	entries *lru.Cache[string, map[string]models.Holding]
}

// NewHoldingsCache creates a bounded cache. size <= 0 uses 100.
func NewHoldingsCache(size int) (*HoldingsCache, error) {
	if size <= 0 {
		size = 100
	}
	c, err := lru.New[string, map[string]models.Holding](size)
	if err != nil {
		return nil, err
	}
	return &HoldingsCache{entries: c}, nil
}

// Holdings returns the holdings for positions and their content key.
// Callers must not mutate the returned map.
func (c *HoldingsCache) Holdings(positions []models.Position) (map[string]models.Holding, string) {
	key := HoldingsKey(positions)
	if h, ok := c.entries.Get(key); ok {
		return h, key
	}
	h := BuildHoldings(positions)
	c.entries.Add(key, h)
	return h, key
}

// Len reports the number of cached entries.
func (c *HoldingsCache) Len() int {
	return c.entries.Len()
}
