package common

import "github.com/google/uuid"

// Record ID prefixes.
const (
	TradeIDPrefix    = "tr"
	WalletTxIDPrefix = "wt"
	SnapshotIDPrefix = "ps"
)

// NewID returns prefix_ followed by the first 8 hex characters of a random UUID.
func NewID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}
