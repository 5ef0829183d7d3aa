package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	tcommon "github.com/bobmcallan/folio/tests/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	sc := tcommon.StartSurrealDB(t)

	return &common.Config{
		Environment: "test",
		Storage: common.StorageConfig{
			Backend:   "surrealdb",
			Address:   sc.Address(),
			Namespace: "folio_test",
			Database:  fmt.Sprintf("mgr_%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), time.Now().UnixNano()%100000),
			Username:  "root",
			Password:  "root",
		},
	}
}

func TestNewManager(t *testing.T) {
	cfg := testConfig(t)
	logger := common.NewSilentLogger()

	mgr, err := NewManager(logger, cfg)
	require.NoError(t, err)
	defer mgr.Close()

	assert.NotNil(t, mgr.LedgerStore())
	assert.NotNil(t, mgr.SnapshotStore())
	assert.NotNil(t, mgr.PriceStore())
	assert.Equal(t, "surrealdb", mgr.Backend())
}

func TestNewManager_SchemaIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	logger := common.NewSilentLogger()

	first, err := NewManager(logger, cfg)
	require.NoError(t, err)
	_, err = first.PriceStore().SavePriceSamples(context.Background(), "AAPL", []models.PriceSample{{T: time.Now().UTC(), C: 1}})
	require.NoError(t, err)
	first.Close()

	second, err := NewManager(logger, cfg)
	require.NoError(t, err)
	defer second.Close()

	latest, err := second.PriceStore().LatestPriceSample(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1.0, latest.C)
}

func TestNewManager_BadAddress(t *testing.T) {
	cfg := &common.Config{Storage: common.StorageConfig{Address: "ws://127.0.0.1:1/rpc"}}
	_, err := NewManager(common.NewSilentLogger(), cfg)
	assert.Error(t, err)
}
