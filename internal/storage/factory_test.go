package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/folio/internal/common"
)

func TestNewStorageManager_UnknownBackend(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = "badger"

	_, err := NewStorageManager(common.NewSilentLogger(), cfg)
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestNewStorageManager_PostgresNeedsDSN(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = BackendPostgres
	cfg.Storage.DSN = ""

	_, err := NewStorageManager(common.NewSilentLogger(), cfg)
	assert.ErrorContains(t, err, "storage.dsn")
}
