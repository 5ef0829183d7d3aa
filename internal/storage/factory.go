// Package storage selects the storage backend configured for folio.
package storage

import (
	"fmt"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/storage/postgres"
	"github.com/bobmcallan/folio/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendSurrealDB = "surrealdb"
	BackendPostgres  = "postgres"
)

// NewStorageManager creates the storage manager for config.Storage.Backend.
// Supported backends: "surrealdb" (default), "postgres".
func NewStorageManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := config.Storage.Backend
	if backend == "" {
		backend = BackendSurrealDB
	}

	switch backend {
	case BackendSurrealDB:
		return surrealdb.NewManager(logger, config)

	case BackendPostgres:
		return postgres.NewManager(logger, config)

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: surrealdb, postgres)", backend)
	}
}
