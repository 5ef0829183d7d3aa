package surrealdb

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/folio/internal/interfaces"
)

// errVersionConflict is raised by the wallet version guard when another
// writer committed first.
var errVersionConflict = errors.New("wallet version conflict")

const versionConflictMarker = "folio_version_conflict"

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

func isMissingTableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "table") && strings.Contains(msg, "does not exist")
}

// wrapReadErr maps a missing table onto interfaces.ErrTableMissing.
func wrapReadErr(op string, err error) error {
	if isMissingTableError(err) {
		return fmt.Errorf("%s: %w", op, interfaces.ErrTableMissing)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// checkResults surfaces statement-level failures of a multi-statement query.
func checkResults[T any](results *[]surrealdb.QueryResult[T]) error {
	if results == nil {
		return nil
	}
	for i, r := range *results {
		if r.Status != "" && r.Status != "OK" {
			return fmt.Errorf("statement %d failed: %v", i, r.Result)
		}
	}
	return nil
}

func isVersionConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), versionConflictMarker)
}

// keyedMutex serialises writers per key within this process. The version
// guard in the write transaction covers writers in other processes.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
