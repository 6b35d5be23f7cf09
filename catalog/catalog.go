// Package catalog is the minimal table/index directory spec §6
// describes: enough bookkeeping to hand back the right TableHeap and
// index Tree for a name, with no durable schema of its own (column
// types and constraints are the query layer's concern per spec §1's
// Non-goals).
//
// Grounded in DaemonDB's storage_engine/catalog, reduced from its
// disk-persisted TableSchema/TableFileMapping pair (JSON files under a
// database root) down to the in-memory name->handle registry this core
// actually needs, and resolving spec §6's Open Question 3 the way the
// teacher already leans: GetTable/GetIndex return nil on a missing
// name rather than an error.
package catalog

import (
	"fmt"
	"sync"

	"coredb/heap"
	"coredb/index/bplustree"
)

// TableInfo bundles a table's heap with the indexes registered against
// it.
type TableInfo struct {
	Name string
	Heap *heap.TableHeap

	mu      sync.Mutex
	indexes map[string]*bplustree.Tree
}

// Catalog is a process-local registry of tables and their indexes.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*TableInfo
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{tables: make(map[string]*TableInfo)}
}

// CreateTable registers a new table backed by h. Returns an error if
// name is already registered.
func (c *Catalog) CreateTable(name string, h *heap.TableHeap) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}
	info := &TableInfo{Name: name, Heap: h, indexes: make(map[string]*bplustree.Tree)}
	c.tables[name] = info
	return info, nil
}

// GetTable returns the table registered under name, or nil if none is.
func (c *Catalog) GetTable(name string) *TableInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[name]
}

// DropTable removes a table's registration. It does not delete the
// underlying heap's pages — callers that want that must do it via the
// table's Heap.Pages() and a disk.Manager truncate, outside this
// registry's scope.
func (c *Catalog) DropTable(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[name]; !exists {
		return false
	}
	delete(c.tables, name)
	return true
}

// TableNames returns every registered table name, in no particular order.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// CreateIndex registers tree as an index named indexName on table.
// Returns an error if table isn't registered or indexName is taken.
func (c *Catalog) CreateIndex(table, indexName string, tree *bplustree.Tree) error {
	info := c.GetTable(table)
	if info == nil {
		return fmt.Errorf("catalog: table %q does not exist", table)
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	if _, exists := info.indexes[indexName]; exists {
		return fmt.Errorf("catalog: index %q already exists on table %q", indexName, table)
	}
	info.indexes[indexName] = tree
	return nil
}

// GetIndex returns the named index on table, or nil if the table or
// the index doesn't exist.
func (c *Catalog) GetIndex(table, indexName string) *bplustree.Tree {
	info := c.GetTable(table)
	if info == nil {
		return nil
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.indexes[indexName]
}
