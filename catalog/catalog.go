// Package catalog keeps table definitions. The planner resolves names through it and the CREATE
// and DROP operators change it. Catalog changes are not versioned: they take effect for every
// transaction at once.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/ngaut/log"
	"github.com/pingcap-incubator/tinydb/storage"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

// TableInfo describes one table.
type TableInfo struct {
	ID     int64
	Name   string
	Schema *types.Schema
}

// Catalog resolves and changes table definitions.
type Catalog interface {
	// GetTable fails with an unresolved error when the table does not exist.
	GetTable(name string) (*TableInfo, error)
	CreateTable(name string, schema *types.Schema, txn *transaction.Txn) (*TableInfo, error)
	DropTable(name string, txn *transaction.Txn) error
	// Tables returns all tables ordered by name.
	Tables() []*TableInfo
}

// MemCatalog is a Catalog held in memory. It creates and drops the storage heap of each table.
type MemCatalog struct {
	store *storage.Store

	mu     sync.RWMutex
	tables map[string]*TableInfo
	nextID int64
}

var _ Catalog = &MemCatalog{}

// NewMemCatalog creates an empty catalog over store.
func NewMemCatalog(store *storage.Store) *MemCatalog {
	return &MemCatalog{
		store:  store,
		tables: make(map[string]*TableInfo),
	}
}

func (c *MemCatalog) GetTable(name string) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return nil, terror.Unresolvedf("table %s does not exist", name)
	}
	return info, nil
}

func (c *MemCatalog) CreateTable(name string, schema *types.Schema, txn *transaction.Txn) (*TableInfo, error) {
	if err := schema.Validate(); err != nil {
		return nil, terror.Execf("invalid definition of table %s: %v", name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := strings.ToLower(name)
	if _, ok := c.tables[k]; ok {
		return nil, terror.Execf("table %s already exists", name)
	}
	if err := c.store.CreateTable(name, schema); err != nil {
		return nil, errors.Trace(err)
	}
	c.nextID++
	info := &TableInfo{ID: c.nextID, Name: name, Schema: schema}
	c.tables[k] = info
	log.Infof("catalog: txn %d created table %s with id %d", startTS(txn), name, info.ID)
	return info, nil
}

func (c *MemCatalog) DropTable(name string, txn *transaction.Txn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := strings.ToLower(name)
	info, ok := c.tables[k]
	if !ok {
		return terror.Unresolvedf("table %s does not exist", name)
	}
	if err := c.store.DropTable(info.Name); err != nil {
		return errors.Trace(err)
	}
	delete(c.tables, k)
	log.Infof("catalog: txn %d dropped table %s", startTS(txn), name)
	return nil
}

func (c *MemCatalog) Tables() []*TableInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]*TableInfo, 0, len(c.tables))
	for _, info := range c.tables {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func startTS(txn *transaction.Txn) uint64 {
	if txn == nil {
		return 0
	}
	return txn.StartTS()
}
