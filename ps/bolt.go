package ps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nickyhof/AtlasDB/core"
	"go.etcd.io/bbolt"
)

const (
	metaFile      = "_atlas_meta.db"
	metaBucket    = "_atlas_meta"
	recordsBucket = "records"
	versionKey    = "version"
	catalogKey    = "catalog"
)

var boltOptions = &bbolt.Options{Timeout: time.Second}

// BoltEngine keeps every table in its own bbolt file inside a directory,
// next to a metadata file holding the schema version and catalog. Each
// table has its own writer, so writes to different tables run in parallel.
type BoltEngine struct {
	dir  string
	meta *bbolt.DB

	mu     sync.RWMutex
	tables map[string]*boltTable
	closed atomic.Bool
}

type boltTable struct {
	decl   core.Table
	db     *bbolt.DB
	writer chan struct{} // one slot: held for the duration of an Update
}

// NewBoltEngine opens, or creates, a bolt engine in directory dir.
func NewBoltEngine(dir string) (*BoltEngine, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	meta, err := bbolt.Open(filepath.Join(dir, metaFile), 0o600, boltOptions)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	engine := &BoltEngine{dir: dir, meta: meta, tables: make(map[string]*boltTable)}

	var catalog catalogFile
	err = meta.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		catalog, err = readMeta(tx)
		return err
	})
	if err != nil {
		meta.Close()
		return nil, err
	}

	for _, decl := range catalog.Tables {
		table, err := engine.openTable(decl)
		if err != nil {
			engine.closeAll()
			return nil, err
		}
		engine.tables[decl.Name] = table
	}
	return engine, nil
}

func (b *BoltEngine) tablePath(name string) string {
	return filepath.Join(b.dir, name+".db")
}

func (b *BoltEngine) openTable(decl core.Table) (*boltTable, error) {
	db, err := bbolt.Open(b.tablePath(decl.Name), 0o600, boltOptions)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", decl.Name, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create records bucket for %s: %w", decl.Name, err)
	}
	return &boltTable{decl: decl, db: db, writer: make(chan struct{}, 1)}, nil
}

func (b *BoltEngine) ensureOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b == nil || b.meta == nil {
		return ErrNotInitialized
	}
	if b.closed.Load() {
		return ErrClosed
	}
	return nil
}

func readMeta(tx *bbolt.Tx) (catalogFile, error) {
	meta := tx.Bucket([]byte(metaBucket))
	if meta == nil {
		return catalogFile{}, fmt.Errorf("meta bucket is missing")
	}

	var catalog catalogFile
	if raw := meta.Get([]byte(versionKey)); raw != nil {
		version, err := strconv.Atoi(string(raw))
		if err != nil {
			return catalogFile{}, fmt.Errorf("parse schema version: %w", err)
		}
		catalog.Version = version
	}
	if raw := meta.Get([]byte(catalogKey)); raw != nil {
		if err := json.Unmarshal(raw, &catalog.Tables); err != nil {
			return catalogFile{}, fmt.Errorf("unmarshal catalog: %w", err)
		}
	}
	return catalog, nil
}

func (b *BoltEngine) readCatalog(ctx context.Context) (catalogFile, error) {
	if err := b.ensureOpen(ctx); err != nil {
		return catalogFile{}, err
	}
	var catalog catalogFile
	err := b.meta.View(func(tx *bbolt.Tx) error {
		var err error
		catalog, err = readMeta(tx)
		return err
	})
	return catalog, err
}

func (b *BoltEngine) Version(ctx context.Context) (int, error) {
	catalog, err := b.readCatalog(ctx)
	return catalog.Version, err
}

func (b *BoltEngine) Catalog(ctx context.Context) ([]core.Table, error) {
	catalog, err := b.readCatalog(ctx)
	return catalog.Tables, err
}

type boltUpgradeTx struct {
	oldVersion int
	catalog    catalogFile
	created    []core.Table
}

func (u *boltUpgradeTx) OldVersion() int {
	return u.oldVersion
}

func (u *boltUpgradeTx) HasTable(name string) bool {
	_, ok := u.catalog.table(name)
	return ok
}

func (u *boltUpgradeTx) CreateTable(table core.Table) error {
	if err := validTableFileName(table.Name); err != nil {
		return err
	}
	if u.HasTable(table.Name) {
		return fmt.Errorf("%w: %s", ErrStoreExists, table.Name)
	}
	u.catalog.Tables = append(u.catalog.Tables, table)
	u.created = append(u.created, table)
	return nil
}

// validTableFileName accepts names that are safe to use as a file name.
func validTableFileName(name string) error {
	if name == "" {
		return fmt.Errorf("table name must not be empty")
	}
	if name == metaBucket {
		return fmt.Errorf("table name %s is reserved", metaBucket)
	}
	for _, r := range name {
		ok := r == '_' || r == '-' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
		if !ok {
			return fmt.Errorf("table name %q has characters not allowed in a file name", name)
		}
	}
	return nil
}

// Upgrade runs fn, opens a file for every table it created and records the
// catalog and version in the metadata file. When any step fails the new
// table files are removed and the catalog is left as it was.
func (b *BoltEngine) Upgrade(ctx context.Context, version int, fn func(tx UpgradeTx) error) error {
	if err := b.ensureOpen(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var opened []*boltTable
	err := b.meta.Update(func(tx *bbolt.Tx) error {
		catalog, err := readMeta(tx)
		if err != nil {
			return err
		}
		if version <= catalog.Version {
			return fmt.Errorf("%w: %d -> %d", ErrVersionNotIncreasing, catalog.Version, version)
		}

		upgrade := &boltUpgradeTx{oldVersion: catalog.Version, catalog: catalog.clone()}
		if err := fn(upgrade); err != nil {
			return err
		}
		for _, decl := range upgrade.created {
			table, err := b.openTable(decl)
			if err != nil {
				return err
			}
			opened = append(opened, table)
		}

		payload, err := json.Marshal(upgrade.catalog.Tables)
		if err != nil {
			return fmt.Errorf("marshal catalog: %w", err)
		}
		meta := tx.Bucket([]byte(metaBucket))
		if err := meta.Put([]byte(catalogKey), payload); err != nil {
			return err
		}
		return meta.Put([]byte(versionKey), []byte(strconv.Itoa(version)))
	})
	if err != nil {
		for _, table := range opened {
			table.db.Close()
			os.Remove(b.tablePath(table.decl.Name))
		}
		return err
	}

	for _, table := range opened {
		b.tables[table.decl.Name] = table
	}
	return nil
}

type boltTx struct {
	table  core.Table
	bucket *bbolt.Bucket
}

func (t *boltTx) Table() core.Table {
	return t.table
}

func (t *boltTx) Get(key string) ([]byte, bool, error) {
	value := t.bucket.Get([]byte(key))
	if value == nil {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (t *boltTx) Scan(fn func(key string, value []byte) error) error {
	return t.bucket.ForEach(func(k, v []byte) error {
		if v == nil {
			return nil
		}
		return fn(string(k), v)
	})
}

func (t *boltTx) Put(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("record key must not be empty")
	}
	return t.bucket.Put([]byte(key), value)
}

func (t *boltTx) Delete(key string) error {
	return t.bucket.Delete([]byte(key))
}

func (b *BoltEngine) table(ctx context.Context, name string) (*boltTable, error) {
	if err := b.ensureOpen(ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	table, ok := b.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, name)
	}
	return table, nil
}

func (table *boltTable) bind(tx *bbolt.Tx) (*boltTx, error) {
	bucket := tx.Bucket([]byte(recordsBucket))
	if bucket == nil {
		return nil, fmt.Errorf("%w: records of %s are missing", ErrStoreNotFound, table.decl.Name)
	}
	return &boltTx{table: table.decl, bucket: bucket}, nil
}

func (b *BoltEngine) View(ctx context.Context, name string, fn func(tx ReadTx) error) error {
	table, err := b.table(ctx, name)
	if err != nil {
		return err
	}
	return table.db.View(func(tx *bbolt.Tx) error {
		t, err := table.bind(tx)
		if err != nil {
			return err
		}
		return fn(t)
	})
}

// Update waits for the table's writer slot, giving up when ctx ends, and
// runs fn in one bbolt write transaction on that table's file.
func (b *BoltEngine) Update(ctx context.Context, name string, fn func(tx WriteTx) error) error {
	table, err := b.table(ctx, name)
	if err != nil {
		return err
	}
	select {
	case table.writer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-table.writer }()

	return table.db.Update(func(tx *bbolt.Tx) error {
		t, err := table.bind(tx)
		if err != nil {
			return err
		}
		return fn(t)
	})
}

// History always returns an empty list, whatever the limit: bbolt keeps no
// past versions. The table must still exist.
func (b *BoltEngine) History(ctx context.Context, name string, _ int) ([]Transaction, error) {
	if _, err := b.table(ctx, name); err != nil {
		return nil, err
	}
	return []Transaction{}, nil
}

// Close closes the metadata file and every table file.
func (b *BoltEngine) Close() error {
	if b == nil || b.meta == nil {
		return nil
	}
	if b.closed.Swap(true) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeAll()
}

func (b *BoltEngine) closeAll() error {
	var errList []error
	for _, table := range b.tables {
		errList = append(errList, table.db.Close())
	}
	errList = append(errList, b.meta.Close())
	return errors.Join(errList...)
}
