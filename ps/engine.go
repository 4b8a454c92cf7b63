package ps

import (
	"context"
	"errors"

	"github.com/nickyhof/AtlasDB/core"
)

var (
	ErrNotInitialized       = errors.New("persistence layer not initialized")
	ErrClosed               = errors.New("engine is closed")
	ErrStoreNotFound        = errors.New("object store not found")
	ErrStoreExists          = errors.New("object store already exists")
	ErrVersionNotIncreasing = errors.New("schema version must increase")
	ErrTransactionNotFound  = errors.New("transaction not found")
)

// Engine is the key-value engine underneath the record store. Each table
// is an object store addressed by name; every read or write happens inside
// a transaction scoped to exactly one store.
type Engine interface {
	// Version returns the schema version recorded in the engine, 0 if the
	// engine has never been upgraded.
	Version(ctx context.Context) (int, error)

	// Catalog returns the stores created so far.
	Catalog(ctx context.Context) ([]core.Table, error)

	// Upgrade runs fn in a versionchange transaction and records version.
	// version must be greater than the current one.
	Upgrade(ctx context.Context, version int, fn func(tx UpgradeTx) error) error

	// View runs fn in a read-only transaction on one store.
	View(ctx context.Context, table string, fn func(tx ReadTx) error) error

	// Update runs fn in a read-write transaction on one store. Writes are
	// applied only if fn returns nil.
	Update(ctx context.Context, table string, fn func(tx WriteTx) error) error

	// History lists committed transactions on a store, newest first.
	// Engines that keep no history return an empty list.
	History(ctx context.Context, table string, limit int) ([]Transaction, error)

	Close() error
}

// Reverter is implemented by engines that keep per-table history and can
// move a table back to one of its transactions.
type Reverter interface {
	Revert(ctx context.Context, table, id string) (Transaction, error)
}

// UpgradeTx is handed to the upgrade callback.
type UpgradeTx interface {
	// OldVersion is the version before this upgrade.
	OldVersion() int
	HasTable(name string) bool
	CreateTable(table core.Table) error
}

type ReadTx interface {
	Table() core.Table
	Get(key string) (value []byte, exists bool, err error)
	// Scan visits every record in ascending key order. value is only valid
	// for the duration of the callback.
	Scan(fn func(key string, value []byte) error) error
}

type WriteTx interface {
	ReadTx
	Put(key string, value []byte) error
	Delete(key string) error
}
