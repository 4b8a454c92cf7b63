package ps

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/nickyhof/AtlasDB/core"
)

type gitReadTx struct {
	engine  *GitEngine
	table   core.Table
	entries map[string]plumbing.Hash
}

func (tx *gitReadTx) Table() core.Table {
	return tx.table
}

func (tx *gitReadTx) Get(key string) ([]byte, bool, error) {
	hash, ok := tx.entries[key]
	if !ok {
		return nil, false, nil
	}
	data, err := tx.engine.readBlob(hash)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (tx *gitReadTx) Scan(fn func(key string, value []byte) error) error {
	keys := make([]string, 0, len(tx.entries))
	for key := range tx.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		data, err := tx.engine.readBlob(tx.entries[key])
		if err != nil {
			return err
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return nil
}

// Operation represents a single buffered write
type Operation struct {
	Type OperationType
	Key  string
	Data []byte
}

type OperationType int

const (
	WriteOp OperationType = iota
	DeleteOp
)

// writeBuffer batches the writes of one table transaction into a single
// commit. Reads inside the transaction see its own buffered writes.
type writeBuffer struct {
	base       *gitReadTx
	operations []Operation
	pending    map[string]int // key -> index of latest operation
	started    bool
}

func newWriteBuffer(base *gitReadTx) *writeBuffer {
	return &writeBuffer{
		base:    base,
		pending: make(map[string]int),
		started: true,
	}
}

func (tb *writeBuffer) Table() core.Table {
	return tb.base.table
}

func (tb *writeBuffer) Get(key string) ([]byte, bool, error) {
	if idx, ok := tb.pending[key]; ok {
		op := tb.operations[idx]
		if op.Type == DeleteOp {
			return nil, false, nil
		}
		return op.Data, true, nil
	}
	return tb.base.Get(key)
}

func (tb *writeBuffer) Scan(fn func(key string, value []byte) error) error {
	keys := make(map[string]struct{}, len(tb.base.entries)+len(tb.pending))
	for key := range tb.base.entries {
		keys[key] = struct{}{}
	}
	for key := range tb.pending {
		keys[key] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		data, exists, err := tb.Get(key)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return nil
}

// Put adds a write operation to the batch
func (tb *writeBuffer) Put(key string, data []byte) error {
	if !tb.started {
		return fmt.Errorf("transaction not started")
	}
	if key == "" {
		return fmt.Errorf("record key must not be empty")
	}

	tb.pending[key] = len(tb.operations)
	tb.operations = append(tb.operations, Operation{
		Type: WriteOp,
		Key:  key,
		Data: append([]byte(nil), data...),
	})
	return nil
}

// Delete adds a delete operation to the batch
func (tb *writeBuffer) Delete(key string) error {
	if !tb.started {
		return fmt.Errorf("transaction not started")
	}

	tb.pending[key] = len(tb.operations)
	tb.operations = append(tb.operations, Operation{
		Type: DeleteOp,
		Key:  key,
	})
	return nil
}

// Commit applies all batched operations as one commit on the table's
// branch. A batch without operations commits nothing.
func (tb *writeBuffer) Commit(parent plumbing.Hash, author core.Identity) (Transaction, error) {
	if !tb.started {
		return Transaction{}, fmt.Errorf("transaction not started")
	}
	defer tb.Rollback()

	if len(tb.operations) == 0 {
		return Transaction{}, nil
	}

	p := tb.base.engine
	entries := make(map[string]plumbing.Hash, len(tb.base.entries))
	for key, hash := range tb.base.entries {
		entries[key] = hash
	}

	writes, deletes := 0, 0
	for key, idx := range tb.pending {
		op := tb.operations[idx]
		switch op.Type {
		case WriteOp:
			blobHash, err := p.createBlob(op.Data)
			if err != nil {
				return Transaction{}, fmt.Errorf("failed to create blob for %s: %w", key, err)
			}
			entries[key] = blobHash
			writes++
		case DeleteOp:
			delete(entries, key)
			deletes++
		}
	}

	newTree, err := p.buildTree(entries)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to update tree: %w", err)
	}

	message := fmt.Sprintf("%s: %d write(s), %d delete(s)", tb.base.table.Name, writes, deletes)
	txn, err := p.createCommit(tableRef(tb.base.table.Name), parent, newTree, message, author)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to commit: %w", err)
	}

	return txn, nil
}

// Rollback discards all batched operations without committing
func (tb *writeBuffer) Rollback() {
	tb.started = false
	tb.operations = nil
	tb.pending = nil
}

// OperationCount returns the number of pending operations
func (tb *writeBuffer) OperationCount() int {
	return len(tb.operations)
}
