// Package ps provides the persistence layer for AtlasDB.
//
// Two Engine implementations are available. GitEngine is backed by go-git:
// every table is a branch (refs/heads/tables/<name>), every record a blob
// in that branch's tree, and every write transaction a single commit, so
// each table carries its own history. BoltEngine is backed by bbolt: every
// table is its own database file, so writers on different tables never
// wait for each other.
//
// # Memory Persistence
//
// For testing or ephemeral stores:
//
//	engine, err := ps.NewMemoryGitEngine(identity)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Persistence
//
//	engine, err := ps.NewFileGitEngine("/path/to/data", identity)
//	engine, err := ps.NewBoltEngine("/path/to/data/bolt")
//
// # Transactions
//
// Transactions are scoped to a single table:
//
//	err := engine.Update(ctx, "saved_items", func(tx ps.WriteTx) error {
//	    return tx.Put("1", data)
//	})
//
// Writes to different tables never wait on each other's transactions.
// Concurrent writers to the same table are serialized; the last write to a
// key wins.
//
// # History
//
// GitEngine lists a table's transactions with History and implements
// Reverter to move a table back to one of them. The author of a write is
// the engine identity unless the context carries one from WithAuthor.
package ps
