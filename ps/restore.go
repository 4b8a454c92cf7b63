package ps

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/storer"
)

// Revert moves a table back to the state it had after transaction id. The
// revert is itself a new commit on the table's branch, so the transactions
// it undoes stay in the history.
func (p *GitEngine) Revert(ctx context.Context, table, id string) (Transaction, error) {
	if err := p.ensureOpen(ctx); err != nil {
		return Transaction{}, err
	}
	lock, decl, err := p.tableLock(table)
	if err != nil {
		return Transaction{}, err
	}

	lock.Lock()
	defer lock.Unlock()

	head, err := p.resolveRef(tableRef(decl.Name))
	if err != nil {
		return Transaction{}, err
	}

	target, err := p.findTransaction(ctx, head, id)
	if err != nil {
		return Transaction{}, fmt.Errorf("%s@%s: %w", decl.Name, id, err)
	}
	if target.Hash == head {
		return transactionFromCommit(target), nil
	}

	message := fmt.Sprintf("Reverting %s to %s", decl.Name, target.Hash.String()[:7])
	txn, err := p.createCommit(tableRef(decl.Name), head, target.TreeHash, message, authorFrom(ctx, p.identity))
	if err != nil {
		return Transaction{}, err
	}
	txn.Message = message
	return txn, nil
}

// findTransaction looks id up in the log reachable from head, so a table
// can only be reverted to one of its own transactions.
func (p *GitEngine) findTransaction(ctx context.Context, head plumbing.Hash, id string) (*object.Commit, error) {
	if head == plumbing.ZeroHash || !isCommitID(id) {
		return nil, ErrTransactionNotFound
	}
	want := plumbing.NewHash(id)

	p.mu.Lock()
	defer p.mu.Unlock()

	cIter, err := p.repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer cIter.Close()

	var found *object.Commit
	err = cIter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Hash == want {
			found = c
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrTransactionNotFound
	}
	return found, nil
}

func isCommitID(id string) bool {
	if len(id) != 40 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
