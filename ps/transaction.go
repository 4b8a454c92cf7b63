package ps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/storer"
)

type Transaction struct {
	Id      string    `json:"id"`
	When    time.Time `json:"when"`
	Author  string    `json:"author"` // "Name <email>" format
	Message string    `json:"message,omitempty"`
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, When: %s, Author: %s}", transaction.Id, transaction.When, transaction.Author)
}

func transactionFromCommit(c *object.Commit) Transaction {
	author := ""
	if c.Author.Name != "" || c.Author.Email != "" {
		author = fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email)
	}
	return Transaction{
		Id:      c.Hash.String(),
		When:    c.Committer.When,
		Author:  author,
		Message: c.Message,
	}
}

// History walks the commit log of a table's branch, newest first. A limit
// of zero or less returns every transaction.
func (p *GitEngine) History(ctx context.Context, table string, limit int) ([]Transaction, error) {
	if err := p.ensureOpen(ctx); err != nil {
		return nil, err
	}
	lock, decl, err := p.tableLock(table)
	if err != nil {
		return nil, err
	}

	lock.RLock()
	defer lock.RUnlock()

	head, err := p.resolveRef(tableRef(decl.Name))
	if err != nil {
		return nil, err
	}

	transactions := []Transaction{}
	if head == plumbing.ZeroHash {
		return transactions, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cIter, err := p.repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, fmt.Errorf("failed to read log of %s: %w", decl.Name, err)
	}
	defer cIter.Close()

	err = cIter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(transactions) >= limit {
			return storer.ErrStop
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		transactions = append(transactions, transactionFromCommit(c))
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}

	return transactions, nil
}
