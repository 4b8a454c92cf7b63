package ps

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"
	"github.com/nickyhof/AtlasDB/core"
)

// GitEngine stores tables as branches of a Git repository.
type GitEngine struct {
	repo         *git.Repository
	identity     core.Identity
	isMemoryMode bool

	// mu guards every access to the repository storer, which is not safe
	// for concurrent use. It is held per object operation, never for a
	// whole transaction.
	mu sync.Mutex

	// catalogMu guards catalog and tableLocks.
	catalogMu  sync.RWMutex
	catalog    catalogFile
	loaded     bool
	tableLocks map[string]*sync.RWMutex

	closed bool
}

func NewMemoryGitEngine(identity core.Identity) (*GitEngine, error) {
	wt := memfs.New()
	storer := memory.NewStorage()

	repo, err := git.Init(storer, git.WithWorkTree(wt))
	if err != nil {
		return nil, err
	}

	return newGitEngine(repo, identity, true), nil
}

func NewFileGitEngine(baseDir string, identity core.Identity) (*GitEngine, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	wt := osfs.New(baseDir)
	fs, err := wt.Chroot(".git")
	if err != nil {
		return nil, err
	}

	storer := filesystem.NewStorageWithOptions(
		fs,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	var repo *git.Repository

	if _, statErr := os.Stat(fs.Root()); statErr != nil {
		repo, err = git.Init(storer, git.WithWorkTree(wt))
		if err != nil {
			return nil, err
		}
	} else {
		repo, err = git.Open(storer, wt)
		if err != nil {
			return nil, err
		}
	}

	return newGitEngine(repo, identity, false), nil
}

func newGitEngine(repo *git.Repository, identity core.Identity, memoryMode bool) *GitEngine {
	return &GitEngine{
		repo:         repo,
		identity:     identity,
		isMemoryMode: memoryMode,
		tableLocks:   make(map[string]*sync.RWMutex),
	}
}

// IsInitialized returns true if the engine has a valid repository
func (p *GitEngine) IsInitialized() bool {
	return p != nil && p.repo != nil
}

func (p *GitEngine) ensureOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.IsInitialized() {
		return ErrNotInitialized
	}
	p.catalogMu.RLock()
	closed := p.closed
	p.catalogMu.RUnlock()
	if closed {
		return ErrClosed
	}
	return nil
}

func (p *GitEngine) Version(ctx context.Context) (int, error) {
	if err := p.ensureOpen(ctx); err != nil {
		return 0, err
	}
	catalog, err := p.loadCatalog()
	if err != nil {
		return 0, err
	}
	return catalog.Version, nil
}

func (p *GitEngine) Catalog(ctx context.Context) ([]core.Table, error) {
	if err := p.ensureOpen(ctx); err != nil {
		return nil, err
	}
	catalog, err := p.loadCatalog()
	if err != nil {
		return nil, err
	}
	return append([]core.Table(nil), catalog.Tables...), nil
}

// tableLock returns the lock and declaration for a catalogued table.
func (p *GitEngine) tableLock(name string) (*sync.RWMutex, core.Table, error) {
	catalog, err := p.loadCatalog()
	if err != nil {
		return nil, core.Table{}, err
	}
	table, ok := catalog.table(name)
	if !ok {
		return nil, core.Table{}, fmt.Errorf("%w: %s", ErrStoreNotFound, name)
	}

	p.catalogMu.Lock()
	defer p.catalogMu.Unlock()
	lock, ok := p.tableLocks[name]
	if !ok {
		lock = &sync.RWMutex{}
		p.tableLocks[name] = lock
	}
	return lock, table, nil
}

func (p *GitEngine) View(ctx context.Context, table string, fn func(tx ReadTx) error) error {
	if err := p.ensureOpen(ctx); err != nil {
		return err
	}
	lock, decl, err := p.tableLock(table)
	if err != nil {
		return err
	}

	lock.RLock()
	defer lock.RUnlock()

	entries, _, err := p.tableEntries(decl.Name)
	if err != nil {
		return err
	}

	return fn(&gitReadTx{engine: p, table: decl, entries: entries})
}

func (p *GitEngine) Update(ctx context.Context, table string, fn func(tx WriteTx) error) error {
	if err := p.ensureOpen(ctx); err != nil {
		return err
	}
	lock, decl, err := p.tableLock(table)
	if err != nil {
		return err
	}

	lock.Lock()
	defer lock.Unlock()

	entries, head, err := p.tableEntries(decl.Name)
	if err != nil {
		return err
	}

	tx := newWriteBuffer(&gitReadTx{engine: p, table: decl, entries: entries})
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	_, err = tx.Commit(head, authorFrom(ctx, p.identity))
	return err
}

// Close releases the repository. Further calls fail with ErrClosed.
func (p *GitEngine) Close() error {
	p.catalogMu.Lock()
	defer p.catalogMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	p.mu.Lock()
	defer p.mu.Unlock()
	if closer, ok := p.repo.Storer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
