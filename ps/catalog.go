package ps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/nickyhof/AtlasDB/core"
)

// catalogFile is the document stored on the catalog branch.
type catalogFile struct {
	Version int          `json:"version"`
	Tables  []core.Table `json:"tables"`
}

func (c catalogFile) table(name string) (core.Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return core.Table{}, false
}

func (c catalogFile) clone() catalogFile {
	return catalogFile{
		Version: c.Version,
		Tables:  append([]core.Table(nil), c.Tables...),
	}
}

// loadCatalog returns the cached catalog, reading it from the catalog
// branch on first use.
func (p *GitEngine) loadCatalog() (catalogFile, error) {
	p.catalogMu.RLock()
	if p.loaded {
		catalog := p.catalog.clone()
		p.catalogMu.RUnlock()
		return catalog, nil
	}
	p.catalogMu.RUnlock()

	p.catalogMu.Lock()
	defer p.catalogMu.Unlock()
	if p.loaded {
		return p.catalog.clone(), nil
	}

	catalog, err := p.readCatalog()
	if err != nil {
		return catalogFile{}, err
	}
	p.catalog = catalog
	p.loaded = true
	return catalog.clone(), nil
}

func (p *GitEngine) readCatalog() (catalogFile, error) {
	head, err := p.resolveRef(catalogRef)
	if err != nil {
		return catalogFile{}, err
	}
	entries, err := p.treeEntries(head)
	if err != nil {
		return catalogFile{}, err
	}
	hash, ok := entries[catalogFileName]
	if !ok {
		return catalogFile{}, nil
	}

	data, err := p.readBlob(hash)
	if err != nil {
		return catalogFile{}, err
	}

	var catalog catalogFile
	if err := json.Unmarshal(data, &catalog); err != nil {
		return catalogFile{}, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	return catalog, nil
}

type gitUpgradeTx struct {
	engine     *GitEngine
	oldVersion int
	catalog    catalogFile
	created    []core.Table
}

func (tx *gitUpgradeTx) OldVersion() int {
	return tx.oldVersion
}

func (tx *gitUpgradeTx) HasTable(name string) bool {
	_, ok := tx.catalog.table(name)
	return ok
}

func (tx *gitUpgradeTx) CreateTable(table core.Table) error {
	if table.Name == "" {
		return fmt.Errorf("table name must not be empty")
	}
	if tx.HasTable(table.Name) {
		return fmt.Errorf("%w: %s", ErrStoreExists, table.Name)
	}
	tx.catalog.Tables = append(tx.catalog.Tables, table)
	tx.created = append(tx.created, table)
	return nil
}

// Upgrade runs fn against a copy of the catalog. Nothing is written unless
// fn succeeds; then every new table gets its branch and the catalog branch
// records the new version in one commit.
func (p *GitEngine) Upgrade(ctx context.Context, version int, fn func(tx UpgradeTx) error) error {
	if err := p.ensureOpen(ctx); err != nil {
		return err
	}
	if _, err := p.loadCatalog(); err != nil {
		return err
	}

	p.catalogMu.Lock()
	defer p.catalogMu.Unlock()

	current := p.catalog
	if version <= current.Version {
		return fmt.Errorf("%w: %d -> %d", ErrVersionNotIncreasing, current.Version, version)
	}

	tx := &gitUpgradeTx{engine: p, oldVersion: current.Version, catalog: current.clone()}
	if err := fn(tx); err != nil {
		return err
	}

	for _, table := range tx.created {
		if err := p.initTableRef(table.Name); err != nil {
			return err
		}
	}

	next := tx.catalog
	next.Version = version
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	head, err := p.resolveRef(catalogRef)
	if err != nil {
		return err
	}
	blob, err := p.createBlob(data)
	if err != nil {
		return err
	}
	tree, err := p.buildTree(map[string]plumbing.Hash{catalogFileName: blob})
	if err != nil {
		return err
	}
	message := fmt.Sprintf("Upgrading schema to version %d", version)
	if _, err := p.createCommit(catalogRef, head, tree, message, p.identity); err != nil {
		return err
	}

	p.catalog = next
	p.loaded = true
	return nil
}

// initTableRef points a new table's branch at an empty commit. A branch
// left behind by an interrupted upgrade is reused as is.
func (p *GitEngine) initTableRef(table string) error {
	head, err := p.resolveRef(tableRef(table))
	if err != nil {
		return err
	}
	if head != plumbing.ZeroHash {
		return nil
	}

	tree, err := p.buildTree(nil)
	if err != nil {
		return err
	}
	_, err = p.createCommit(tableRef(table), plumbing.ZeroHash, tree, fmt.Sprintf("Creating table %s", table), p.identity)
	return err
}
