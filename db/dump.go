package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nickyhof/AtlasDB/core"
	"github.com/nickyhof/AtlasDB/errs"
	"github.com/nickyhof/AtlasDB/ps"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dump is the portable snapshot written by Store.Dump.
type Dump struct {
	Version int                   `json:"version"`
	Tables  map[string][]core.Row `json:"tables"`
}

// Dump writes every table to url as one JSON document. Tables are read
// concurrently, each in its own read transaction. It returns the number
// of rows written.
func (s *Store) Dump(ctx context.Context, url string) (int, error) {
	start := time.Now()
	engine, err := s.conn.Open(ctx)
	if err != nil {
		return 0, err
	}

	version, err := engine.Version(ctx)
	if err != nil {
		return 0, classify(err)
	}
	tables, err := engine.Catalog(ctx)
	if err != nil {
		return 0, classify(err)
	}

	rows := make([][]core.Row, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range tables {
		g.Go(func() error {
			var err error
			rows[i], err = s.executeSelect(gctx, engine, selectAll(table.Name))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, classify(err)
	}

	dump := Dump{Version: version, Tables: make(map[string][]core.Row, len(tables))}
	total := 0
	for i, table := range tables {
		dump.Tables[table.Name] = rows[i]
		total += len(rows[i])
	}

	target, err := parseLocation(url)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidInput, "dump target", err)
	}
	sink, err := target.create(ctx, s.options.Remote)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidInput, "open dump target", err)
	}
	encoder := json.NewEncoder(sink)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(dump); err != nil {
		sink.Abort()
		return 0, errs.Wrap(errs.KindEngine, "write dump", err)
	}
	if err := sink.Commit(); err != nil {
		return 0, errs.Wrap(errs.KindEngine, "write dump", err)
	}

	s.logger.Info("dump written",
		zap.String("url", url),
		zap.Int("tables", len(tables)),
		zap.Int("rows", total),
		zap.Duration("elapsed", time.Since(start)))
	return total, nil
}

// Restore upserts every row of the dump at url, one write transaction per
// table. Every table in the dump must exist. It returns the number of rows
// restored.
func (s *Store) Restore(ctx context.Context, url string) (int, error) {
	start := time.Now()
	engine, err := s.conn.Open(ctx)
	if err != nil {
		return 0, err
	}

	source, err := parseLocation(url)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidInput, "dump source", err)
	}
	r, err := source.open(ctx, s.options.Remote)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidInput, "open dump source", err)
	}
	defer r.Close()

	var dump Dump
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	if err := decoder.Decode(&dump); err != nil {
		return 0, errs.Wrap(errs.KindInvalidInput, "read dump", err)
	}

	current, err := engine.Version(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if dump.Version > current {
		return 0, errs.Newf(errs.KindInvalidInput, "dump has schema version %d, store is at %d", dump.Version, current)
	}

	total := 0
	for name, rows := range dump.Tables {
		err := engine.Update(ctx, name, func(tx ps.WriteTx) error {
			pk := tx.Table().PrimaryKey
			for _, row := range rows {
				key, err := row.Key(pk)
				if err != nil {
					return errs.Wrap(errs.KindInvalidInput, fmt.Sprintf("row in %s", name), err)
				}
				data, err := row.Encode()
				if err != nil {
					return errs.Wrap(errs.KindInvalidInput, fmt.Sprintf("row in %s", name), err)
				}
				if err := tx.Put(key, data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return total, classify(err)
		}
		total += len(rows)
	}

	s.logger.Info("dump restored",
		zap.String("url", url),
		zap.Int("tables", len(dump.Tables)),
		zap.Int("rows", total),
		zap.Duration("elapsed", time.Since(start)))
	return total, nil
}
