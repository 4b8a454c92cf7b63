package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nickyhof/AtlasDB/core"
	"github.com/nickyhof/AtlasDB/errs"
	"github.com/nickyhof/AtlasDB/ps"
	"github.com/nickyhof/AtlasDB/sql"
	"go.uber.org/zap"
)

type Options struct {
	// OperationTimeout bounds each Execute call. Zero means no deadline.
	OperationTimeout time.Duration

	// StrictInsert makes INSERT fail on an existing key instead of
	// replacing the row. UPDATE always replaces.
	StrictInsert bool

	// Remote configures S3 access for Dump and Restore.
	Remote S3Config

	// Metrics, when set, records every Execute call.
	Metrics *Metrics
}

// Store executes queries against the tables of one Connection.
type Store struct {
	conn    *Connection
	options Options
	logger  *zap.Logger
}

func NewStore(conn *Connection, options Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		conn:    conn,
		options: options,
		logger:  logger.Named("store"),
	}
}

// Connection exposes the store's connection, mostly for its State.
func (s *Store) Connection() *Connection {
	return s.conn
}

// Execute parses and runs one query inside one table-scoped transaction.
// It never panics and never returns an error: failures are reported
// through the Result.
func (s *Store) Execute(ctx context.Context, query string, params ...any) (result Result) {
	start := time.Now()
	commandName := "UNPARSED"
	defer func() {
		s.options.Metrics.observe(commandName, result, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("execute panicked", zap.String("query", query), zap.Any("panic", r))
			result = Failure(errs.Newf(errs.KindEngine, "internal error: %v", r))
		}
	}()

	if s.options.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.OperationTimeout)
		defer cancel()
	}

	command, err := sql.Parse(query)
	if err != nil {
		return s.fail(query, err, start)
	}
	commandName = command.Type().String()

	engine, err := s.conn.Open(ctx)
	if err != nil {
		return s.fail(query, err, start)
	}

	var (
		rows    []core.Row
		message string
	)
	switch cmd := command.(type) {
	case sql.SelectCommand:
		rows, err = s.executeSelect(ctx, engine, cmd)
		message = fmt.Sprintf("%d record(s) read", len(rows))
	case sql.InsertCommand:
		rows, err = s.executePut(ctx, engine, cmd.Table, s.options.StrictInsert, params)
		message = "1 record(s) written"
	case sql.UpdateCommand:
		if len(cmd.Where) > 0 {
			s.logger.Debug("UPDATE WHERE clause is not evaluated, replacing by primary key",
				zap.String("table", cmd.Table))
		}
		rows, err = s.executePut(ctx, engine, cmd.Table, false, params)
		message = "1 record(s) written"
	case sql.DeleteCommand:
		var deleted int
		deleted, err = s.executeDelete(ctx, engine, cmd)
		message = fmt.Sprintf("%d record(s) deleted", deleted)
	default:
		err = errs.Newf(errs.KindSyntax, "unsupported command %s", command.Type())
	}
	if err != nil {
		return s.fail(query, classify(err), start)
	}

	s.logger.Debug("query executed",
		zap.String("command", command.Type().String()),
		zap.String("table", command.TableName()),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)))
	return Success(rows, message)
}

func (s *Store) fail(query string, err error, start time.Time) Result {
	result := Failure(err)
	fields := []zap.Field{
		zap.String("query", query),
		zap.String("kind", result.Kind().String()),
		zap.Error(err),
		zap.Duration("elapsed", time.Since(start)),
	}
	switch result.Kind() {
	case errs.KindEngine, errs.KindTimeout:
		s.logger.Warn("query failed", fields...)
	default:
		s.logger.Info("query rejected", fields...)
	}
	return result
}

func (s *Store) executeSelect(ctx context.Context, engine ps.Engine, cmd sql.SelectCommand) ([]core.Row, error) {
	rows := []core.Row{}
	err := engine.View(ctx, cmd.Table, func(tx ps.ReadTx) error {
		return tx.Scan(func(key string, value []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := core.DecodeRow(value)
			if err != nil {
				return fmt.Errorf("record %s: %w", key, err)
			}
			if matchesAll(row, cmd.Predicates) {
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// executePut inserts or replaces the row in params[0], keyed by the
// table's primary key.
func (s *Store) executePut(ctx context.Context, engine ps.Engine, table string, strict bool, params []any) ([]core.Row, error) {
	if len(params) == 0 {
		return nil, errs.Newf(errs.KindInvalidInput, "writing to %s requires the row as first parameter", table)
	}
	row, err := core.RowFromParam(params[0])
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, "invalid row", err)
	}

	err = engine.Update(ctx, table, func(tx ps.WriteTx) error {
		key, err := row.Key(tx.Table().PrimaryKey)
		if err != nil {
			return errs.Wrap(errs.KindInvalidInput, "invalid row", err)
		}

		if strict {
			_, exists, err := tx.Get(key)
			if err != nil {
				return err
			}
			if exists {
				return errs.Newf(errs.KindDuplicateKey, "%s already has a record with %s %s",
					table, tx.Table().PrimaryKey, key)
			}
		}

		data, err := row.Encode()
		if err != nil {
			return errs.Wrap(errs.KindInvalidInput, "invalid row", err)
		}
		return tx.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return []core.Row{row}, nil
}

func (s *Store) executeDelete(ctx context.Context, engine ps.Engine, cmd sql.DeleteCommand) (int, error) {
	if cmd.Predicate.Column != sql.DeleteKeyColumn || cmd.Predicate.Value == "" {
		return 0, errs.Newf(errs.KindUnsafeOperation,
			"DELETE FROM %s requires exactly one WHERE %s = '<value>' predicate", cmd.Table, sql.DeleteKeyColumn)
	}

	deleted := 0
	err := engine.Update(ctx, cmd.Table, func(tx ps.WriteTx) error {
		if pk := tx.Table().PrimaryKey; pk != sql.DeleteKeyColumn {
			return errs.Newf(errs.KindUnsafeOperation,
				"DELETE FROM %s must address its primary key %s", cmd.Table, pk)
		}

		key := cmd.Predicate.Value
		_, exists, err := tx.Get(key)
		if err != nil {
			return err
		}
		// '1.0' addresses the row stored under the numeric key 1
		if number, ok := core.CanonicalNumber(key); !exists && ok && number != key {
			key = number
			if _, exists, err = tx.Get(key); err != nil {
				return err
			}
		}
		if !exists {
			return nil
		}
		deleted = 1
		return tx.Delete(key)
	})
	return deleted, err
}

// Tables lists the tables the engine has created.
func (s *Store) Tables(ctx context.Context) ([]core.Table, error) {
	engine, err := s.conn.Open(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := engine.Catalog(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return tables, nil
}

// History lists the committed transactions of a table, newest first.
func (s *Store) History(ctx context.Context, table string, limit int) ([]ps.Transaction, error) {
	engine, err := s.conn.Open(ctx)
	if err != nil {
		return nil, err
	}
	history, err := engine.History(ctx, table, limit)
	if err != nil {
		return nil, classify(err)
	}
	return history, nil
}

// Revert moves table back to the state recorded by transaction id. Only
// engines that keep history support it.
func (s *Store) Revert(ctx context.Context, table, id string) (ps.Transaction, error) {
	engine, err := s.conn.Open(ctx)
	if err != nil {
		return ps.Transaction{}, err
	}
	reverter, ok := engine.(ps.Reverter)
	if !ok {
		return ps.Transaction{}, errs.New(errs.KindInvalidInput, "the storage engine keeps no history to revert to")
	}
	txn, err := reverter.Revert(ctx, table, id)
	if err != nil {
		return ps.Transaction{}, classify(err)
	}
	s.logger.Info("table reverted",
		zap.String("table", table),
		zap.String("to", id),
		zap.String("transaction", txn.Id))
	return txn, nil
}

// Close releases the engine. Every later Execute fails with KindClosed.
func (s *Store) Close() error {
	return s.conn.Close()
}

// classify gives engine and context errors their kind. Errors that already
// carry one are returned unchanged.
func classify(err error) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return engineError("transaction failed", err)
}

func engineError(msg string, err error) error {
	switch {
	case errs.KindOf(err) != errs.KindUnknown:
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.KindTimeout, "operation cancelled", err)
	case errors.Is(err, ps.ErrStoreNotFound):
		return errs.Wrap(errs.KindNotFound, "unknown table", err)
	case errors.Is(err, ps.ErrTransactionNotFound):
		return errs.Wrap(errs.KindNotFound, "unknown transaction", err)
	case errors.Is(err, ps.ErrClosed):
		return errs.Wrap(errs.KindClosed, "engine is closed", err)
	default:
		return errs.Wrap(errs.KindEngine, msg, err)
	}
}
