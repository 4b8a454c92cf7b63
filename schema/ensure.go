package schema

import (
	"context"
	"errors"

	"github.com/nickyhof/AtlasDB/errs"
	"github.com/nickyhof/AtlasDB/ps"
)

// EnsureSchema brings engine to registry.Version. A matching version is a
// no-op and a newer stored version is an error. Otherwise one upgrade
// transaction creates every declared table the engine does not have yet.
// Existing tables are left as they are.
func EnsureSchema(ctx context.Context, engine ps.Engine, registry Registry) error {
	if err := registry.Validate(); err != nil {
		return err
	}

	current, err := engine.Version(ctx)
	if err != nil {
		return wrapEngine("read schema version", err)
	}

	switch {
	case current == registry.Version:
		return nil
	case current > registry.Version:
		return errs.Newf(errs.KindEngine, "schema version downgrade from %d to %d", current, registry.Version)
	}

	err = engine.Upgrade(ctx, registry.Version, func(tx ps.UpgradeTx) error {
		for _, table := range registry.Tables {
			if tx.HasTable(table.Name) {
				continue
			}
			if err := tx.CreateTable(table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapEngine("upgrade schema", err)
	}
	return nil
}

func wrapEngine(msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, msg, err)
	}
	if errors.Is(err, ps.ErrClosed) {
		return errs.Wrap(errs.KindClosed, msg, err)
	}
	return errs.Wrap(errs.KindEngine, msg, err)
}
