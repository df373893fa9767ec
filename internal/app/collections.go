package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/pos"
	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
)

var errAppendOnly = fmt.Errorf("%w: transactions are append-only", schema.ErrValidation)

// GetAll returns every record of collection c.
func (a *App) GetAll(ctx context.Context, c schema.Collection) ([]schema.Record, error) {
	return a.store.List(ctx, c)
}

// Add stores a new record and returns its id. Category names must be unique.
func (a *App) Add(ctx context.Context, rec schema.Record) (int64, error) {
	if t, ok := rec.(*schema.Table); ok {
		normalizeTable(t)
		t.MergedWith = []int64{}
	}
	id, err := a.store.Insert(ctx, rec)
	if err != nil {
		return 0, categoryErr(rec, err)
	}
	return id, nil
}

// Update replaces an existing record. Renaming a category renames it on its
// products too. A table keeps its stored merges; those change only through
// the POS merge operations. Transactions cannot be updated.
func (a *App) Update(ctx context.Context, rec schema.Record) error {
	switch r := rec.(type) {
	case *schema.Transaction:
		return errAppendOnly
	case *schema.Category:
		old, err := a.store.Get(ctx, schema.Categories, r.ID)
		if err != nil {
			return err
		}
		if err := r.Validate(); err != nil {
			return err
		}
		return a.pos.RenameCategory(ctx, old.(*schema.Category).Name, r.Name)
	case *schema.Table:
		normalizeTable(r)
	}

	return a.store.Update(ctx, func(tx *store.Tx) error {
		old, err := tx.Get(rec.Collection(), rec.RecordID())
		if err != nil {
			return err
		}
		if t, ok := rec.(*schema.Table); ok {
			t.MergedWith = old.(*schema.Table).MergedWith
		}
		return tx.Replace(rec)
	})
}

// Remove deletes a record. Categories still referenced by products fail with
// pos.ErrCategoryInUse and tables with open orders with pos.ErrTableBusy.
// Transactions cannot be removed.
func (a *App) Remove(ctx context.Context, c schema.Collection, id int64) error {
	switch c {
	case schema.Transactions:
		return errAppendOnly
	case schema.Categories:
		rec, err := a.store.Get(ctx, c, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		err = a.pos.DeleteCategory(ctx, rec.(*schema.Category).Name)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	case schema.Tables:
		err := a.pos.RemoveTable(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return a.store.Remove(ctx, c, id)
}

func normalizeTable(t *schema.Table) {
	if t.Orders == nil {
		t.Orders = []schema.OrderLine{}
	}
	if t.MergedWith == nil {
		t.MergedWith = []int64{}
	}
	t.Recalculate()
}

func categoryErr(rec schema.Record, err error) error {
	if _, ok := rec.(*schema.Category); ok && errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %w", pos.ErrDuplicate, err)
	}
	return err
}

// Reset deletes every record and setting except the device id and the sync
// flags. With sync running, the empty state is published to other devices.
func (a *App) Reset(ctx context.Context) error {
	err := a.store.Reset(ctx, schema.SettingDeviceID, schema.SettingSyncEnabled, schema.SettingAutoSync)
	if err != nil {
		return err
	}
	a.logger.Warn("local data reset", zap.String("device_id", a.deviceID))
	return nil
}
