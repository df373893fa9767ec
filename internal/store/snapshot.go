package store

import (
	"context"
	"slices"

	"github.com/frankstormy/pincafe/internal/schema"
)

// ExportSnapshot reads all four collections in one read transaction while
// holding the write lock, so the result reflects whole Update calls only.
// The snapshot carries the revision it was read at.
func (s *Store) ExportSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin export", err)
	}
	defer sqlTx.Rollback()

	r := &Tx{ctx: ctx, q: sqlTx, store: s, readOnly: true}
	snap := &schema.Snapshot{Revision: s.revision.Load()}
	if snap.Products, err = r.Products(); err != nil {
		return nil, err
	}
	if snap.Categories, err = r.Categories(); err != nil {
		return nil, err
	}
	if snap.Tables, err = r.Tables(); err != nil {
		return nil, err
	}
	if snap.Transactions, err = r.Transactions(); err != nil {
		return nil, err
	}
	return snap, nil
}

// ImportSnapshot replaces the contents of all four collections with snap.
//
// Table merges are made symmetric first, then the snapshot is validated; a
// snapshot that fails validation (a missing collection, an invalid record,
// duplicate ids) is rejected with schema.ErrImportRejected before anything is
// written. Record ids are preserved. Settings are not touched.
//
// Imports do not advance Revision. The returned value is the revision the
// imported state corresponds to.
func (s *Store) ImportSnapshot(ctx context.Context, snap *schema.Snapshot) (uint64, error) {
	if snap == nil {
		return 0, (*schema.Snapshot)(nil).Validate()
	}

	in := *snap
	in.Tables = slices.Clone(snap.Tables)
	schema.NormalizeMerges(in.Tables)
	if err := in.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.updateLocked(ctx, func(tx *Tx) error {
		for _, c := range schema.AllCollections {
			if err := tx.Clear(c); err != nil {
				return err
			}
		}
		for _, c := range schema.AllCollections {
			for _, rec := range in.Records(c) {
				if err := tx.write(rec); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return s.revision.Load(), nil
}

// Reset deletes every record and every setting except the keys in keep.
func (s *Store) Reset(ctx context.Context, keep ...string) error {
	return s.Update(ctx, func(tx *Tx) error {
		for _, c := range schema.AllCollections {
			if err := tx.Clear(c); err != nil {
				return err
			}
		}
		return tx.clearSettings(keep)
	})
}
