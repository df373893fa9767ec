package store

import (
	"context"

	"github.com/frankstormy/pincafe/internal/schema"
)

// List returns every record of collection c ordered by id. Empty
// collections yield an empty, non-nil slice.
func (s *Store) List(ctx context.Context, c schema.Collection) ([]schema.Record, error) {
	var out []schema.Record
	err := s.view(ctx, func(r *Tx) error {
		var err error
		out, err = r.List(c)
		return err
	})
	return out, err
}

func (s *Store) Products(ctx context.Context) ([]schema.Product, error) {
	var out []schema.Product
	err := s.view(ctx, func(r *Tx) error {
		var err error
		out, err = r.Products()
		return err
	})
	return out, err
}

func (s *Store) Categories(ctx context.Context) ([]schema.Category, error) {
	var out []schema.Category
	err := s.view(ctx, func(r *Tx) error {
		var err error
		out, err = r.Categories()
		return err
	})
	return out, err
}

func (s *Store) Tables(ctx context.Context) ([]schema.Table, error) {
	var out []schema.Table
	err := s.view(ctx, func(r *Tx) error {
		var err error
		out, err = r.Tables()
		return err
	})
	return out, err
}

func (s *Store) Transactions(ctx context.Context) ([]schema.Transaction, error) {
	var out []schema.Transaction
	err := s.view(ctx, func(r *Tx) error {
		var err error
		out, err = r.Transactions()
		return err
	})
	return out, err
}

// Get loads one record of collection c.
func (s *Store) Get(ctx context.Context, c schema.Collection, id int64) (schema.Record, error) {
	var rec schema.Record
	err := s.view(ctx, func(r *Tx) error {
		var err error
		rec, err = r.Get(c, id)
		return err
	})
	return rec, err
}

// Product loads a product by id.
func (s *Store) Product(ctx context.Context, id int64) (*schema.Product, error) {
	var p *schema.Product
	err := s.view(ctx, func(r *Tx) error {
		var err error
		p, err = r.Product(id)
		return err
	})
	return p, err
}

// Table loads a table by id.
func (s *Store) Table(ctx context.Context, id int64) (*schema.Table, error) {
	var t *schema.Table
	err := s.view(ctx, func(r *Tx) error {
		var err error
		t, err = r.Table(id)
		return err
	})
	return t, err
}

// Insert stores rec as a new record and returns its id.
func (s *Store) Insert(ctx context.Context, rec schema.Record) (int64, error) {
	var id int64
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		id, err = tx.Insert(rec)
		return err
	})
	return id, err
}

// Replace upserts rec by id.
func (s *Store) Replace(ctx context.Context, rec schema.Record) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Replace(rec)
	})
}

// Remove deletes a record. Missing ids are ignored.
func (s *Store) Remove(ctx context.Context, c schema.Collection, id int64) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Remove(c, id)
	})
}

// Clear deletes every record of collection c.
func (s *Store) Clear(ctx context.Context, c schema.Collection) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Clear(c)
	})
}
