package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/frankstormy/pincafe/internal/schema"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a unit of work handed to Update. It must not be used after the
// Update callback returns.
type Tx struct {
	ctx      context.Context
	q        querier
	store    *Store
	readOnly bool
	dirty    bool
}

// tableName maps a collection to its SQL table.
func tableName(c schema.Collection) (string, error) {
	switch c {
	case schema.Products:
		return "products", nil
	case schema.Categories:
		return "categories", nil
	case schema.Tables:
		return "dining_tables", nil
	case schema.Transactions:
		return "transactions", nil
	}
	return "", fmt.Errorf("%w: unknown collection %q", schema.ErrValidation, c)
}

// List returns every record of collection c ordered by id.
func (t *Tx) List(c schema.Collection) ([]schema.Record, error) {
	table, err := tableName(c)
	if err != nil {
		return nil, err
	}

	rows, err := t.q.QueryContext(t.ctx, "SELECT id, data FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, storageErr("list "+string(c), err)
	}
	defer rows.Close()

	out := []schema.Record{}
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, storageErr("scan "+string(c), err)
		}
		rec, err := schema.NewRecord(c)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), rec); err != nil {
			return nil, storageErr(fmt.Sprintf("decode %s %d", c, id), err)
		}
		rec.SetRecordID(id)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate "+string(c), err)
	}
	return out, nil
}

type recordPtr[T any] interface {
	*T
	schema.Record
}

// scanAll decodes every row of collection c into values of type T.
func scanAll[T any, P recordPtr[T]](t *Tx, c schema.Collection) ([]T, error) {
	table, err := tableName(c)
	if err != nil {
		return nil, err
	}

	rows, err := t.q.QueryContext(t.ctx, "SELECT id, data FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, storageErr("list "+string(c), err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, storageErr("scan "+string(c), err)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, storageErr(fmt.Sprintf("decode %s %d", c, id), err)
		}
		P(&v).SetRecordID(id)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate "+string(c), err)
	}
	return out, nil
}

func (t *Tx) Products() ([]schema.Product, error) {
	return scanAll[schema.Product](t, schema.Products)
}

func (t *Tx) Categories() ([]schema.Category, error) {
	return scanAll[schema.Category](t, schema.Categories)
}

func (t *Tx) Tables() ([]schema.Table, error) {
	return scanAll[schema.Table](t, schema.Tables)
}

func (t *Tx) Transactions() ([]schema.Transaction, error) {
	return scanAll[schema.Transaction](t, schema.Transactions)
}

// Get loads one record. Returns ErrNotFound if the id does not exist.
func (t *Tx) Get(c schema.Collection, id int64) (schema.Record, error) {
	rec, err := schema.NewRecord(c)
	if err != nil {
		return nil, err
	}
	if err := t.getInto(rec, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (t *Tx) getInto(rec schema.Record, id int64) error {
	c := rec.Collection()
	table, err := tableName(c)
	if err != nil {
		return err
	}

	var data string
	err = t.q.QueryRowContext(t.ctx, "SELECT data FROM "+table+" WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, c, id)
	}
	if err != nil {
		return storageErr(fmt.Sprintf("get %s %d", c, id), err)
	}
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return storageErr(fmt.Sprintf("decode %s %d", c, id), err)
	}
	rec.SetRecordID(id)
	return nil
}

// Product loads a product by id.
func (t *Tx) Product(id int64) (*schema.Product, error) {
	var p schema.Product
	if err := t.getInto(&p, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// Table loads a table by id.
func (t *Tx) Table(id int64) (*schema.Table, error) {
	var tbl schema.Table
	if err := t.getInto(&tbl, id); err != nil {
		return nil, err
	}
	return &tbl, nil
}

// Category loads a category by name.
func (t *Tx) Category(name string) (*schema.Category, error) {
	var id int64
	var data string
	err := t.q.QueryRowContext(t.ctx, "SELECT id, data FROM categories WHERE name = ?", name).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, storageErr("get category", err)
	}
	var cat schema.Category
	if err := json.Unmarshal([]byte(data), &cat); err != nil {
		return nil, storageErr("decode category", err)
	}
	cat.ID = id
	return &cat, nil
}

// CountProductsInCategory returns how many products reference the category name.
func (t *Tx) CountProductsInCategory(name string) (int, error) {
	var n int
	if err := t.q.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM products WHERE category = ?", name).Scan(&n); err != nil {
		return 0, storageErr("count products", err)
	}
	return n, nil
}

// Count returns the number of records in collection c.
func (t *Tx) Count(c schema.Collection) (int, error) {
	table, err := tableName(c)
	if err != nil {
		return 0, err
	}
	var n int
	if err := t.q.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, storageErr("count "+string(c), err)
	}
	return n, nil
}

func (t *Tx) exists(table string, id int64) (bool, error) {
	var n int
	err := t.q.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, storageErr("check id", err)
	}
	return n > 0, nil
}

func (t *Tx) checkWritable() error {
	if t.readOnly {
		return errors.New("write attempted outside Update")
	}
	return nil
}

// Insert validates rec and stores it as a new record. A zero id is replaced
// with a fresh snowflake id, which is also written back into rec.
func (t *Tx) Insert(rec schema.Record) (int64, error) {
	if err := t.checkWritable(); err != nil {
		return 0, err
	}
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	if rec.RecordID() == 0 {
		rec.SetRecordID(t.store.NewID())
	}
	table, err := tableName(rec.Collection())
	if err != nil {
		return 0, err
	}
	found, err := t.exists(table, rec.RecordID())
	if err != nil {
		return 0, err
	}
	if found {
		return 0, fmt.Errorf("%w: %s %d already exists", ErrConflict, rec.Collection(), rec.RecordID())
	}
	if err := t.write(rec); err != nil {
		return 0, err
	}
	return rec.RecordID(), nil
}

// Replace validates rec and writes it under its id, inserting it when the id
// does not exist yet.
func (t *Tx) Replace(rec schema.Record) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if rec.RecordID() <= 0 {
		return fmt.Errorf("%w: %s record needs an id", schema.ErrValidation, rec.Collection())
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	return t.write(rec)
}

// write upserts rec without validation.
func (t *Tx) write(rec schema.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s %d: %w", rec.Collection(), rec.RecordID(), err)
	}

	var query string
	var args []any
	switch r := rec.(type) {
	case *schema.Product:
		query = `
		INSERT INTO products (id, category, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET category = excluded.category, data = excluded.data`
		args = []any{r.ID, r.Category, string(data)}
	case *schema.Category:
		if err := t.checkCategoryName(r); err != nil {
			return err
		}
		query = `
		INSERT INTO categories (id, name, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data`
		args = []any{r.ID, r.Name, string(data)}
	case *schema.Table:
		query = `
		INSERT INTO dining_tables (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`
		args = []any{r.ID, string(data)}
	case *schema.Transaction:
		query = `
		INSERT INTO transactions (id, date, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, data = excluded.data`
		args = []any{r.ID, r.Date.UTC().Format(time.RFC3339Nano), string(data)}
	default:
		return fmt.Errorf("%w: unsupported record type %T", schema.ErrValidation, rec)
	}

	if _, err := t.q.ExecContext(t.ctx, query, args...); err != nil {
		return storageErr(fmt.Sprintf("write %s %d", rec.Collection(), rec.RecordID()), err)
	}
	t.dirty = true
	return nil
}

func (t *Tx) checkCategoryName(cat *schema.Category) error {
	var n int
	err := t.q.QueryRowContext(t.ctx,
		"SELECT COUNT(*) FROM categories WHERE name = ? AND id != ?", cat.Name, cat.ID).Scan(&n)
	if err != nil {
		return storageErr("check category name", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: category %q already exists", ErrConflict, cat.Name)
	}
	return nil
}

// Remove deletes a record. Removing a missing id is not an error.
func (t *Tx) Remove(c schema.Collection, id int64) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	table, err := tableName(c)
	if err != nil {
		return err
	}
	res, err := t.q.ExecContext(t.ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return storageErr(fmt.Sprintf("remove %s %d", c, id), err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		t.dirty = true
	}
	return nil
}

// Clear deletes every record of collection c.
func (t *Tx) Clear(c schema.Collection) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	table, err := tableName(c)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(t.ctx, "DELETE FROM "+table); err != nil {
		return storageErr("clear "+string(c), err)
	}
	t.dirty = true
	return nil
}
