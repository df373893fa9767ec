package pos

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
)

// MaxTables bounds ResizeTables.
const MaxTables = 100

// Tables returns the tables in display order. The first table is table 1.
func (s *Service) Tables(ctx context.Context) ([]schema.Table, error) {
	return s.store.Tables(ctx)
}

// tableNumber returns the 1-based display position of id, or 0.
func tableNumber(tables []schema.Table, id int64) int {
	for i, t := range tables {
		if t.ID == id {
			return i + 1
		}
	}
	return 0
}

// ResizeTables grows or shrinks the floor to n tables. New tables are empty;
// removing a table with open orders fails with ErrTableBusy and changes
// nothing.
func (s *Service) ResizeTables(ctx context.Context, n int) ([]schema.Table, error) {
	if n < 1 || n > MaxTables {
		return nil, invalid("table count must be between 1 and %d (got %d)", MaxTables, n)
	}

	var out []schema.Table
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		tables, err := tx.Tables()
		if err != nil {
			return err
		}

		if n < len(tables) {
			removed := tables[n:]
			for _, t := range removed {
				if t.Occupied() {
					return fmt.Errorf("%w: %s", ErrTableBusy, t.DisplayName(tableNumber(tables, t.ID)))
				}
			}
			gone := make(map[int64]bool, len(removed))
			for _, t := range removed {
				gone[t.ID] = true
				if err := tx.Remove(schema.Tables, t.ID); err != nil {
					return err
				}
			}
			tables = tables[:n]
			for i := range tables {
				before := len(tables[i].MergedWith)
				tables[i].MergedWith = slices.DeleteFunc(tables[i].MergedWith, func(id int64) bool { return gone[id] })
				if len(tables[i].MergedWith) != before {
					if err := tx.Replace(&tables[i]); err != nil {
						return err
					}
				}
			}
		}

		for len(tables) < n {
			t := schema.Table{Orders: []schema.OrderLine{}, MergedWith: []int64{}}
			if _, err := tx.Insert(&t); err != nil {
				return err
			}
			tables = append(tables, t)
		}

		out = tables
		return tx.PutSetting(schema.SettingTableCount, n)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tables resized", zap.Int("count", n))
	return out, nil
}

// RenameTable sets the custom name of a table. An empty name restores the
// default numbering.
func (s *Service) RenameTable(ctx context.Context, id int64, name string) (*schema.Table, error) {
	return s.modifyTable(ctx, id, func(t *schema.Table) error {
		t.CustomName = strings.TrimSpace(name)
		return nil
	})
}

// modifyTable loads a table, applies fn and writes it back with a fresh
// total.
func (s *Service) modifyTable(ctx context.Context, id int64, fn func(t *schema.Table) error) (*schema.Table, error) {
	var out *schema.Table
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		t, err := tx.Table(id)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.Recalculate()
		out = t
		return tx.Replace(t)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddOrder adds quantity units of a product to a table. A line for the same
// product at the same price is incremented instead of duplicated. Custom price
// products need customPrice; it is ignored for other products. Adding to an
// empty table starts its timer.
func (s *Service) AddOrder(ctx context.Context, tableID, productID int64, quantity int, customPrice *float64) (*schema.Table, error) {
	if quantity < 1 {
		return nil, invalid("quantity must be at least 1 (got %d)", quantity)
	}

	var out *schema.Table
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		p, err := tx.Product(productID)
		if err != nil {
			return err
		}
		t, err := tx.Table(tableID)
		if err != nil {
			return err
		}

		price := p.Price
		if p.IsCustomPrice {
			if customPrice == nil || *customPrice <= 0 {
				return invalid("product %q needs a price", p.Name)
			}
			price = *customPrice
		}

		if !t.Occupied() && t.Timer != schema.TimerRunning {
			now := s.now()
			t.Timer = schema.TimerRunning
			t.TimerStartTime = &now
		}

		i := slices.IndexFunc(t.Orders, func(o schema.OrderLine) bool {
			return o.ProductID == p.ID && o.Price == price
		})
		if i >= 0 {
			t.Orders[i].Quantity += quantity
		} else {
			t.Orders = append(t.Orders, schema.OrderLine{
				ProductID: p.ID,
				Name:      p.Name,
				Price:     price,
				Quantity:  quantity,
			})
		}
		t.Recalculate()
		out = t
		return tx.Replace(t)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkIndex(t *schema.Table, index int) error {
	if index < 0 || index >= len(t.Orders) {
		return invalid("table %d has no order line %d", t.ID, index)
	}
	return nil
}

// UpdateOrderQuantity sets the quantity of an order line.
func (s *Service) UpdateOrderQuantity(ctx context.Context, tableID int64, index, quantity int) (*schema.Table, error) {
	if quantity < 1 {
		return nil, invalid("quantity must be at least 1 (got %d)", quantity)
	}
	return s.modifyTable(ctx, tableID, func(t *schema.Table) error {
		if err := checkIndex(t, index); err != nil {
			return err
		}
		t.Orders[index].Quantity = quantity
		return nil
	})
}

// DeleteOrder removes an order line.
func (s *Service) DeleteOrder(ctx context.Context, tableID int64, index int) (*schema.Table, error) {
	return s.modifyTable(ctx, tableID, func(t *schema.Table) error {
		if err := checkIndex(t, index); err != nil {
			return err
		}
		t.Orders = slices.Delete(t.Orders, index, index+1)
		return nil
	})
}

// MoveOrders appends every order of src to dst and empties src. The source
// timer is left running.
func (s *Service) MoveOrders(ctx context.Context, src, dst int64) error {
	if src == dst {
		return invalid("cannot move orders of table %d onto itself", src)
	}
	return s.store.Update(ctx, func(tx *store.Tx) error {
		from, err := tx.Table(src)
		if err != nil {
			return err
		}
		to, err := tx.Table(dst)
		if err != nil {
			return err
		}
		if !from.Occupied() {
			return invalid("table %d has no orders to move", src)
		}

		to.Orders = append(to.Orders, from.Orders...)
		from.Orders = []schema.OrderLine{}
		from.Recalculate()
		to.Recalculate()
		if err := tx.Replace(from); err != nil {
			return err
		}
		return tx.Replace(to)
	})
}

// MergeTables joins two tables for checkout. At least one of them must have
// orders. Orders and totals are not touched.
func (s *Service) MergeTables(ctx context.Context, a, b int64) error {
	if a == b {
		return invalid("table %d cannot be merged with itself", a)
	}
	return s.store.Update(ctx, func(tx *store.Tx) error {
		ta, err := tx.Table(a)
		if err != nil {
			return err
		}
		tb, err := tx.Table(b)
		if err != nil {
			return err
		}
		if !ta.Occupied() && !tb.Occupied() {
			return invalid("tables %d and %d have no orders", a, b)
		}
		if !ta.IsMergedWith(b) {
			ta.MergedWith = append(ta.MergedWith, b)
		}
		if !tb.IsMergedWith(a) {
			tb.MergedWith = append(tb.MergedWith, a)
		}
		if err := tx.Replace(ta); err != nil {
			return err
		}
		return tx.Replace(tb)
	})
}

// CancelMerge removes every merge of a table on both sides.
func (s *Service) CancelMerge(ctx context.Context, id int64) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		t, err := tx.Table(id)
		if err != nil {
			return err
		}
		return unmerge(tx, t)
	})
}

// unmerge drops t from its partners and clears t.MergedWith. Partners that
// no longer exist are skipped. t itself is written back.
func unmerge(tx *store.Tx, t *schema.Table) error {
	for _, other := range t.MergedWith {
		p, err := tx.Table(other)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return err
		}
		p.MergedWith = slices.DeleteFunc(p.MergedWith, func(id int64) bool { return id == t.ID })
		if err := tx.Replace(p); err != nil {
			return err
		}
	}
	t.MergedWith = []int64{}
	return tx.Replace(t)
}

// StartTimer starts the seating timer of a table.
func (s *Service) StartTimer(ctx context.Context, id int64) (*schema.Table, error) {
	return s.modifyTable(ctx, id, func(t *schema.Table) error {
		now := s.now()
		t.Timer = schema.TimerRunning
		t.TimerStartTime = &now
		return nil
	})
}

// StopTimer stops the seating timer of a table.
func (s *Service) StopTimer(ctx context.Context, id int64) (*schema.Table, error) {
	return s.modifyTable(ctx, id, func(t *schema.Table) error {
		t.Timer = ""
		t.TimerStartTime = nil
		return nil
	})
}

// RemoveTable deletes an empty table and dissolves its merges.
func (s *Service) RemoveTable(ctx context.Context, id int64) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		t, err := tx.Table(id)
		if err != nil {
			return err
		}
		if t.Occupied() {
			return fmt.Errorf("%w: table %d", ErrTableBusy, id)
		}
		if err := unmerge(tx, t); err != nil {
			return err
		}
		return tx.Remove(schema.Tables, id)
	})
}
