package pos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
)

// SalesType is the transactionType of checkout deposits.
const SalesType = "مبيعات"

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// Checkout closes the bill of a table and every table merged with it.
//
// The combined total minus discount (never below zero) is recorded as a sales
// deposit carrying the invoice number, the sold items and the original and
// discount amounts. All involved tables are emptied, their timers stopped and
// merges dissolved, and the invoice sequence advances. Everything happens in
// one store transaction.
func (s *Service) Checkout(ctx context.Context, tableID int64, discount float64) (*schema.Transaction, error) {
	if math.IsNaN(discount) || discount < 0 {
		return nil, invalid("discount must be a non-negative number (got %v)", discount)
	}

	var out *schema.Transaction
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		all, err := tx.Tables()
		if err != nil {
			return err
		}
		main, err := tx.Table(tableID)
		if err != nil {
			return err
		}

		involved := []*schema.Table{main}
		for _, id := range main.MergedWith {
			t, err := tx.Table(id)
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			involved = append(involved, t)
		}

		var total float64
		var items []schema.TransactionItem
		names := make([]string, 0, len(involved))
		for _, t := range involved {
			t.Recalculate()
			total += t.Total
			names = append(names, fmt.Sprintf("طاولة %d", tableNumber(all, t.ID)))
			for _, o := range t.Orders {
				items = append(items, schema.TransactionItem{
					Name:     o.Name,
					Quantity: o.Quantity,
					Price:    o.Price,
					Total:    o.LineTotal(),
				})
			}
		}
		if len(items) == 0 {
			return invalid("%s has no orders", names[0])
		}

		settings, err := loadStoreSettings(tx)
		if err != nil {
			return err
		}

		details := "مبيعات من " + strings.Join(names, " + ")
		if discount > 0 {
			details += fmt.Sprintf(" مع خصم %.0f د.ع", discount)
		}
		original, disc := total, discount
		out = &schema.Transaction{
			Type:            schema.Deposit,
			TransactionType: SalesType,
			Amount:          math.Max(0, total-discount),
			Date:            s.now(),
			Details:         details,
			OriginalAmount:  &original,
			DiscountAmount:  &disc,
			InvoiceNumber:   settings.InvoiceSeq,
			Items:           items,
		}
		if _, err := tx.Insert(out); err != nil {
			return err
		}

		cleared := make(map[int64]bool, len(involved))
		for _, t := range involved {
			cleared[t.ID] = true
		}
		for _, t := range involved {
			t.Orders = []schema.OrderLine{}
			t.Total = 0
			t.Timer = ""
			t.TimerStartTime = nil
			var rest []int64
			for _, id := range t.MergedWith {
				if !cleared[id] {
					rest = append(rest, id)
				}
			}
			t.MergedWith = rest
			if err := unmerge(tx, t); err != nil {
				return err
			}
		}

		settings.InvoiceSeq++
		return tx.PutSetting(schema.SettingStore, settings)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("checkout",
		zap.Int64("table", tableID),
		zap.Int("invoice", out.InvoiceNumber),
		zap.Float64("amount", out.Amount),
		zap.Float64("discount", discount))
	return out, nil
}
