package archive

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/frankstormy/pincafe/internal/schema"
)

// LedgerRow is one transaction in a CSV ledger export.
type LedgerRow struct {
	ID              int64   `csv:"id"`
	Date            string  `csv:"date"`
	Type            string  `csv:"type"`
	TransactionType string  `csv:"transaction_type"`
	Amount          float64 `csv:"amount"`
	Discount        float64 `csv:"discount"`
	InvoiceNumber   int     `csv:"invoice"`
	Details         string  `csv:"details"`
	Notes           string  `csv:"notes"`
	Items           string  `csv:"items"`
}

func ledgerRow(t *schema.Transaction) LedgerRow {
	row := LedgerRow{
		ID:              t.ID,
		Date:            t.Date.UTC().Format(time.RFC3339),
		Type:            t.Type,
		TransactionType: t.TransactionType,
		Amount:          t.Amount,
		InvoiceNumber:   t.InvoiceNumber,
		Details:         t.Details,
		Notes:           t.Notes,
	}
	if t.DiscountAmount != nil {
		row.Discount = *t.DiscountAmount
	}
	items := make([]string, len(t.Items))
	for i, it := range t.Items {
		items[i] = fmt.Sprintf("%s x%d", it.Name, it.Quantity)
	}
	row.Items = strings.Join(items, "; ")
	return row
}

// WriteLedgerCSV writes txns to w with a header row.
func WriteLedgerCSV(w io.Writer, txns []schema.Transaction) error {
	rows := make([]LedgerRow, len(txns))
	for i := range txns {
		rows[i] = ledgerRow(&txns[i])
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}
