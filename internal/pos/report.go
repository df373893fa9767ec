package pos

import (
	"context"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/frankstormy/pincafe/internal/schema"
)

// ItemSales is the quantity and revenue of one item across sales.
type ItemSales struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
}

// Report summarizes the ledger over [From, To).
type Report struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	Sales       int     `json:"sales"`
	SalesTotal  float64 `json:"salesTotal"`
	Discounts   float64 `json:"discounts"`
	Deposits    float64 `json:"deposits"`
	Withdrawals float64 `json:"withdrawals"`
	Net         float64 `json:"net"`

	AverageSale float64 `json:"averageSale"`
	MedianSale  float64 `json:"medianSale"`
	LargestSale float64 `json:"largestSale"`

	// Items sold, by revenue then name.
	Items []ItemSales `json:"items"`
}

// Ledger returns the transactions dated in [from, to), oldest first. A
// zero to means now.
func (s *Service) Ledger(ctx context.Context, from, to time.Time) ([]schema.Transaction, error) {
	if to.IsZero() {
		to = s.now()
	}
	if !from.Before(to) {
		return nil, invalid("range start %s must be before end %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	all, err := s.store.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	txns := make([]schema.Transaction, 0, len(all))
	for _, t := range all {
		if !t.Date.Before(from) && t.Date.Before(to) {
			txns = append(txns, t)
		}
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].Date.Before(txns[j].Date) })
	return txns, nil
}

// Report summarizes the ledger over [from, to). A zero to means now.
// Deposits and Withdrawals cover manual register movements only.
func (s *Service) Report(ctx context.Context, from, to time.Time) (*Report, error) {
	if to.IsZero() {
		to = s.now()
	}
	txns, err := s.Ledger(ctx, from, to)
	if err != nil {
		return nil, err
	}

	r := &Report{From: from, To: to, Items: []ItemSales{}}
	var amounts stats.Float64Data
	items := make(map[string]*ItemSales)
	for i := range txns {
		t := &txns[i]
		r.Net += t.Signed()

		switch {
		case t.TransactionType == SalesType:
			r.Sales++
			r.SalesTotal += t.Amount
			amounts = append(amounts, t.Amount)
			if t.DiscountAmount != nil {
				r.Discounts += *t.DiscountAmount
			}
			for _, it := range t.Items {
				agg, ok := items[it.Name]
				if !ok {
					agg = &ItemSales{Name: it.Name}
					items[it.Name] = agg
				}
				agg.Quantity += it.Quantity
				agg.Total += it.Total
			}
		case t.Type == schema.Withdraw:
			r.Withdrawals += t.Amount
		default:
			r.Deposits += t.Amount
		}
	}

	if len(amounts) > 0 {
		// Non-empty data never errors.
		r.AverageSale, _ = amounts.Mean()
		r.MedianSale, _ = amounts.Median()
		r.LargestSale, _ = amounts.Max()
	}

	for _, agg := range items {
		r.Items = append(r.Items, *agg)
	}
	sort.Slice(r.Items, func(i, j int) bool {
		if r.Items[i].Total != r.Items[j].Total {
			return r.Items[i].Total > r.Items[j].Total
		}
		return r.Items[i].Name < r.Items[j].Name
	})
	return r, nil
}
