package schema

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Collection names one of the four replicated collections.
type Collection string

const (
	Products     Collection = "products"
	Categories   Collection = "categories"
	Tables       Collection = "tables"
	Transactions Collection = "transactions"
)

// AllCollections lists the collections in snapshot order.
var AllCollections = []Collection{Products, Categories, Tables, Transactions}

// IsValid reports whether c names a known collection.
func (c Collection) IsValid() bool {
	return slices.Contains(AllCollections, c)
}

// ParseCollection converts a name such as "products" to a Collection.
func ParseCollection(name string) (Collection, error) {
	c := Collection(strings.ToLower(strings.TrimSpace(name)))
	if !c.IsValid() {
		return "", invalid("unknown collection %q", name)
	}
	return c, nil
}

// Record is implemented by pointers to every collection element.
type Record interface {
	Collection() Collection
	RecordID() int64
	SetRecordID(id int64)
	Validate() error
}

// NewRecord returns an empty record for collection c, ready to be decoded into.
func NewRecord(c Collection) (Record, error) {
	switch c {
	case Products:
		return &Product{}, nil
	case Categories:
		return &Category{}, nil
	case Tables:
		return &Table{}, nil
	case Transactions:
		return &Transaction{}, nil
	default:
		return nil, invalid("unknown collection %q", c)
	}
}

// Product is a catalog entry. When IsCustomPrice is set, Price is a zero
// placeholder and the actual price is supplied when the product is ordered.
type Product struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Category      string  `json:"category"`
	IsCustomPrice bool    `json:"isCustomPrice"`
}

func (p *Product) Collection() Collection { return Products }
func (p *Product) RecordID() int64        { return p.ID }
func (p *Product) SetRecordID(id int64)   { p.ID = id }

// Validate checks name and price.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("product name is required")
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price < 0 {
		return invalid("product price must be a non-negative number (got %v)", p.Price)
	}
	if p.IsCustomPrice {
		if p.Price != 0 {
			return invalid("custom price product %q must have a zero catalog price", p.Name)
		}
		return nil
	}
	if p.Price == 0 {
		return invalid("product %q needs a price or the custom price flag", p.Name)
	}
	return nil
}

// Category groups products by name.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c *Category) Collection() Collection { return Categories }
func (c *Category) RecordID() int64        { return c.ID }
func (c *Category) SetRecordID(id int64)   { c.ID = id }

func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("category name is required")
	}
	return nil
}

// OrderLine is a product ordered on a table. Name and price are copied at the
// time the line is added so later catalog edits leave open orders alone.
type OrderLine struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// LineTotal returns price * quantity.
func (o OrderLine) LineTotal() float64 {
	return o.Price * float64(o.Quantity)
}

func (o OrderLine) validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return invalid("order line name is required")
	}
	if o.Price < 0 {
		return invalid("order line %q has negative price", o.Name)
	}
	if o.Quantity < 1 {
		return invalid("order line %q quantity must be at least 1 (got %d)", o.Name, o.Quantity)
	}
	return nil
}

// TimerRunning is the only non-empty value of Table.Timer.
const TimerRunning = "running"

// Table is a restaurant table with its open orders.
type Table struct {
	ID             int64       `json:"id"`
	CustomName     string      `json:"customName,omitempty"`
	Orders         []OrderLine `json:"orders"`
	Total          float64     `json:"total"`
	Timer          string      `json:"timer,omitempty"`
	TimerStartTime *time.Time  `json:"timerStartTime,omitempty"`
	MergedWith     []int64     `json:"mergedWith"`
}

func (t *Table) Collection() Collection { return Tables }
func (t *Table) RecordID() int64        { return t.ID }
func (t *Table) SetRecordID(id int64)   { t.ID = id }

func (t *Table) Validate() error {
	for _, o := range t.Orders {
		if err := o.validate(); err != nil {
			return err
		}
	}
	if t.Timer != "" && t.Timer != TimerRunning {
		return invalid("table timer must be empty or %q (got %q)", TimerRunning, t.Timer)
	}
	if t.ID != 0 && slices.Contains(t.MergedWith, t.ID) {
		return invalid("table %d cannot be merged with itself", t.ID)
	}
	return nil
}

// Recalculate sets Total to the sum of the order lines.
func (t *Table) Recalculate() {
	var total float64
	for _, o := range t.Orders {
		total += o.LineTotal()
	}
	t.Total = total
}

// IsMergedWith reports whether id is in MergedWith.
func (t *Table) IsMergedWith(id int64) bool {
	return slices.Contains(t.MergedWith, id)
}

// Occupied reports whether the table has open orders.
func (t *Table) Occupied() bool {
	return len(t.Orders) > 0
}

// DisplayName returns the custom name or "Table <n>".
func (t *Table) DisplayName(n int) string {
	if t.CustomName != "" {
		return t.CustomName
	}
	return fmt.Sprintf("Table %d", n)
}

// Transaction types.
const (
	Deposit  = "deposit"
	Withdraw = "withdraw"
)

// TransactionItem is a sold line recorded on a sales transaction.
type TransactionItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Total    float64 `json:"total"`
}

// Transaction is a cash register ledger entry.
type Transaction struct {
	ID              int64             `json:"id"`
	Type            string            `json:"type"`
	TransactionType string            `json:"transactionType"`
	Amount          float64           `json:"amount"`
	Date            time.Time         `json:"date"`
	Notes           string            `json:"notes,omitempty"`
	Details         string            `json:"details,omitempty"`
	OriginalAmount  *float64          `json:"originalAmount,omitempty"`
	DiscountAmount  *float64          `json:"discountAmount,omitempty"`
	InvoiceNumber   int               `json:"invoiceNumber,omitempty"`
	Items           []TransactionItem `json:"items,omitempty"`
}

func (t *Transaction) Collection() Collection { return Transactions }
func (t *Transaction) RecordID() int64        { return t.ID }
func (t *Transaction) SetRecordID(id int64)   { t.ID = id }

func (t *Transaction) Validate() error {
	if t.Type != Deposit && t.Type != Withdraw {
		return invalid("transaction type must be %q or %q (got %q)", Deposit, Withdraw, t.Type)
	}
	if math.IsNaN(t.Amount) || t.Amount < 0 {
		return invalid("transaction amount must be a non-negative number (got %v)", t.Amount)
	}
	if t.Date.IsZero() {
		return invalid("transaction date is required")
	}
	return nil
}

// Signed returns the amount as it affects the register balance.
func (t *Transaction) Signed() float64 {
	if t.Type == Withdraw {
		return -t.Amount
	}
	return t.Amount
}
