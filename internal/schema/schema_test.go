package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestProduct_Validate(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid product",
			product: Product{Name: "برجر", Price: 2500, Category: "مشاوي"},
		},
		{
			name:    "custom price product",
			product: Product{Name: "منتج بسعر مخصص", Category: "مشروبات", IsCustomPrice: true},
		},
		{
			name:    "missing name",
			product: Product{Name: "  ", Price: 10},
			wantErr: true,
			errMsg:  "product name is required",
		},
		{
			name:    "negative price",
			product: Product{Name: "Cola", Price: -1},
			wantErr: true,
			errMsg:  "non-negative",
		},
		{
			name:    "zero price without custom flag",
			product: Product{Name: "Cola"},
			wantErr: true,
			errMsg:  "custom price flag",
		},
		{
			name:    "custom price with catalog price",
			product: Product{Name: "Cola", Price: 5, IsCustomPrice: true},
			wantErr: true,
			errMsg:  "zero catalog price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.product.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestTable_ValidateAndRecalculate(t *testing.T) {
	table := Table{
		ID: 1,
		Orders: []OrderLine{
			{ProductID: 10, Name: "Pizza", Price: 3500, Quantity: 2},
			{ProductID: 11, Name: "Cola", Price: 500, Quantity: 3},
		},
	}
	if err := table.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	table.Recalculate()
	if table.Total != 8500 {
		t.Errorf("Total = %v, want 8500", table.Total)
	}

	table.MergedWith = []int64{1}
	if err := table.Validate(); err == nil {
		t.Error("Validate() accepted a self merge")
	}

	table.MergedWith = nil
	table.Orders[0].Quantity = 0
	if err := table.Validate(); err == nil {
		t.Error("Validate() accepted a zero quantity")
	}
}

func TestTransaction_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		tx      Transaction
		wantErr bool
	}{
		{name: "deposit", tx: Transaction{Type: Deposit, Amount: 1000, Date: now}},
		{name: "withdraw", tx: Transaction{Type: Withdraw, Amount: 200, Date: now}},
		{name: "unknown type", tx: Transaction{Type: "refund", Amount: 1, Date: now}, wantErr: true},
		{name: "negative amount", tx: Transaction{Type: Deposit, Amount: -5, Date: now}, wantErr: true},
		{name: "missing date", tx: Transaction{Type: Deposit, Amount: 5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func validSnapshot() *Snapshot {
	now := time.Now().UTC()
	return &Snapshot{
		Products:     []Product{{ID: 1, Name: "Cola", Price: 500, Category: "مشروبات"}},
		Categories:   []Category{{ID: 2, Name: "مشروبات"}},
		Tables:       []Table{{ID: 3, Orders: []OrderLine{}, MergedWith: []int64{}}},
		Transactions: []Transaction{{ID: 4, Type: Deposit, Amount: 1000, Date: now}},
	}
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Snapshot)
		wantErr string
	}{
		{name: "valid", mutate: func(s *Snapshot) {}},
		{name: "empty collections are fine", mutate: func(s *Snapshot) {
			*s = *EmptySnapshot()
		}},
		{name: "missing transactions", mutate: func(s *Snapshot) {
			s.Transactions = nil
		}, wantErr: "missing collections: transactions"},
		{name: "missing two collections", mutate: func(s *Snapshot) {
			s.Products = nil
			s.Tables = nil
		}, wantErr: "missing collections: products, tables"},
		{name: "duplicate ids", mutate: func(s *Snapshot) {
			s.Products = append(s.Products, Product{ID: 1, Name: "Juice", Price: 1000})
		}, wantErr: "duplicate products id 1"},
		{name: "record without id", mutate: func(s *Snapshot) {
			s.Categories = append(s.Categories, Category{Name: "x"})
		}, wantErr: "without id"},
		{name: "invalid record", mutate: func(s *Snapshot) {
			s.Transactions[0].Type = "bogus"
		}, wantErr: "transactions 4"},
		{name: "duplicate category names", mutate: func(s *Snapshot) {
			s.Categories = append(s.Categories, Category{ID: 9, Name: "مشروبات"})
		}, wantErr: "duplicate category name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validSnapshot()
			tt.mutate(snap)
			err := snap.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() succeeded, want error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrImportRejected) {
				t.Errorf("error %v does not wrap ErrImportRejected", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNormalizeMerges(t *testing.T) {
	tables := []Table{
		{ID: 1, MergedWith: []int64{2, 2, 1, 99}},
		{ID: 2},
		{ID: 3, MergedWith: []int64{2}},
		{ID: 4, MergedWith: []int64{}},
	}

	NormalizeMerges(tables)

	want := map[int64][]int64{
		1: {2},
		2: {1, 3},
		3: {2},
		4: {},
	}
	for _, table := range tables {
		if !reflect.DeepEqual(table.MergedWith, want[table.ID]) {
			t.Errorf("table %d MergedWith = %v, want %v", table.ID, table.MergedWith, want[table.ID])
		}
	}
}

func TestDecodeDocument_MissingCollection(t *testing.T) {
	data := []byte(`{"products":[],"categories":[],"tables":[],"lastUpdate":42}`)

	doc, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument() failed: %v", err)
	}
	if doc.LastUpdate != 42 {
		t.Errorf("LastUpdate = %d, want 42", doc.LastUpdate)
	}
	if doc.Products == nil {
		t.Error("empty products array decoded as missing")
	}
	if doc.Transactions != nil {
		t.Error("absent transactions decoded as present")
	}
	if err := doc.Validate(); !errors.Is(err, ErrImportRejected) {
		t.Errorf("Validate() = %v, want ErrImportRejected", err)
	}
}

func TestDocument_JSONShape(t *testing.T) {
	doc := Document{Snapshot: *EmptySnapshot(), LastUpdate: 7}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	for _, key := range []string{"products", "categories", "tables", "transactions", "lastUpdate"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("document JSON lacks %q: %s", key, data)
		}
	}
	if _, ok := fields["Revision"]; ok {
		t.Error("revision leaked into the document")
	}
}

func TestParseCollection(t *testing.T) {
	c, err := ParseCollection(" Products ")
	if err != nil || c != Products {
		t.Errorf("ParseCollection() = %q, %v", c, err)
	}
	if _, err := ParseCollection("orders"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseCollection(orders) error = %v, want ErrValidation", err)
	}
}

func TestStoreSettings_Validate(t *testing.T) {
	s := DefaultStoreSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	s.InvoiceSeq = 0
	if err := s.Validate(); err == nil {
		t.Error("Validate() accepted invoice sequence 0")
	}
}
