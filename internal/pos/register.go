package pos

import (
	"context"
	"math"
	"strings"

	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
)

// Register transaction types for manual cash movements.
const (
	DepositType  = "إيداع"
	WithdrawType = "سحب"
)

// Deposit records cash put into the register.
func (s *Service) Deposit(ctx context.Context, amount float64, notes string) (*schema.Transaction, error) {
	return s.record(ctx, schema.Deposit, DepositType, amount, notes)
}

// Withdraw records cash taken out of the register. The balance may go
// negative.
func (s *Service) Withdraw(ctx context.Context, amount float64, notes string) (*schema.Transaction, error) {
	return s.record(ctx, schema.Withdraw, WithdrawType, amount, notes)
}

func (s *Service) record(ctx context.Context, kind, label string, amount float64, notes string) (*schema.Transaction, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, invalid("amount must be greater than zero (got %v)", amount)
	}
	t := &schema.Transaction{
		Type:            kind,
		TransactionType: label,
		Amount:          amount,
		Date:            s.now(),
		Notes:           strings.TrimSpace(notes),
	}
	if _, err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Balance sums the ledger: deposits minus withdrawals.
func (s *Service) Balance(ctx context.Context) (float64, error) {
	txns, err := s.store.Transactions(ctx)
	if err != nil {
		return 0, err
	}
	var balance float64
	for i := range txns {
		balance += txns[i].Signed()
	}
	return balance, nil
}

// StoreSettings returns the device's store settings, or the defaults when
// none were saved.
func (s *Service) StoreSettings(ctx context.Context) (schema.StoreSettings, error) {
	settings := schema.DefaultStoreSettings()
	if _, err := s.store.GetSetting(ctx, schema.SettingStore, &settings); err != nil {
		return schema.StoreSettings{}, err
	}
	return settings, nil
}

// SaveStoreSettings validates and stores the store settings.
func (s *Service) SaveStoreSettings(ctx context.Context, settings schema.StoreSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.store.PutSetting(ctx, schema.SettingStore, settings)
}

func loadStoreSettings(tx *store.Tx) (schema.StoreSettings, error) {
	settings := schema.DefaultStoreSettings()
	if _, err := tx.GetSetting(schema.SettingStore, &settings); err != nil {
		return schema.StoreSettings{}, err
	}
	if settings.InvoiceSeq < 1 {
		settings.InvoiceSeq = 1
	}
	return settings, nil
}
