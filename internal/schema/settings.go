package schema

import "strings"

// Device-local setting keys. Settings never travel in snapshots.
const (
	SettingStore       = "store_settings"
	SettingSyncEnabled = "sync_enabled"
	SettingAutoSync    = "auto_sync_enabled"
	SettingDeviceID    = "device_id"
	SettingTableCount  = "table_count"
)

// StoreSettings is what the receipt header and invoice numbering need.
type StoreSettings struct {
	Name           string `json:"name"`
	Logo           string `json:"logo,omitempty"`
	LogoSize       int    `json:"logoSize"`
	Address        string `json:"address,omitempty"`
	Phone          string `json:"phone,omitempty"`
	CashierName    string `json:"cashierName,omitempty"`
	WelcomeMessage string `json:"welcomeMessage,omitempty"`
	InvoiceSeq     int    `json:"invoiceSeq"`
}

// DefaultStoreSettings returns the settings a fresh device starts with.
func DefaultStoreSettings() StoreSettings {
	return StoreSettings{
		Name:           "بن كافيه - Pin Cafe",
		LogoSize:       70,
		WelcomeMessage: "زورونا مرة أخرى",
		InvoiceSeq:     1,
	}
}

// maxLogoBytes bounds the embedded logo (a data URL).
const maxLogoBytes = 700 * 1024

func (s *StoreSettings) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("store name is required")
	}
	if s.InvoiceSeq < 1 {
		return invalid("invoice sequence must start at 1 or above (got %d)", s.InvoiceSeq)
	}
	if s.LogoSize < 0 || s.LogoSize > 100 {
		return invalid("logo size must be a percentage (got %d)", s.LogoSize)
	}
	if len(s.Logo) > maxLogoBytes {
		return invalid("logo is too large (%d bytes)", len(s.Logo))
	}
	return nil
}
