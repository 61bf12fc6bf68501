package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

const (
	UUID_PREFIX_SUBSCRIPTION   = "sub"
	UUID_PREFIX_DISCOUNT       = "dsc"
	UUID_PREFIX_LEDGER_ENTRY   = "dle"
	UUID_PREFIX_INVOICE        = "inv"
	UUID_PREFIX_INVOICE_ITEM   = "inv_item"
	UUID_PREFIX_PAYMENT        = "pay"
	UUID_PREFIX_DISCOUNT_ENTRY = "inv_dsc"
	UUID_PREFIX_TAX_ENTRY      = "inv_tax"
	UUID_PREFIX_EVENT          = "evt"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inv_01HQ8Z6V3W3KQ1N5M6G2D9X7YT
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}
