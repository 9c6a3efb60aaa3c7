package domain

import (
	"github.com/totegamma/customeradmin/internal/utils"
)

// BillingPhoneKey is shown on the customer profile. It is not protected.
const BillingPhoneKey = "billing_phone"

var defaultMetaKeys = []struct {
	key   string
	label string
}{
	{"billing_address_1", "Billing Address Line 1"},
	{"billing_address_2", "Billing Address Line 2"},
	{"billing_city", "Billing City"},
	{"billing_postcode", "Billing Postcode"},
	{"billing_country", "Billing Country"},
	{"billing_state", "Billing State"},
	{"shipping_address_1", "Shipping Address Line 1"},
	{"shipping_address_2", "Shipping Address Line 2"},
	{"shipping_city", "Shipping City"},
	{"shipping_postcode", "Shipping Postcode"},
	{"shipping_country", "Shipping Country"},
	{"shipping_state", "Shipping State"},
	{"is_vat_exempt", "VAT Exempt"},
	{"calculated_shipping", "Calculated Shipping"},
}

var defaultMetaKeySet = func() map[string]string {
	m := make(map[string]string, len(defaultMetaKeys))
	for _, k := range defaultMetaKeys {
		m[k.key] = k.label
	}
	return m
}()

// DefaultMetaKeys returns the protected meta keys and their labels in
// display order. Each call returns a fresh map.
func DefaultMetaKeys() utils.OrderedKVMap[string] {
	om := make(utils.OrderedKVMap[string], len(defaultMetaKeys))
	for i, k := range defaultMetaKeys {
		om[k.key] = utils.OrderedKV[string]{Value: k.label, Order: int64(i)}
	}
	return om
}

// DefaultMetaKeyNames returns the protected keys in display order.
func DefaultMetaKeyNames() []string {
	keys := make([]string, len(defaultMetaKeys))
	for i, k := range defaultMetaKeys {
		keys[i] = k.key
	}
	return keys
}

func IsDefaultMetaKey(key string) bool {
	_, ok := defaultMetaKeySet[key]
	return ok
}

// MetaKeyLabel returns the display label of a default key, or the key
// itself for custom keys.
func MetaKeyLabel(key string) string {
	if label, ok := defaultMetaKeySet[key]; ok {
		return label
	}
	return key
}
