package source

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/warp/wb-tariffs/tariff"
)

// boxTariffsResponse mirrors GET /api/v1/tariffs/box. Pointers distinguish a
// missing envelope from an empty one.
type boxTariffsResponse struct {
	Response *struct {
		Data *struct {
			DtNextBox     string           `json:"dtNextBox"`
			DtTillMax     string           `json:"dtTillMax"`
			WarehouseList []warehouseEntry `json:"warehouseList"`
		} `json:"data"`
	} `json:"response"`
}

type warehouseEntry struct {
	WarehouseName       string `json:"warehouseName"`
	BoxDeliveryBase     Amount `json:"boxDeliveryBase"`
	BoxDeliveryCoefExpr Amount `json:"boxDeliveryCoefExpr"`
	BoxDeliveryLiter    Amount `json:"boxDeliveryLiter"`
	BoxStorageBase      Amount `json:"boxStorageBase"`
	BoxStorageCoefExpr  Amount `json:"boxStorageCoefExpr"`
	BoxStorageLiter     Amount `json:"boxStorageLiter"`
}

func (w warehouseEntry) record(date tariff.Date) tariff.Record {
	return tariff.Record{
		Date:                date,
		Warehouse:           w.WarehouseName,
		BoxDeliveryBase:     w.BoxDeliveryBase.Decimal,
		BoxDeliveryCoefExpr: w.BoxDeliveryCoefExpr.Decimal,
		BoxDeliveryLiter:    w.BoxDeliveryLiter.Decimal,
		BoxStorageBase:      w.BoxStorageBase.Decimal,
		BoxStorageCoefExpr:  w.BoxStorageCoefExpr.Decimal,
		BoxStorageLiter:     w.BoxStorageLiter.Decimal,
	}
}

// Amount is a tariff value the API sends as a JSON number or a string such
// as "40,5" or "-". Decoding an Amount never fails; see ParseAmount.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	a.Decimal = decimal.Zero

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	}

	a.Decimal = ParseAmount(raw)
	return nil
}

// ParseAmount converts an API tariff string to a decimal. A decimal comma is
// accepted and the longest leading number is used, so "40.5abc" is 40.5 and
// "1 234" is 1. Input without a leading number yields zero.
func ParseAmount(s string) decimal.Decimal {
	s = numericPrefix(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// numericPrefix returns the longest prefix of s matching
// [+-]?(digits)?(.digits)?([eE][+-]?digits)? with at least one mantissa digit.
func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if frac := j - i - 1; frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		start := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > start {
			i = j
		}
	}
	return s[:i]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
