package postgres

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func metaJSON(meta map[string]string) []byte {
	if meta == nil {
		return []byte("{}")
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return []byte("{}")
	}
	return data
}
