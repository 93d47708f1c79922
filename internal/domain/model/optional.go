package model

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// OptionalDecimal — поле частичного обновления, различающее
// «не передано», «передан null» и «передано значение».
type OptionalDecimal struct {
	// Set — поле присутствовало во входных данных
	Set bool
	// Value — новое значение; nil при Set означает очистку
	Value *decimal.Decimal
}

// SetDecimal возвращает OptionalDecimal со значением.
func SetDecimal(d decimal.Decimal) OptionalDecimal {
	return OptionalDecimal{Set: true, Value: &d}
}

// ClearDecimal возвращает OptionalDecimal, очищающий поле.
func ClearDecimal() OptionalDecimal {
	return OptionalDecimal{Set: true}
}

// UnmarshalJSON вызывается и для явного null.
func (o *OptionalDecimal) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	o.Value = &d
	return nil
}
