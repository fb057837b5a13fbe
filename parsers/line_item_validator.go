package parsers

import (
	"fmt"

	"purchases/apperrors"
	"purchases/model"
)

// LineItemLengths は部品の並列配列それぞれの長さです。
type LineItemLengths struct {
	PartNumbers  int `json:"part_numbers"`
	PartNames    int `json:"part_names"`
	Quantities   int `json:"quantities"`
	UnitPrices   int `json:"unit_prices"`
	SalesAmounts int `json:"sales_amounts"`
}

func lengthsOf(rec model.CanonicalRecord) LineItemLengths {
	return LineItemLengths{
		PartNumbers:  len(rec.PartNumbers),
		PartNames:    len(rec.PartNames),
		Quantities:   len(rec.Quantities),
		UnitPrices:   len(rec.UnitPrices),
		SalesAmounts: len(rec.SalesAmounts),
	}
}

func (l LineItemLengths) consistent() bool {
	n := l.PartNumbers
	return l.PartNames == n && l.Quantities == n && l.UnitPrices == n && l.SalesAmounts == n
}

// ValidateLineItems は5つの部品配列の長さが揃っているか確認し、その長さを返します。
func ValidateLineItems(rec model.CanonicalRecord) (int, error) {
	l := lengthsOf(rec)
	if !l.consistent() {
		return 0, apperrors.Newf(apperrors.ArrayLengthMismatch,
			"受注番号 %q の部品配列の長さが一致しません (部品番号=%d, 部品名=%d, 数量=%d, 売上単価=%d, 売上金額=%d)",
			rec.OrderNumber, l.PartNumbers, l.PartNames, l.Quantities, l.UnitPrices, l.SalesAmounts)
	}
	return l.PartNumbers, nil
}

// ValidateRecords は全レコードを検証します。一括取込では最初の不一致で全体を中止します。
func ValidateRecords(records []model.CanonicalRecord) error {
	for i, rec := range records {
		if _, err := ValidateLineItems(rec); err != nil {
			return fmt.Errorf("%d件目: %w", i+1, err)
		}
	}
	return nil
}
