package parsers

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"purchases/apperrors"
	"purchases/model"

	"golang.org/x/text/width"
)

// 指数表記・16進・桁区切りの _ は数値として扱わない
var decimalPattern = regexp.MustCompile(`^[+-]?[0-9]+\.[0-9]*$`)

// ParseAmount は金額・数量のテキストを整数に変換します。
// 全角数字は半角に寄せ、桁区切りのカンマは無視します。空文字は 0 です。
func ParseAmount(text string) (int64, error) {
	s := strings.TrimSpace(width.Narrow.String(text))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// "100.0" のような小数表記の整数値は許容する
	if !decimalPattern.MatchString(s) {
		return 0, fmt.Errorf("数値ではありません: %q", text)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("数値ではありません: %q", text)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("数値が大きすぎます: %q", text)
	}
	return int64(f), nil
}

// CoerceField は ParseAmount の失敗を TypeCoercionError に包みます。
// line が 0 以上のときは部品の行番号（0始まり）としてメッセージに含めます。
func CoerceField(field, record string, line int, text string) (int64, error) {
	n, err := ParseAmount(text)
	if err == nil {
		return n, nil
	}
	if line >= 0 {
		return 0, apperrors.Wrap(apperrors.TypeCoercion,
			fmt.Sprintf("%s の %s (%d行目) を数値に変換できません: %q", record, field, line+1, text), err)
	}
	return 0, apperrors.Wrap(apperrors.TypeCoercion,
		fmt.Sprintf("%s の %s を数値に変換できません: %q", record, field, text), err)
}

// RecordLabel はエラーメッセージ用のレコード名です。受注番号がなければ連番を使います。
func RecordLabel(rec model.CanonicalRecord, index int) string {
	if rec.OrderNumber != "" {
		return "受注番号 " + rec.OrderNumber
	}
	return fmt.Sprintf("%d件目", index+1)
}

// BuildImportRow は正規化済みレコードを型変換し、保存用の行にします。
// 部品配列の長さが揃っていない場合は ArrayLengthMismatch を返します。
func BuildImportRow(rec model.CanonicalRecord, index int) (model.ImportRow, error) {
	count, err := ValidateLineItems(rec)
	if err != nil {
		return model.ImportRow{}, err
	}
	label := RecordLabel(rec, index)

	shippingCost, err := CoerceField("運賃", label, -1, rec.ShippingCost)
	if err != nil {
		return model.ImportRow{}, err
	}
	totalAmount, err := CoerceField("税抜合計", label, -1, rec.TotalAmount)
	if err != nil {
		return model.ImportRow{}, err
	}

	row := model.ImportRow{
		Header: model.BasicInfo{
			Page:           rec.Page,
			ShipmentDate:   rec.ShipmentDate,
			OrderNumber:    rec.OrderNumber,
			DeliveryNumber: rec.DeliveryNumber,
			PersonInCharge: rec.PersonInCharge,
			ShippingCost:   shippingCost,
			TotalAmount:    totalAmount,
		},
		Parts: make([]model.PartsInfo, 0, count),
	}

	for i := 0; i < count; i++ {
		qty, err := CoerceField("数量", label, i, rec.Quantities[i])
		if err != nil {
			return model.ImportRow{}, err
		}
		unitPrice, err := CoerceField("売上単価", label, i, rec.UnitPrices[i])
		if err != nil {
			return model.ImportRow{}, err
		}
		amount, err := CoerceField("売上金額", label, i, rec.SalesAmounts[i])
		if err != nil {
			return model.ImportRow{}, err
		}
		row.Parts = append(row.Parts, model.PartsInfo{
			PartNumber:  rec.PartNumbers[i],
			PartName:    rec.PartNames[i],
			Quantity:    qty,
			UnitPrice:   unitPrice,
			SalesAmount: amount,
		})
	}
	return row, nil
}

// BuildImportRows は全レコードを変換します。1件でも失敗すれば全体を失敗とします。
func BuildImportRows(records []model.CanonicalRecord) ([]model.ImportRow, error) {
	rows := make([]model.ImportRow, 0, len(records))
	for i, rec := range records {
		row, err := BuildImportRow(rec, i)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
