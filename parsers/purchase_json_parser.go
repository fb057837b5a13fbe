package parsers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"purchases/apperrors"
	"purchases/model"
)

// 各項目として受け付けるキー（先頭が正規化後の英語キー）
var (
	keysPage           = []string{"page", "ページ"}
	keysShipmentDate   = []string{"shipment_date", "出荷日"}
	keysOrderNumber    = []string{"order_number", "受注番号"}
	keysDeliveryNumber = []string{"delivery_number", "納入先番号"}
	keysPersonInCharge = []string{"person_in_charge", "担当者"}
	keysShippingCost   = []string{"shipping_cost", "運賃"}
	keysTotalAmount    = []string{"total_amount", "税抜合計"}
	keysPartNumbers    = []string{"part_numbers", "部品番号"}
	keysPartNames      = []string{"part_names", "部品名"}
	keysQuantities     = []string{"quantities", "数量"}
	keysUnitPrices     = []string{"unit_prices", "売上単価"}
	keysSalesAmounts   = []string{"sales_amounts", "売上金額"}

	// 明細の1行分
	keysDetailPartNumber  = []string{"部品番号", "part_number"}
	keysDetailPartName    = []string{"部品名", "part_name"}
	keysDetailQuantity    = []string{"数量", "quantity"}
	keysDetailUnitPrice   = []string{"売上単価", "unit_price"}
	keysDetailSalesAmount = []string{"売上金額", "sales_amount"}

	allHeaderKeys = [][]string{
		keysPage, keysShipmentDate, keysOrderNumber, keysDeliveryNumber, keysPersonInCharge,
		keysShippingCost, keysTotalAmount, keysPartNumbers, keysPartNames, keysQuantities,
		keysUnitPrices, keysSalesAmounts,
	}
)

var errTrailingData = errors.New("JSONの後ろに余分なデータがあります")

const (
	envelopeTextKey = "text"
	detailKey       = "明細"
	fenceOpen       = "```json"
	fenceClose      = "```"
)

// shapeParser は入力JSONの形ごとの解析器です。
// matched が false のときは次の形を試します。
type shapeParser struct {
	name  string
	parse func(v interface{}) (records []model.CanonicalRecord, matched bool, err error)
}

var shapeParsers = []shapeParser{
	{name: "flat", parse: parseFlatShape},
	{name: "envelope", parse: parseEnvelopeShape},
	{name: "fenced", parse: parseFencedShape},
}

// ParsePurchaseJSON はアップロードされたJSONを読み込み、正規化したレコードを返します。
func ParsePurchaseJSON(r io.Reader) ([]model.CanonicalRecord, error) {
	v, err := decodeJSON(SkipBOM(r))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ShapeMismatch, "JSONファイルの読み込みに失敗しました", err)
	}
	return NormalizePurchaseData(v)
}

// NormalizePurchaseData はデコード済みのJSON値を正規化します。
// フラットな配列、抽出結果の封筒（"text" キー）、```json で囲まれたブロックの順に解釈を試みます。
func NormalizePurchaseData(v interface{}) ([]model.CanonicalRecord, error) {
	for _, p := range shapeParsers {
		records, matched, err := p.parse(v)
		if !matched {
			continue
		}
		if err != nil {
			return nil, err
		}
		return records, nil
	}
	return nil, apperrors.New(apperrors.ShapeMismatch, "対応していないJSON形式です")
}

func decodeJSON(r io.Reader) (interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// 値の後ろに別の内容が続く入力は受け付けない
	var rest json.RawMessage
	if err := dec.Decode(&rest); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}

func parseFlatShape(v interface{}) ([]model.CanonicalRecord, bool, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, false, nil
	}
	records := make([]model.CanonicalRecord, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok || !hasHeaderKey(m) {
			return nil, false, nil
		}
		records = append(records, recordFromMap(m))
	}
	return records, true, nil
}

func parseEnvelopeShape(v interface{}) ([]model.CanonicalRecord, bool, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false, nil
	}
	var entries []interface{}
	switch text := m[envelopeTextKey].(type) {
	case []interface{}:
		entries = text
	case string:
		entries = []interface{}{text}
	default:
		return nil, false, nil
	}

	var records []model.CanonicalRecord
	for _, entry := range entries {
		records = collectEntry(entry, records)
	}
	if len(records) == 0 {
		return nil, true, apperrors.New(apperrors.EmptyExtraction, "抽出結果からデータを取得できませんでした")
	}
	return records, true, nil
}

func parseFencedShape(v interface{}) ([]model.CanonicalRecord, bool, error) {
	s, ok := v.(string)
	if !ok {
		return nil, false, nil
	}
	records := collectFenced(s, nil)
	if len(records) == 0 {
		return nil, true, apperrors.New(apperrors.EmptyExtraction, "テキストからJSONブロックを取得できませんでした")
	}
	return records, true, nil
}

// collectEntry は抽出結果の1要素をレコードに変換して追加します。
// ページごとの配列はそのまま展開します。
func collectEntry(entry interface{}, records []model.CanonicalRecord) []model.CanonicalRecord {
	switch e := entry.(type) {
	case map[string]interface{}:
		return append(records, recordFromMap(e))
	case []interface{}:
		for _, child := range e {
			records = collectEntry(child, records)
		}
		return records
	case string:
		return collectFenced(e, records)
	default:
		return records
	}
}

// collectFenced は文字列中の ```json ～ ``` ブロックを解析してレコードを追加します。
// 解析できないブロックは読み飛ばします。
func collectFenced(s string, records []model.CanonicalRecord) []model.CanonicalRecord {
	for _, block := range FencedJSONBlocks(s) {
		v, err := decodeJSON(strings.NewReader(block))
		if err != nil {
			log.Printf("WARN: JSONブロックの解析に失敗したためスキップします: %v", err)
			continue
		}
		switch b := v.(type) {
		case []interface{}:
			for _, item := range b {
				if m, ok := item.(map[string]interface{}); ok {
					records = append(records, recordFromMap(m))
				}
			}
		case map[string]interface{}:
			records = append(records, recordFromMap(b))
		}
	}
	return records
}

// FencedJSONBlocks は ```json と ``` に挟まれた部分を順に返します。
func FencedJSONBlocks(s string) []string {
	var blocks []string
	rest := s
	for {
		start := strings.Index(rest, fenceOpen)
		if start < 0 {
			return blocks
		}
		rest = rest[start+len(fenceOpen):]
		end := strings.Index(rest, fenceClose)
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end+len(fenceClose):]
	}
}

func recordFromMap(m map[string]interface{}) model.CanonicalRecord {
	rec := model.CanonicalRecord{
		Page:           stringField(m, keysPage),
		ShipmentDate:   stringField(m, keysShipmentDate),
		OrderNumber:    stringField(m, keysOrderNumber),
		DeliveryNumber: stringField(m, keysDeliveryNumber),
		PersonInCharge: stringField(m, keysPersonInCharge),
		ShippingCost:   numberField(m, keysShippingCost),
		TotalAmount:    numberField(m, keysTotalAmount),
		PartNumbers:    listField(m, keysPartNumbers),
		PartNames:      listField(m, keysPartNames),
		Quantities:     listField(m, keysQuantities),
		UnitPrices:     listField(m, keysUnitPrices),
		SalesAmounts:   listField(m, keysSalesAmounts),
		Source:         m,
	}

	// 明細があれば上位の配列より優先する
	if details, ok := m[detailKey].([]interface{}); ok {
		rec.PartNumbers = make([]string, 0, len(details))
		rec.PartNames = make([]string, 0, len(details))
		rec.Quantities = make([]string, 0, len(details))
		rec.UnitPrices = make([]string, 0, len(details))
		rec.SalesAmounts = make([]string, 0, len(details))
		for _, d := range details {
			line, ok := d.(map[string]interface{})
			if !ok {
				continue
			}
			rec.PartNumbers = append(rec.PartNumbers, stringField(line, keysDetailPartNumber))
			rec.PartNames = append(rec.PartNames, stringField(line, keysDetailPartName))
			rec.Quantities = append(rec.Quantities, numberField(line, keysDetailQuantity))
			rec.UnitPrices = append(rec.UnitPrices, numberField(line, keysDetailUnitPrice))
			rec.SalesAmounts = append(rec.SalesAmounts, numberField(line, keysDetailSalesAmount))
		}
	}
	return rec
}

func hasHeaderKey(m map[string]interface{}) bool {
	for _, keys := range allHeaderKeys {
		if _, ok := lookup(m, keys); ok {
			return true
		}
	}
	if _, ok := m[detailKey]; ok {
		return true
	}
	return false
}

func lookup(m map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringField(m map[string]interface{}, keys []string) string {
	v, ok := lookup(m, keys)
	if !ok || v == nil {
		return ""
	}
	return textOf(v)
}

func numberField(m map[string]interface{}, keys []string) string {
	v, ok := lookup(m, keys)
	if !ok || v == nil {
		return "0"
	}
	return textOf(v)
}

func listField(m map[string]interface{}, keys []string) []string {
	v, ok := lookup(m, keys)
	if !ok || v == nil {
		return []string{}
	}
	items, ok := v.([]interface{})
	if !ok {
		// 単一値は1要素の配列とみなす
		return []string{textOf(v)}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, textOf(item))
	}
	return out
}

// textOf はJSON値をテキストにします。数値はJSON上の表記をそのまま使います。
func textOf(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(buf.String())
	}
}
