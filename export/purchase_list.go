package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"purchases/mappers"
	"purchases/model"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

const (
	headerSheet = "基本情報"
	partsSheet  = "部品情報"
)

var csvHeader = []string{
	"ID", "ページ", "出荷日", "受注番号", "納入先番号", "担当者", "運賃", "税抜合計",
	"部品番号", "部品名", "数量", "売上単価", "売上金額",
}

// Encoding はCSVの文字コードです。
type Encoding int

const (
	ShiftJIS Encoding = iota
	UTF8BOM
)

// WritePurchaseListCSV は仕入一覧を部品1行ごとのCSVで書き出します。
// 部品のない基本情報は部品列を空にした1行になります。
func WritePurchaseListCSV(w io.Writer, headers []model.BasicInfo, parts []model.PartsInfo, enc Encoding) error {
	var out io.Writer = w
	if enc == ShiftJIS {
		// Shift_JIS にない文字は置換して出力する
		sjis := transform.NewWriter(w, encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder()))
		defer sjis.Close()
		out = sjis
	} else {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return err
		}
	}

	csvWriter := csv.NewWriter(out)
	csvWriter.UseCRLF = true
	if err := csvWriter.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	grouped := mappers.GroupPartsByHeader(parts)
	for _, h := range headers {
		base := []string{
			strconv.FormatInt(h.ID, 10), h.Page, h.ShipmentDate, h.OrderNumber, h.DeliveryNumber,
			h.PersonInCharge, strconv.FormatInt(h.ShippingCost, 10), strconv.FormatInt(h.TotalAmount, 10),
		}
		lines := grouped[h.ID]
		if len(lines) == 0 {
			if err := csvWriter.Write(append(base, "", "", "", "", "")); err != nil {
				return fmt.Errorf("failed to write CSV row (id %d): %w", h.ID, err)
			}
			continue
		}
		for _, p := range lines {
			record := append(append([]string{}, base...),
				p.PartNumber, p.PartName,
				strconv.FormatInt(p.Quantity, 10),
				strconv.FormatInt(p.UnitPrice, 10),
				strconv.FormatInt(p.SalesAmount, 10),
			)
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV row (id %d): %w", h.ID, err)
			}
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// PurchaseListXLSX は基本情報と部品情報を別シートにしたExcelファイルを作ります。
func PurchaseListXLSX(headers []model.BasicInfo, parts []model.PartsInfo) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", headerSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	if _, err := f.NewSheet(partsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	writeRow := func(sheet string, row int, values ...interface{}) {
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	writeRow(headerSheet, 1, "ID", "ページ", "出荷日", "受注番号", "納入先番号", "担当者", "運賃", "部品合計", "税抜合計", "取込セッション", "作成日時")
	grouped := mappers.GroupPartsByHeader(parts)
	for i, h := range headers {
		writeRow(headerSheet, i+2,
			h.ID, h.Page, h.ShipmentDate, h.OrderNumber, h.DeliveryNumber, h.PersonInCharge,
			h.ShippingCost, mappers.SumSalesAmount(grouped[h.ID]), h.TotalAmount, h.ImportSessionID, h.CreatedAt,
		)
	}

	writeRow(partsSheet, 1, "基本情報ID", "受注番号", "部品番号", "部品名", "数量", "売上単価", "売上金額")
	orderByID := make(map[int64]string, len(headers))
	for _, h := range headers {
		orderByID[h.ID] = h.OrderNumber
	}
	for i, p := range parts {
		writeRow(partsSheet, i+2,
			p.BasicInfoID, orderByID[p.BasicInfoID], p.PartNumber, p.PartName, p.Quantity, p.UnitPrice, p.SalesAmount,
		)
	}

	_ = f.SetColWidth(headerSheet, "B", "F", 14)
	_ = f.SetColWidth(headerSheet, "J", "K", 38)
	_ = f.SetColWidth(partsSheet, "B", "D", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
