package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"purchases/database"
	"purchases/model"

	"github.com/jmoiron/sqlx"
)

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func loadPurchaseList(db *sqlx.DB) ([]model.BasicInfo, []model.PartsInfo, error) {
	headers, err := database.GetAllHeaders(db)
	if err != nil {
		return nil, nil, err
	}
	parts, err := database.GetAllParts(db)
	if err != nil {
		return nil, nil, err
	}
	return headers, parts, nil
}

func attachment(w http.ResponseWriter, contentType, fileName string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(fileName))
}

// PurchaseListCSVHandler は仕入一覧をCSVで返します。既定は Shift_JIS、?encoding=utf8 でBOM付きUTF-8です。
func PurchaseListCSVHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers, parts, err := loadPurchaseList(db)
		if err != nil {
			log.Printf("ERROR: [Export] failed to load purchase list: %v", err)
			writeJSONError(w, "仕入一覧の取得に失敗しました", http.StatusInternalServerError)
			return
		}

		enc, charset := ShiftJIS, "Shift_JIS"
		if r.URL.Query().Get("encoding") == "utf8" {
			enc, charset = UTF8BOM, "utf-8"
		}

		var buf bytes.Buffer
		if err := WritePurchaseListCSV(&buf, headers, parts, enc); err != nil {
			log.Printf("ERROR: [Export] failed to write CSV: %v", err)
			writeJSONError(w, "CSVの作成に失敗しました", http.StatusInternalServerError)
			return
		}

		fileName := fmt.Sprintf("仕入一覧_%s.csv", time.Now().Format("20060102_150405"))
		attachment(w, "text/csv; charset="+charset, fileName)
		w.Write(buf.Bytes())
	}
}

// PurchaseListXLSXHandler は仕入一覧をExcelファイルで返します。
func PurchaseListXLSXHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers, parts, err := loadPurchaseList(db)
		if err != nil {
			log.Printf("ERROR: [Export] failed to load purchase list: %v", err)
			writeJSONError(w, "仕入一覧の取得に失敗しました", http.StatusInternalServerError)
			return
		}
		data, err := PurchaseListXLSX(headers, parts)
		if err != nil {
			log.Printf("ERROR: [Export] failed to build xlsx: %v", err)
			writeJSONError(w, "Excelファイルの作成に失敗しました", http.StatusInternalServerError)
			return
		}

		fileName := fmt.Sprintf("仕入一覧_%s.xlsx", time.Now().Format("20060102_150405"))
		attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", fileName)
		w.Write(data)
	}
}
