package purchase

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"purchases/apperrors"
	"purchases/database"
	"purchases/model"
	"purchases/parsers"

	"github.com/jmoiron/sqlx"
)

const maxUploadSize = 32 << 20

// writeJSON はJSONレスポンスを返します。
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// WriteError はエラー種別に応じたステータスでエラーを返します。
func WriteError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)

	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %v", err)
	}
	writeJSONError(w, message, status)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// readJSONUpload はマルチパートの "file" からJSONを読み込み、正規化します。
func readJSONUpload(r *http.Request) ([]model.CanonicalRecord, string, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, "", apperrors.New(apperrors.ShapeMismatch, "ファイルが選択されていません")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", apperrors.New(apperrors.ShapeMismatch, "ファイルが選択されていません")
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		return nil, header.Filename, apperrors.New(apperrors.ShapeMismatch, "有効なJSONファイルを選択してください")
	}
	records, err := parsers.ParsePurchaseJSON(file)
	return records, header.Filename, err
}

// UploadHandler はJSONファイルを正規化・検証して返します。保存はしません。
func UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, filename, err := readJSONUpload(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		if len(records) == 0 {
			WriteError(w, apperrors.New(apperrors.EmptyExtraction, "ファイルにデータがありません"))
			return
		}
		if _, err := parsers.BuildImportRows(records); err != nil {
			WriteError(w, err)
			return
		}
		log.Printf("INFO: [Upload] %s: %d records normalized", filename, len(records))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    records,
			"count":   len(records),
		})
	}
}

// ImportHandler はJSONファイルを正規化し、そのまま取込みます。
func ImportHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, filename, err := readJSONUpload(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		result, err := ImportRecords(db, records, database.ImportOptions{})
		if err != nil {
			WriteError(w, err)
			return
		}
		log.Printf("INFO: [Import] %s imported as session %s", filename, result.SessionID)
		writeImportResult(w, result)
	}
}

// SaveDataHandler はリクエスト本文のJSON（受け付ける形ならどれでも）を取込みます。
func SaveDataHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := parsers.ParsePurchaseJSON(io.LimitReader(r.Body, maxUploadSize))
		if err != nil {
			WriteError(w, err)
			return
		}
		result, err := ImportRecords(db, records, database.ImportOptions{})
		if err != nil {
			WriteError(w, err)
			return
		}
		writeImportResult(w, result)
	}
}

func writeImportResult(w http.ResponseWriter, result model.ImportResult) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": result.SessionID,
		"headers":    result.HeaderCount,
		"parts":      result.PartsCount,
	})
}

// LatestBasicInfoHandler は最新の取込分の基本情報を返します。
func LatestBasicInfoHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers, err := database.GetLatestBatchHeaders(db)
		if err != nil {
			WriteError(w, wrapStorage(err))
			return
		}
		writeJSON(w, http.StatusOK, headers)
	}
}

// PurchaseListHandler は全期間の基本情報を返します。
func PurchaseListHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers, err := database.GetAllHeaders(db)
		if err != nil {
			WriteError(w, wrapStorage(err))
			return
		}
		writeJSON(w, http.StatusOK, headers)
	}
}

// PartsHandler は基本情報に紐づく部品情報を返します。
func PartsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "basic_id")
		if !ok {
			writeJSONError(w, "IDが不正です", http.StatusBadRequest)
			return
		}
		parts, err := database.GetPartsByBasicInfoID(db, id)
		if err != nil {
			WriteError(w, wrapStorage(err))
			return
		}
		writeJSON(w, http.StatusOK, parts)
	}
}

func UpdateBasicInfoHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeJSONError(w, "IDが不正です", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, "リクエストの読み込みに失敗しました", http.StatusBadRequest)
			return
		}
		if err := UpdateHeader(db, id, body); err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func DeleteBasicInfoHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeJSONError(w, "IDが不正です", http.StatusBadRequest)
			return
		}
		if err := database.DeleteBasicInfo(db, id); err != nil {
			WriteError(w, wrapStorage(err))
			return
		}
		log.Printf("INFO: [Delete] basic_info id %d deleted", id)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func UpdatePartsInfoHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "part_id")
		if !ok {
			writeJSONError(w, "IDが不正です", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, "リクエストの読み込みに失敗しました", http.StatusBadRequest)
			return
		}
		if err := UpdatePart(db, id, body); err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func DeletePartsInfoHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "part_id")
		if !ok {
			writeJSONError(w, "IDが不正です", http.StatusBadRequest)
			return
		}
		if err := database.DeletePartsInfo(db, id); err != nil {
			WriteError(w, wrapStorage(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// DeleteAllHandler は全データを削除します。
func DeleteAllHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers, parts, err := database.DeleteAllData(db)
		if err != nil {
			WriteError(w, wrapStorage(err))
			return
		}
		log.Printf("WARN: [DeleteAll] %d headers and %d parts deleted", headers, parts)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"headers": headers,
			"parts":   parts,
		})
	}
}
