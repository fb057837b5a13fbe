package dify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"purchases/apperrors"
	"purchases/model"
	"purchases/parsers"
)

const maxImageUploadSize = 64 << 20

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Extractor は画像から封筒形式の抽出結果を得るものです。
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (map[string]interface{}, error)
}

// FileResult は複数画像取込のファイルごとの結果です。
type FileResult struct {
	File    string `json:"file"`
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func messageOf(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(apperrors.KindOf(err))
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: [Dify] %v", err)
	}
	writeJSON(w, status, map[string]interface{}{"success": false, "error": messageOf(err)})
}

// extractFile は1枚の画像を抽出・正規化します。
// page が空のレコードには fallbackPage を入れます（空文字なら何もしません）。
func extractFile(ctx context.Context, ex Extractor, fh *multipart.FileHeader, fallbackPage string) ([]model.CanonicalRecord, error) {
	if !imageExtensions[strings.ToLower(filepath.Ext(fh.Filename))] {
		return nil, apperrors.Newf(apperrors.ShapeMismatch, "対応していないファイル形式です: %s (png, jpg, jpeg のみ)", fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ShapeMismatch, "ファイルを開けません", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ShapeMismatch, "ファイルを読み込めません", err)
	}

	envelope, err := ex.Extract(ctx, fh.Filename, data)
	if err != nil {
		return nil, err
	}
	records, err := parsers.NormalizePurchaseData(envelope)
	if err != nil {
		return nil, err
	}
	if fallbackPage != "" {
		for i := range records {
			if records[i].Page == "" {
				records[i].Page = fallbackPage
			}
		}
	}
	return records, nil
}

// FetchDataHandler は画像1枚を抽出し、正規化したレコードを返します。保存はしません。
func FetchDataHandler(ex Extractor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxImageUploadSize); err != nil {
			writeError(w, apperrors.New(apperrors.ShapeMismatch, "ファイルが選択されていません"))
			return
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			writeError(w, apperrors.New(apperrors.ShapeMismatch, "ファイルが選択されていません"))
			return
		}
		if len(files) > 1 {
			writeError(w, apperrors.Newf(apperrors.ShapeMismatch,
				"画像は1枚だけ選択してください (%d枚選択されています)。複数枚は一括取込を使ってください", len(files)))
			return
		}

		records, err := extractFile(r.Context(), ex, files[0], "")
		if err != nil {
			writeError(w, err)
			return
		}
		log.Printf("INFO: [Dify] %s: %d records extracted", files[0].Filename, len(records))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    records,
		})
	}
}

// FetchDataMultipleHandler は複数画像を順に抽出します。
// 1件でも成功すれば 200 を返し、失敗したファイルは errors に列挙します。
// 全件失敗した場合は、すべてタイムアウトなら 504、抽出サービスのエラーを含めば 502、それ以外は 400 です。
func FetchDataMultipleHandler(ex Extractor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxImageUploadSize); err != nil {
			writeError(w, apperrors.New(apperrors.ShapeMismatch, "ファイルが選択されていません"))
			return
		}
		files := r.MultipartForm.File["files"]
		if len(files) == 0 {
			writeError(w, apperrors.New(apperrors.ShapeMismatch, "ファイルが選択されていません"))
			return
		}

		all := []model.CanonicalRecord{}
		results := make([]FileResult, 0, len(files))
		messages := []string{}
		allTimeouts := true
		anyGateway := false

		for _, fh := range files {
			records, err := extractFile(r.Context(), ex, fh, fh.Filename)
			if err != nil {
				log.Printf("WARN: [Dify] %s: %v", fh.Filename, err)
				msg := fmt.Sprintf("%s: %s", fh.Filename, messageOf(err))
				results = append(results, FileResult{File: fh.Filename, Error: msg})
				messages = append(messages, msg)
				switch apperrors.KindOf(err) {
				case apperrors.GatewayTimeout:
					anyGateway = true
				case apperrors.GatewayError:
					anyGateway = true
					allTimeouts = false
				default:
					allTimeouts = false
				}
				continue
			}
			all = append(all, records...)
			results = append(results, FileResult{File: fh.Filename, Success: true, Count: len(records)})
		}

		if len(all) == 0 {
			// 抽出サービスが原因でなければ入力側の問題として 400
			status := http.StatusBadRequest
			switch {
			case allTimeouts:
				status = http.StatusGatewayTimeout
			case anyGateway:
				status = http.StatusBadGateway
			}
			writeJSON(w, status, map[string]interface{}{
				"success": false,
				"error":   strings.Join(messages, "; "),
				"errors":  messages,
				"results": results,
			})
			return
		}

		log.Printf("INFO: [Dify] %d/%d files extracted, %d records", len(files)-len(messages), len(files), len(all))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    all,
			"errors":  messages,
			"results": results,
		})
	}
}
