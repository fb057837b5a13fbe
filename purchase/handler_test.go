package purchase

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"purchases/database"
	"purchases/loader"
	"purchases/model"
	"purchases/parsers"

	"github.com/jmoiron/sqlx"
)

const flatSample = `[
	{"出荷日":"25/08/01","受注番号":"1234567","納入先番号":"00000000","担当者":"田中",
	 "運賃":0,"税抜合計":100,"部品番号":["A-1"],"部品名":["ボルト"],"数量":[1],"売上単価":[100],"売上金額":[100]}
]`

const envelopeSample = `{"text":[
	{"出荷日":"25/08/02","受注番号":"9876547","納入先番号":"1","担当者":"鈴木","運賃":500,"税抜合計":5500,
	 "明細":[{"部品番号":"B-1","部品名":"ナット","数量":"2","売上単価":"2,500","売上金額":"5,000"}]},
	"メモ\n` + "```json" + `\n{\"受注番号\":\"1212123\",\"部品番号\":[\"C-1\",\"C-2\"],\"部品名\":[\"x\",\"y\"],\"数量\":[1,1],\"売上単価\":[10,20],\"売上金額\":[10,20]}\n` + "```" + `"
]}`

func newTestServer(t *testing.T) (*sqlx.DB, *httptest.Server) {
	t.Helper()
	db, err := loader.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	if err := loader.InitDatabase(db); err != nil {
		t.Fatalf("InitDatabase failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", UploadHandler())
	mux.HandleFunc("POST /api/import", ImportHandler(db))
	mux.HandleFunc("POST /api/save_data", SaveDataHandler(db))
	mux.HandleFunc("GET /api/basic_info", LatestBasicInfoHandler(db))
	mux.HandleFunc("PUT /api/basic_info/{id}", UpdateBasicInfoHandler(db))
	mux.HandleFunc("DELETE /api/basic_info/{id}", DeleteBasicInfoHandler(db))
	mux.HandleFunc("GET /api/purchase_list", PurchaseListHandler(db))
	mux.HandleFunc("GET /api/parts_info/{basic_id}", PartsHandler(db))
	mux.HandleFunc("PUT /api/parts_info/{part_id}", UpdatePartsInfoHandler(db))
	mux.HandleFunc("DELETE /api/parts_info/{part_id}", DeletePartsInfoHandler(db))
	mux.HandleFunc("POST /api/delete_all", DeleteAllHandler(db))

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})
	return db, srv
}

func do(t *testing.T, method, url, contentType string, body []byte) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func multipartFile(t *testing.T, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func getList(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s failed: %v", url, err)
	}
}

func TestSaveDataFlatShape(t *testing.T) {
	_, srv := newTestServer(t)

	resp, out := do(t, http.MethodPost, srv.URL+"/api/save_data", "application/json", []byte(flatSample))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, out)
	}
	if out["success"] != true || out["session_id"] == "" || out["headers"] != float64(1) || out["parts"] != float64(1) {
		t.Errorf("unexpected response: %v", out)
	}

	var headers []model.BasicInfoSummary
	getList(t, srv.URL+"/api/basic_info", &headers)
	if len(headers) != 1 {
		t.Fatalf("expected 1 header, got %d", len(headers))
	}
	if headers[0].TotalAmount != 100 || headers[0].PartsTotal != 100 {
		t.Errorf("totals = %d/%d, want 100/100", headers[0].TotalAmount, headers[0].PartsTotal)
	}
}

func TestImportEnvelopeFile(t *testing.T) {
	_, srv := newTestServer(t)

	body, ct := multipartFile(t, "dify.json", envelopeSample)
	resp, out := do(t, http.MethodPost, srv.URL+"/api/import", ct, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, out)
	}
	if out["headers"] != float64(2) || out["parts"] != float64(3) {
		t.Errorf("unexpected counts: %v", out)
	}

	var headers []model.BasicInfoSummary
	getList(t, srv.URL+"/api/basic_info", &headers)
	totals := map[string]int64{}
	for _, h := range headers {
		totals[h.OrderNumber] = h.TotalAmount
	}
	if totals["9876547"] != 5500 || totals["1212123"] != 30 {
		t.Errorf("unexpected totals: %v", totals)
	}
}

func TestUploadDoesNotWrite(t *testing.T) {
	db, srv := newTestServer(t)

	body, ct := multipartFile(t, "data.json", flatSample)
	resp, out := do(t, http.MethodPost, srv.URL+"/upload", ct, body)
	if resp.StatusCode != http.StatusOK || out["count"] != float64(1) {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, out)
	}
	var n int
	db.Get(&n, `SELECT COUNT(*) FROM basic_info`)
	if n != 0 {
		t.Errorf("upload must not write, found %d rows", n)
	}

	body, ct = multipartFile(t, "data.txt", flatSample)
	resp, _ = do(t, http.MethodPost, srv.URL+"/upload", ct, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-json file status = %d, want 400", resp.StatusCode)
	}
}

func TestSaveDataErrors(t *testing.T) {
	db, srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"shape mismatch", `{"foo":1}`},
		{"broken json", `[{`},
		{"empty envelope", `{"text":[]}`},
		{"length mismatch", `[{"受注番号":"X","部品番号":["a","b"],"部品名":["a"],"数量":[1,1],"売上単価":[1,1],"売上金額":[1,1]}]`},
		{"coercion", `[{"受注番号":"X","運賃":"abc"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := do(t, http.MethodPost, srv.URL+"/api/save_data", "application/json", []byte(tt.body))
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%v)", resp.StatusCode, out)
			}
			if msg, _ := out["error"].(string); msg == "" {
				t.Errorf("error message missing: %v", out)
			}
		})
	}

	var n int
	db.Get(&n, `SELECT COUNT(*) FROM basic_info`)
	if n != 0 {
		t.Errorf("failed imports must not write, found %d rows", n)
	}
}

func TestUpdateAndDeleteEndpoints(t *testing.T) {
	db, srv := newTestServer(t)
	if _, err := ImportRecords(db, mustParse(t, flatSample), database.ImportOptions{}); err != nil {
		t.Fatalf("ImportRecords failed: %v", err)
	}
	var headers []model.BasicInfo
	getList(t, srv.URL+"/api/purchase_list", &headers)
	id := headers[0].ID
	idPath := srv.URL + "/api/basic_info/" + itoa(id)

	update := `{"shipment_date":"25/09/01","order_number":"1234567","delivery_number":"0","person_in_charge":"佐藤","shipping_cost":"300","total_amount":400}`
	resp, out := do(t, http.MethodPut, idPath, "application/json", []byte(update))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d (%v)", resp.StatusCode, out)
	}
	got, _ := database.GetBasicInfoByID(db, id)
	if got.ShippingCost != 300 || got.TotalAmount != 400 || got.PersonInCharge != "佐藤" {
		t.Errorf("update not applied: %+v", got)
	}

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/basic_info/9999", "application/json", []byte(update))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("PUT missing status = %d, want 404", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPut, idPath, "application/json", []byte(`{"shipping_cost":"abc"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT bad number status = %d, want 400", resp.StatusCode)
	}

	var parts []model.PartsInfo
	getList(t, srv.URL+"/api/parts_info/"+itoa(id), &parts)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	partPath := srv.URL + "/api/parts_info/" + itoa(parts[0].ID)
	resp, _ = do(t, http.MethodPut, partPath, "application/json",
		[]byte(`{"part_number":"A-9","part_name":"ボルト","quantity":2,"unit_price":50,"sales_amount":"100"}`))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("PUT part status = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, partPath, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("DELETE part status = %d", resp.StatusCode)
	}
	resp, out = do(t, http.MethodDelete, partPath, "", nil)
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(out["error"].(string), "部品情報が見つかりません") {
		t.Errorf("second DELETE part = %d %v", resp.StatusCode, out)
	}

	resp, _ = do(t, http.MethodDelete, idPath, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("DELETE header status = %d", resp.StatusCode)
	}
	resp, out = do(t, http.MethodDelete, idPath, "", nil)
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(out["error"].(string), "レコードが見つかりません") {
		t.Errorf("second DELETE header = %d %v", resp.StatusCode, out)
	}
}

func TestUpdateKeepsPageWhenOmitted(t *testing.T) {
	db, _ := newTestServer(t)
	records := mustParse(t, `[{"page":"3","受注番号":"P"}]`)
	if _, err := ImportRecords(db, records, database.ImportOptions{}); err != nil {
		t.Fatalf("ImportRecords failed: %v", err)
	}
	headers, _ := database.GetAllHeaders(db)
	if err := UpdateHeader(db, headers[0].ID, []byte(`{"order_number":"P2"}`)); err != nil {
		t.Fatalf("UpdateHeader failed: %v", err)
	}
	got, _ := database.GetBasicInfoByID(db, headers[0].ID)
	if got.Page != "3" || got.OrderNumber != "P2" {
		t.Errorf("page should be kept: %+v", got)
	}
}

func TestDeleteAll(t *testing.T) {
	db, srv := newTestServer(t)
	if _, err := ImportRecords(db, mustParse(t, flatSample), database.ImportOptions{}); err != nil {
		t.Fatalf("ImportRecords failed: %v", err)
	}
	resp, out := do(t, http.MethodPost, srv.URL+"/api/delete_all", "", nil)
	if resp.StatusCode != http.StatusOK || out["headers"] != float64(1) || out["parts"] != float64(1) {
		t.Errorf("delete_all = %d %v", resp.StatusCode, out)
	}
	var headers []model.BasicInfoSummary
	getList(t, srv.URL+"/api/basic_info", &headers)
	if len(headers) != 0 {
		t.Errorf("expected no headers, got %d", len(headers))
	}
}

func mustParse(t *testing.T, s string) []model.CanonicalRecord {
	t.Helper()
	records, err := parsers.ParsePurchaseJSON(strings.NewReader(s))
	if err != nil {
		t.Fatalf("ParsePurchaseJSON failed: %v", err)
	}
	return records
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
