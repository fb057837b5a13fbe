package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"purchases/apperrors"
	"purchases/loader"
	"purchases/model"

	"github.com/jmoiron/sqlx"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := loader.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	if err := loader.InitDatabase(db); err != nil {
		db.Close()
		t.Fatalf("InitDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRow(order string, shipping int64, amounts ...int64) model.ImportRow {
	row := model.ImportRow{
		Header: model.BasicInfo{
			ShipmentDate:   "25/08/01",
			OrderNumber:    order,
			DeliveryNumber: "00000000",
			PersonInCharge: "田中",
			ShippingCost:   shipping,
			TotalAmount:    999,
		},
	}
	for i, a := range amounts {
		row.Parts = append(row.Parts, model.PartsInfo{
			PartNumber:  fmt.Sprintf("%s-%d", order, i+1),
			PartName:    "パッキン",
			Quantity:    1,
			UnitPrice:   a,
			SalesAmount: a,
		})
	}
	return row
}

func fixedClock(ts string) func() time.Time {
	return func() time.Time {
		tm, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			panic(err)
		}
		return tm
	}
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	if err := db.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}

func TestInsertImportBatch(t *testing.T) {
	db := openTestDB(t)

	rows := []model.ImportRow{
		sampleRow("1234567", 0, 100),
		sampleRow("9876547", 500, 5000),
		sampleRow("1212123", 0, 500, 10, 160),
	}
	res, err := InsertImportBatch(db, rows, ImportOptions{})
	if err != nil {
		t.Fatalf("InsertImportBatch failed: %v", err)
	}
	if res.SessionID == "" || res.HeaderCount != 3 || res.PartsCount != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := countRows(t, db, "basic_info"); got != 3 {
		t.Errorf("basic_info rows = %d, want 3", got)
	}
	if got := countRows(t, db, "parts_info"); got != 5 {
		t.Errorf("parts_info rows = %d, want 5", got)
	}

	var sessions []string
	if err := db.Select(&sessions, `SELECT DISTINCT import_session_id FROM basic_info`); err != nil {
		t.Fatalf("select sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0] != res.SessionID {
		t.Errorf("all headers should share session %s, got %v", res.SessionID, sessions)
	}

	second, err := InsertImportBatch(db, []model.ImportRow{sampleRow("5555555", 0)}, ImportOptions{})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if second.SessionID == res.SessionID {
		t.Errorf("each import must get a fresh session id")
	}
}

func TestInsertImportBatchRollsBack(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Exec(`DROP TABLE parts_info`); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	_, err := InsertImportBatch(db, []model.ImportRow{sampleRow("1", 0), sampleRow("2", 0, 10)}, ImportOptions{})
	if apperrors.KindOf(err) != apperrors.StorageError {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if got := countRows(t, db, "basic_info"); got != 0 {
		t.Errorf("headers from the failed import must be rolled back, found %d", got)
	}
}

func TestInsertImportBatchRejectsEmpty(t *testing.T) {
	db := openTestDB(t)
	_, err := InsertImportBatch(db, nil, ImportOptions{})
	if apperrors.KindOf(err) != apperrors.EmptyExtraction {
		t.Errorf("expected EmptyExtraction, got %v", err)
	}
}

func TestGetLatestBatchHeaders(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec(`
		INSERT INTO basic_info (shipment_date, order_number, delivery_number, person_in_charge, shipping_cost, total_amount, created_at)
		VALUES ('24/01/01', 'L-1', '0', '山田', 0, 0, '2024-01-01 00:00:00')`); err != nil {
		t.Fatalf("legacy insert failed: %v", err)
	}

	first, err := InsertImportBatch(db, []model.ImportRow{sampleRow("OLD", 0, 1)},
		ImportOptions{NewSessionID: func() string { return "s-1" }, Now: fixedClock("2025-08-01T10:00:00Z")})
	if err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	second, err := InsertImportBatch(db, []model.ImportRow{sampleRow("A", 500, 100, 200), sampleRow("B", 0)},
		ImportOptions{NewSessionID: func() string { return "s-2" }, Now: fixedClock("2025-08-02T10:00:00Z")})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatalf("sessions should differ")
	}

	headers, err := GetLatestBatchHeaders(db)
	if err != nil {
		t.Fatalf("GetLatestBatchHeaders failed: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers from the latest batch, got %d", len(headers))
	}
	byOrder := map[string]model.BasicInfoSummary{}
	for _, h := range headers {
		if h.ImportSessionID != "s-2" {
			t.Errorf("header %s belongs to %s", h.OrderNumber, h.ImportSessionID)
		}
		byOrder[h.OrderNumber] = h
	}
	if a := byOrder["A"]; a.PartsTotal != 300 || a.TotalAmount != 800 {
		t.Errorf("A totals = parts %d total %d, want 300/800", a.PartsTotal, a.TotalAmount)
	}
	if b := byOrder["B"]; b.PartsTotal != 0 || b.TotalAmount != 0 {
		t.Errorf("B totals = parts %d total %d, want 0/0", b.PartsTotal, b.TotalAmount)
	}

	all, err := GetAllHeaders(db)
	if err != nil {
		t.Fatalf("GetAllHeaders failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 headers in history, got %d", len(all))
	}
	for _, h := range all {
		if h.OrderNumber == "A" && h.TotalAmount != 999 {
			t.Errorf("history should keep the stored total_amount, got %d", h.TotalAmount)
		}
		if h.OrderNumber == "L-1" && h.ImportSessionID != model.LegacySessionID {
			t.Errorf("legacy row session = %q", h.ImportSessionID)
		}
	}
}

func TestGetLatestBatchHeadersSameTimestamp(t *testing.T) {
	db := openTestDB(t)
	clock := fixedClock("2025-08-01T10:00:00Z")

	if _, err := InsertImportBatch(db, []model.ImportRow{sampleRow("X", 0)}, ImportOptions{NewSessionID: func() string { return "zzz" }, Now: clock}); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if _, err := InsertImportBatch(db, []model.ImportRow{sampleRow("Y", 0)}, ImportOptions{NewSessionID: func() string { return "aaa" }, Now: clock}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	headers, err := GetLatestBatchHeaders(db)
	if err != nil {
		t.Fatalf("GetLatestBatchHeaders failed: %v", err)
	}
	if len(headers) != 1 || headers[0].OrderNumber != "Y" {
		t.Errorf("the later insert should win a timestamp tie, got %+v", headers)
	}
}

func TestGetLatestBatchHeadersEmpty(t *testing.T) {
	db := openTestDB(t)
	headers, err := GetLatestBatchHeaders(db)
	if err != nil {
		t.Fatalf("GetLatestBatchHeaders failed: %v", err)
	}
	if headers == nil || len(headers) != 0 {
		t.Errorf("expected an empty, non-nil list, got %#v", headers)
	}
}

func TestLatestSessionID(t *testing.T) {
	sessions := []model.ImportSession{
		{ID: "legacy", CreatedAt: "2024-01-01 00:00:00", LastHeaderID: 1},
		{ID: "b", CreatedAt: "2025-08-02 10:00:00.000000", LastHeaderID: 3},
		{ID: "a", CreatedAt: "2025-08-02 10:00:00.000000", LastHeaderID: 5},
		{ID: "c", CreatedAt: "2025-08-01 23:59:59", LastHeaderID: 9},
	}
	got, ok := LatestSessionID(sessions)
	if !ok || got != "a" {
		t.Errorf("LatestSessionID = %q, %v; want a, true", got, ok)
	}
	if _, ok := LatestSessionID(nil); ok {
		t.Errorf("no sessions should report false")
	}
}

func TestDeleteBasicInfoCascades(t *testing.T) {
	db := openTestDB(t)
	if _, err := InsertImportBatch(db, []model.ImportRow{sampleRow("A", 0, 1, 2), sampleRow("B", 0, 3)}, ImportOptions{}); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	var idA int64
	if err := db.Get(&idA, `SELECT id FROM basic_info WHERE order_number = 'A'`); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	if err := DeleteBasicInfo(db, idA); err != nil {
		t.Fatalf("DeleteBasicInfo failed: %v", err)
	}
	if got := countRows(t, db, "basic_info"); got != 1 {
		t.Errorf("basic_info rows = %d, want 1", got)
	}
	parts, err := GetPartsByBasicInfoID(db, idA)
	if err != nil {
		t.Fatalf("GetPartsByBasicInfoID failed: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("parts of the deleted header should be gone, got %d", len(parts))
	}
	if got := countRows(t, db, "parts_info"); got != 1 {
		t.Errorf("other headers' parts must remain, got %d rows", got)
	}
}

func TestDeleteBasicInfoNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := InsertImportBatch(db, []model.ImportRow{sampleRow("A", 0, 1)}, ImportOptions{}); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	// 親のない部品行も消えないこと
	if _, err := db.Exec(`INSERT INTO parts_info (basic_info_id, part_number, part_name, quantity, unit_price, sales_amount) VALUES (777, 'x', 'y', 1, 1, 1)`); err != nil {
		t.Fatalf("orphan insert failed: %v", err)
	}

	err := DeleteBasicInfo(db, 777)
	if !errors.Is(err, apperrors.Sentinel(apperrors.NotFound)) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if got := countRows(t, db, "parts_info"); got != 2 {
		t.Errorf("a NotFound delete must not change state, parts rows = %d", got)
	}
	if got := countRows(t, db, "basic_info"); got != 1 {
		t.Errorf("basic_info rows = %d, want 1", got)
	}
}

func TestUpdateBasicInfo(t *testing.T) {
	db := openTestDB(t)
	if _, err := InsertImportBatch(db, []model.ImportRow{sampleRow("A", 0, 1)}, ImportOptions{}); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	all, _ := GetAllHeaders(db)
	id := all[0].ID

	u := model.BasicInfoUpdate{Page: "p1", ShipmentDate: "25/09/01", OrderNumber: "A2", DeliveryNumber: "1", PersonInCharge: "山本", ShippingCost: 300, TotalAmount: 301}
	if err := UpdateBasicInfo(db, id, u); err != nil {
		t.Fatalf("UpdateBasicInfo failed: %v", err)
	}
	got, err := GetBasicInfoByID(db, id)
	if err != nil {
		t.Fatalf("GetBasicInfoByID failed: %v", err)
	}
	if got.OrderNumber != "A2" || got.Page != "p1" || got.ShippingCost != 300 || got.TotalAmount != 301 || got.PersonInCharge != "山本" {
		t.Errorf("update not applied: %+v", got)
	}

	if err := UpdateBasicInfo(db, id+100, u); apperrors.KindOf(err) != apperrors.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, err := GetBasicInfoByID(db, id+100); apperrors.KindOf(err) != apperrors.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestUpdateAndDeletePartsInfo(t *testing.T) {
	db := openTestDB(t)
	if _, err := InsertImportBatch(db, []model.ImportRow{sampleRow("A", 0, 10, 20)}, ImportOptions{}); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	all, _ := GetAllHeaders(db)
	parts, err := GetPartsByBasicInfoID(db, all[0].ID)
	if err != nil || len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d (%v)", len(parts), err)
	}

	u := model.PartsInfoUpdate{PartNumber: "N-1", PartName: "ホース", Quantity: 3, UnitPrice: 50, SalesAmount: 150}
	if err := UpdatePartsInfo(db, parts[0].ID, u); err != nil {
		t.Fatalf("UpdatePartsInfo failed: %v", err)
	}
	latest, _ := GetLatestBatchHeaders(db)
	if latest[0].PartsTotal != 170 {
		t.Errorf("parts total after update = %d, want 170", latest[0].PartsTotal)
	}

	if err := DeletePartsInfo(db, parts[1].ID); err != nil {
		t.Fatalf("DeletePartsInfo failed: %v", err)
	}
	if err := DeletePartsInfo(db, parts[1].ID); apperrors.KindOf(err) != apperrors.NotFound {
		t.Errorf("second delete should be NotFound, got %v", err)
	}
	if err := UpdatePartsInfo(db, 9999, u); apperrors.KindOf(err) != apperrors.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestDeleteAllData(t *testing.T) {
	db := openTestDB(t)
	if _, err := InsertImportBatch(db, []model.ImportRow{sampleRow("A", 0, 1, 2), sampleRow("B", 0)}, ImportOptions{}); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	headers, parts, err := DeleteAllData(db)
	if err != nil {
		t.Fatalf("DeleteAllData failed: %v", err)
	}
	if headers != 2 || parts != 2 {
		t.Errorf("deleted headers=%d parts=%d, want 2/2", headers, parts)
	}
	if countRows(t, db, "basic_info") != 0 || countRows(t, db, "parts_info") != 0 {
		t.Errorf("tables should be empty")
	}
}
