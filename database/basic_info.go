package database

import (
	"database/sql"
	"errors"
	"fmt"

	"purchases/apperrors"
	"purchases/model"

	"github.com/jmoiron/sqlx"
)

const basicInfoColumns = `
	id, COALESCE(page, '') AS page, shipment_date, order_number, delivery_number,
	person_in_charge, shipping_cost, total_amount, import_session_id,
	COALESCE(created_at, '') AS created_at`

// InsertBasicInfoInTx は基本情報を1件登録し、採番されたIDを返します。
func InsertBasicInfoInTx(tx *sqlx.Tx, b model.BasicInfo) (int64, error) {
	const q = `
		INSERT INTO basic_info (
			page, shipment_date, order_number, delivery_number, person_in_charge,
			shipping_cost, total_amount, import_session_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.Exec(q,
		b.Page, b.ShipmentDate, b.OrderNumber, b.DeliveryNumber, b.PersonInCharge,
		b.ShippingCost, b.TotalAmount, b.ImportSessionID, b.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("InsertBasicInfoInTx (order %s) failed: %w", b.OrderNumber, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get basic_info id for order %s: %w", b.OrderNumber, err)
	}
	return id, nil
}

// GetLatestBatchHeaders は最新の取込セッションの基本情報を返します。
// 部品合計と税抜合計（運賃 + 部品合計）はその場で計算します。
func GetLatestBatchHeaders(dbtx DBTX) ([]model.BasicInfoSummary, error) {
	sessions, err := GetImportSessions(dbtx)
	if err != nil {
		return nil, err
	}
	latest, ok := LatestSessionID(sessions)
	if !ok {
		return []model.BasicInfoSummary{}, nil
	}
	return GetBatchHeaders(dbtx, latest)
}

// GetBatchHeaders は指定セッションの基本情報を部品合計付きで返します。
func GetBatchHeaders(dbtx DBTX, sessionID string) ([]model.BasicInfoSummary, error) {
	const q = `
		SELECT
			b.id, COALESCE(b.page, '') AS page, b.shipment_date, b.order_number,
			b.delivery_number, b.person_in_charge, b.shipping_cost,
			b.shipping_cost + COALESCE(p.parts_total, 0) AS total_amount,
			b.import_session_id, COALESCE(b.created_at, '') AS created_at,
			COALESCE(p.parts_total, 0) AS parts_total
		FROM basic_info b
		LEFT JOIN (
			SELECT basic_info_id, SUM(sales_amount) AS parts_total
			FROM parts_info
			GROUP BY basic_info_id
		) p ON p.basic_info_id = b.id
		WHERE b.import_session_id = ?
		ORDER BY b.shipment_date DESC, b.id
	`
	headers := []model.BasicInfoSummary{}
	if err := dbtx.Select(&headers, q, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get headers for session %s: %w", sessionID, err)
	}
	return headers, nil
}

// GetAllHeaders は全セッションの基本情報を返します。
// 税抜合計は保存されている値のままで、最新取込の一覧（部品から再計算）とは一致しないことがあります。
func GetAllHeaders(dbtx DBTX) ([]model.BasicInfo, error) {
	q := `SELECT ` + basicInfoColumns + ` FROM basic_info ORDER BY shipment_date DESC, id`
	headers := []model.BasicInfo{}
	if err := dbtx.Select(&headers, q); err != nil {
		return nil, fmt.Errorf("failed to get all headers: %w", err)
	}
	return headers, nil
}

// GetBasicInfoByID は基本情報を1件取得します。
func GetBasicInfoByID(dbtx DBTX, id int64) (*model.BasicInfo, error) {
	q := `SELECT ` + basicInfoColumns + ` FROM basic_info WHERE id = ?`
	var b model.BasicInfo
	if err := dbtx.Get(&b, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Newf(apperrors.NotFound, "レコードが見つかりません (id: %d)", id)
		}
		return nil, fmt.Errorf("failed to get basic_info id %d: %w", id, err)
	}
	return &b, nil
}

// UpdateBasicInfo は基本情報を更新します。該当レコードがなければ NotFound を返します。
func UpdateBasicInfo(dbtx DBTX, id int64, u model.BasicInfoUpdate) error {
	const q = `
		UPDATE basic_info
		SET page = ?, shipment_date = ?, order_number = ?, delivery_number = ?,
			person_in_charge = ?, shipping_cost = ?, total_amount = ?
		WHERE id = ?`
	res, err := dbtx.Exec(q,
		u.Page, u.ShipmentDate, u.OrderNumber, u.DeliveryNumber,
		u.PersonInCharge, u.ShippingCost, u.TotalAmount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update basic_info id %d: %w", id, err)
	}
	return requireAffected(res, "レコードが見つかりません (id: %d)", id)
}

// DeleteBasicInfoInTx は部品情報を先に削除してから基本情報を削除します。
// 基本情報が存在しない場合は NotFound を返すので、呼び出し側でロールバックしてください。
func DeleteBasicInfoInTx(tx *sqlx.Tx, id int64) (int64, error) {
	partsRes, err := tx.Exec(`DELETE FROM parts_info WHERE basic_info_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete parts for basic_info id %d: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM basic_info WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete basic_info id %d: %w", id, err)
	}
	if err := requireAffected(res, "レコードが見つかりません (id: %d)", id); err != nil {
		return 0, err
	}
	partsDeleted, _ := partsRes.RowsAffected()
	return partsDeleted, nil
}

// DeleteBasicInfo は DeleteBasicInfoInTx をトランザクション内で実行します。
func DeleteBasicInfo(db *sqlx.DB, id int64) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := DeleteBasicInfoInTx(tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of basic_info id %d: %w", id, err)
	}
	return nil
}

// DeleteAllData は部品情報と基本情報をすべて削除します。
func DeleteAllData(db *sqlx.DB) (headers int64, parts int64, err error) {
	tx, err := db.Beginx()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	partsRes, err := tx.Exec(`DELETE FROM parts_info`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clear parts_info: %w", err)
	}
	headersRes, err := tx.Exec(`DELETE FROM basic_info`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clear basic_info: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit delete all: %w", err)
	}
	parts, _ = partsRes.RowsAffected()
	headers, _ = headersRes.RowsAffected()
	return headers, parts, nil
}

func requireAffected(res sql.Result, format string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for id %d: %w", id, err)
	}
	if n == 0 {
		return apperrors.Newf(apperrors.NotFound, format, id)
	}
	return nil
}
