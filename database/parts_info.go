package database

import (
	"fmt"

	"purchases/model"

	"github.com/jmoiron/sqlx"
)

// InsertPartsInfoInTx は1件の基本情報に紐づく部品をまとめて登録します。
func InsertPartsInfoInTx(tx *sqlx.Tx, basicInfoID int64, parts []model.PartsInfo) error {
	if len(parts) == 0 {
		return nil
	}
	const q = `
		INSERT INTO parts_info (
			basic_info_id, part_number, part_name, quantity, unit_price, sales_amount
		) VALUES (?, ?, ?, ?, ?, ?)`

	stmt, err := tx.Prepare(q)
	if err != nil {
		return fmt.Errorf("failed to prepare parts_info insert statement: %w", err)
	}
	defer stmt.Close()

	for i, p := range parts {
		if _, err := stmt.Exec(basicInfoID, p.PartNumber, p.PartName, p.Quantity, p.UnitPrice, p.SalesAmount); err != nil {
			return fmt.Errorf("failed to insert part %d (%s) for basic_info id %d: %w", i+1, p.PartNumber, basicInfoID, err)
		}
	}
	return nil
}

// GetPartsByBasicInfoID は基本情報に紐づく部品を登録順に返します。
func GetPartsByBasicInfoID(dbtx DBTX, basicInfoID int64) ([]model.PartsInfo, error) {
	const q = `
		SELECT id, basic_info_id, part_number, part_name, quantity, unit_price, sales_amount
		FROM parts_info
		WHERE basic_info_id = ?
		ORDER BY id`
	parts := []model.PartsInfo{}
	if err := dbtx.Select(&parts, q, basicInfoID); err != nil {
		return nil, fmt.Errorf("failed to get parts for basic_info id %d: %w", basicInfoID, err)
	}
	return parts, nil
}

// UpdatePartsInfo は部品情報を更新します。該当レコードがなければ NotFound を返します。
func UpdatePartsInfo(dbtx DBTX, id int64, u model.PartsInfoUpdate) error {
	const q = `
		UPDATE parts_info
		SET part_number = ?, part_name = ?, quantity = ?, unit_price = ?, sales_amount = ?
		WHERE id = ?`
	res, err := dbtx.Exec(q, u.PartNumber, u.PartName, u.Quantity, u.UnitPrice, u.SalesAmount, id)
	if err != nil {
		return fmt.Errorf("failed to update parts_info id %d: %w", id, err)
	}
	return requireAffected(res, "部品情報が見つかりません (id: %d)", id)
}

// DeletePartsInfo は部品情報を1件削除します。該当レコードがなければ NotFound を返します。
func DeletePartsInfo(dbtx DBTX, id int64) error {
	res, err := dbtx.Exec(`DELETE FROM parts_info WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete parts_info id %d: %w", id, err)
	}
	return requireAffected(res, "部品情報が見つかりません (id: %d)", id)
}

// GetAllParts は全部品情報を基本情報ID・登録順に返します。
func GetAllParts(dbtx DBTX) ([]model.PartsInfo, error) {
	const q = `
		SELECT id, basic_info_id, part_number, part_name, quantity, unit_price, sales_amount
		FROM parts_info
		ORDER BY basic_info_id, id`
	parts := []model.PartsInfo{}
	if err := dbtx.Select(&parts, q); err != nil {
		return nil, fmt.Errorf("failed to get all parts: %w", err)
	}
	return parts, nil
}
