package purchase

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"purchases/apperrors"
	"purchases/database"
	"purchases/model"
	"purchases/parsers"

	"github.com/jmoiron/sqlx"
)

// ImportRecords は正規化済みレコードを検証・型変換してから1回の取込として保存します。
// 検証に失敗した場合はトランザクションを開始しません。
func ImportRecords(db *sqlx.DB, records []model.CanonicalRecord, opts database.ImportOptions) (model.ImportResult, error) {
	if len(records) == 0 {
		return model.ImportResult{}, apperrors.New(apperrors.EmptyExtraction, "保存対象のデータがありません")
	}
	if err := parsers.ValidateRecords(records); err != nil {
		return model.ImportResult{}, err
	}
	rows, err := parsers.BuildImportRows(records)
	if err != nil {
		return model.ImportResult{}, err
	}
	return database.InsertImportBatch(db, rows, opts)
}

// amountValue は数値・文字列どちらで送られても整数として受け取ります。
type amountValue int64

func (a *amountValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = str
	}
	n, err := parsers.ParseAmount(s)
	if err != nil {
		return err
	}
	*a = amountValue(n)
	return nil
}

type basicInfoPayload struct {
	Page           *string     `json:"page"`
	ShipmentDate   string      `json:"shipment_date"`
	OrderNumber    string      `json:"order_number"`
	DeliveryNumber string      `json:"delivery_number"`
	PersonInCharge string      `json:"person_in_charge"`
	ShippingCost   amountValue `json:"shipping_cost"`
	TotalAmount    amountValue `json:"total_amount"`
}

type partsInfoPayload struct {
	PartNumber  string      `json:"part_number"`
	PartName    string      `json:"part_name"`
	Quantity    amountValue `json:"quantity"`
	UnitPrice   amountValue `json:"unit_price"`
	SalesAmount amountValue `json:"sales_amount"`
}

func decodePayload(body []byte, v interface{}) error {
	dec := json.NewDecoder(parsers.SkipBOM(bytes.NewReader(body)))
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(apperrors.TypeCoercion, "リクエストの内容を解釈できません", err)
	}
	return nil
}

// UpdateHeader は基本情報を更新します。page が省略された場合は現在の値を残します。
func UpdateHeader(db *sqlx.DB, id int64, body []byte) error {
	var p basicInfoPayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}

	u := model.BasicInfoUpdate{
		ShipmentDate:   p.ShipmentDate,
		OrderNumber:    p.OrderNumber,
		DeliveryNumber: p.DeliveryNumber,
		PersonInCharge: p.PersonInCharge,
		ShippingCost:   int64(p.ShippingCost),
		TotalAmount:    int64(p.TotalAmount),
	}
	if p.Page != nil {
		u.Page = *p.Page
	} else {
		current, err := database.GetBasicInfoByID(db, id)
		if err != nil {
			return wrapStorage(err)
		}
		u.Page = current.Page
	}
	return wrapStorage(database.UpdateBasicInfo(db, id, u))
}

// UpdatePart は部品情報を更新します。
func UpdatePart(db *sqlx.DB, id int64, body []byte) error {
	var p partsInfoPayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}
	u := model.PartsInfoUpdate{
		PartNumber:  p.PartNumber,
		PartName:    p.PartName,
		Quantity:    int64(p.Quantity),
		UnitPrice:   int64(p.UnitPrice),
		SalesAmount: int64(p.SalesAmount),
	}
	return wrapStorage(database.UpdatePartsInfo(db, id, u))
}

// wrapStorage は種別の付いていないDBエラーを StorageError にします。
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.StorageError, "データベース処理に失敗しました", err)
}
