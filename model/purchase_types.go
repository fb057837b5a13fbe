package model

// LegacySessionID は取込セッション導入前のレコードに付く固定のセッションIDです。
const LegacySessionID = "legacy"

// BasicInfo は basic_info テーブルのレコード（基本情報）を表します。
type BasicInfo struct {
	ID              int64  `db:"id" json:"id"`
	Page            string `db:"page" json:"page"`
	ShipmentDate    string `db:"shipment_date" json:"shipment_date"`
	OrderNumber     string `db:"order_number" json:"order_number"`
	DeliveryNumber  string `db:"delivery_number" json:"delivery_number"`
	PersonInCharge  string `db:"person_in_charge" json:"person_in_charge"`
	ShippingCost    int64  `db:"shipping_cost" json:"shipping_cost"`
	TotalAmount     int64  `db:"total_amount" json:"total_amount"`
	ImportSessionID string `db:"import_session_id" json:"import_session_id"`
	CreatedAt       string `db:"created_at" json:"created_at"`
}

// BasicInfoSummary は最新取込分の一覧表示用です。
// TotalAmount は保存値ではなく 運賃 + 部品合計 で再計算されます。
type BasicInfoSummary struct {
	BasicInfo
	PartsTotal int64 `db:"parts_total" json:"parts_total"`
}

// PartsInfo は parts_info テーブルのレコード（部品情報）を表します。
type PartsInfo struct {
	ID          int64  `db:"id" json:"id"`
	BasicInfoID int64  `db:"basic_info_id" json:"basic_info_id"`
	PartNumber  string `db:"part_number" json:"part_number"`
	PartName    string `db:"part_name" json:"part_name"`
	Quantity    int64  `db:"quantity" json:"quantity"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
	SalesAmount int64  `db:"sales_amount" json:"sales_amount"`
}

// BasicInfoUpdate は基本情報の更新内容です。
type BasicInfoUpdate struct {
	Page           string
	ShipmentDate   string
	OrderNumber    string
	DeliveryNumber string
	PersonInCharge string
	ShippingCost   int64
	TotalAmount    int64
}

// PartsInfoUpdate は部品情報の更新内容です。
type PartsInfoUpdate struct {
	PartNumber  string
	PartName    string
	Quantity    int64
	UnitPrice   int64
	SalesAmount int64
}

// CanonicalRecord は取込JSONを正規化した1件分（基本情報＋部品の並列配列）です。
// 数値項目は型変換前のテキストのまま保持します。
type CanonicalRecord struct {
	Page           string   `json:"page"`
	ShipmentDate   string   `json:"shipment_date"`
	OrderNumber    string   `json:"order_number"`
	DeliveryNumber string   `json:"delivery_number"`
	PersonInCharge string   `json:"person_in_charge"`
	ShippingCost   string   `json:"shipping_cost"`
	TotalAmount    string   `json:"total_amount"`
	PartNumbers    []string `json:"part_numbers"`
	PartNames      []string `json:"part_names"`
	Quantities     []string `json:"quantities"`
	UnitPrices     []string `json:"unit_prices"`
	SalesAmounts   []string `json:"sales_amounts"`

	// Source は正規化元のオブジェクトです。
	Source map[string]interface{} `json:"-"`
}

// ImportRow は型変換済みの取込1件分です。
type ImportRow struct {
	Header BasicInfo
	Parts  []PartsInfo
}

// ImportSession はセッションごとの最終作成日時です。
type ImportSession struct {
	ID           string `db:"import_session_id" json:"import_session_id"`
	CreatedAt    string `db:"created_at" json:"created_at"`
	LastHeaderID int64  `db:"last_header_id" json:"last_header_id"`
}

// ImportResult は取込結果です。
type ImportResult struct {
	SessionID   string `json:"session_id"`
	HeaderCount int    `json:"headers"`
	PartsCount  int    `json:"parts"`
}
