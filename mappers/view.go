package mappers

import (
	"fmt"

	"purchases/model"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var yenPrinter = message.NewPrinter(language.Japanese)

// FormatYen は金額を "¥1,234" の形式にします。
func FormatYen(n int64) string {
	return yenPrinter.Sprintf("¥%d", n)
}

// FormatCount は数量を桁区切り付きで表示します。
func FormatCount(n int64) string {
	return yenPrinter.Sprintf("%d", n)
}

// HeaderView は基本情報の画面表示用です。
type HeaderView struct {
	model.BasicInfo
	PartsTotal       int64
	HasPartsTotal    bool
	ShippingCostText string
	TotalAmountText  string
	PartsTotalText   string
	DetailURL        string
}

// PartView は部品情報の画面表示用です。
type PartView struct {
	model.PartsInfo
	QuantityText    string
	UnitPriceText   string
	SalesAmountText string
}

// ToHeaderView は保存値のまま表示する基本情報（全期間一覧）を変換します。
func ToHeaderView(b model.BasicInfo) HeaderView {
	return HeaderView{
		BasicInfo:        b,
		ShippingCostText: FormatYen(b.ShippingCost),
		TotalAmountText:  FormatYen(b.TotalAmount),
		DetailURL:        fmt.Sprintf("/parts_info/%d", b.ID),
	}
}

// ToSummaryView は部品合計付きの基本情報（最新取込分）を変換します。
func ToSummaryView(s model.BasicInfoSummary) HeaderView {
	v := ToHeaderView(s.BasicInfo)
	v.PartsTotal = s.PartsTotal
	v.HasPartsTotal = true
	v.PartsTotalText = FormatYen(s.PartsTotal)
	return v
}

func ToHeaderViews(headers []model.BasicInfo) []HeaderView {
	views := make([]HeaderView, 0, len(headers))
	for _, h := range headers {
		views = append(views, ToHeaderView(h))
	}
	return views
}

func ToSummaryViews(headers []model.BasicInfoSummary) []HeaderView {
	views := make([]HeaderView, 0, len(headers))
	for _, h := range headers {
		views = append(views, ToSummaryView(h))
	}
	return views
}

func ToPartViews(parts []model.PartsInfo) []PartView {
	views := make([]PartView, 0, len(parts))
	for _, p := range parts {
		views = append(views, PartView{
			PartsInfo:       p,
			QuantityText:    FormatCount(p.Quantity),
			UnitPriceText:   FormatYen(p.UnitPrice),
			SalesAmountText: FormatYen(p.SalesAmount),
		})
	}
	return views
}
