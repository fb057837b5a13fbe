package render

import (
	"fmt"
	"html"
	"strings"

	"purchases/mappers"
)

var esc = html.EscapeString

// 編集・削除は画面側のスクリプトが data-* の値を使って API を呼ぶ
const rowButtons = `<button type="button" data-action="edit">編集</button> <button type="button" data-action="delete">削除</button>`

// RenderHeaderTableHTML は基本情報の一覧テーブルを生成します。
// 部品合計を持つビュー（最新取込分）の場合は部品合計の列を追加します。
func RenderHeaderTableHTML(views []mappers.HeaderView, withPartsTotal bool) string {
	var sb strings.Builder

	sb.WriteString(`
    <thead>
        <tr>
            <th class="col-page">ページ</th>
            <th class="col-date">出荷日</th>
            <th class="col-order">受注番号</th>
            <th class="col-delivery">納入先番号</th>
            <th class="col-person">担当者</th>
            <th class="col-shipping">運賃</th>`)
	if withPartsTotal {
		sb.WriteString(`
            <th class="col-parts-total">部品合計</th>`)
	}
	sb.WriteString(`
            <th class="col-total">税抜合計</th>
            <th class="col-action"></th>
        </tr>
    </thead>`)

	colspan := 8
	if withPartsTotal {
		colspan = 9
	}

	sb.WriteString(`<tbody>`)
	if len(views) == 0 {
		sb.WriteString(fmt.Sprintf(`<tr><td colspan="%d">登録されたデータはありません。</td></tr>`, colspan))
	} else {
		for _, v := range views {
			sb.WriteString(fmt.Sprintf(
				`<tr data-id="%d" data-page="%s" data-shipment_date="%s" data-order_number="%s" data-delivery_number="%s" data-person_in_charge="%s" data-shipping_cost="%d" data-total_amount="%d">`,
				v.ID, esc(v.Page), esc(v.ShipmentDate), esc(v.OrderNumber), esc(v.DeliveryNumber),
				esc(v.PersonInCharge), v.ShippingCost, v.TotalAmount))
			sb.WriteString(fmt.Sprintf(`<td class="col-page">%s</td>`, esc(v.Page)))
			sb.WriteString(fmt.Sprintf(`<td class="center col-date">%s</td>`, esc(v.ShipmentDate)))
			sb.WriteString(fmt.Sprintf(`<td class="col-order">%s</td>`, esc(v.OrderNumber)))
			sb.WriteString(fmt.Sprintf(`<td class="col-delivery">%s</td>`, esc(v.DeliveryNumber)))
			sb.WriteString(fmt.Sprintf(`<td class="col-person">%s</td>`, esc(v.PersonInCharge)))
			sb.WriteString(fmt.Sprintf(`<td class="right col-shipping">%s</td>`, v.ShippingCostText))
			if withPartsTotal {
				sb.WriteString(fmt.Sprintf(`<td class="right col-parts-total">%s</td>`, v.PartsTotalText))
			}
			sb.WriteString(fmt.Sprintf(`<td class="right col-total">%s</td>`, v.TotalAmountText))
			sb.WriteString(fmt.Sprintf(`<td class="center col-action"><a href="%s">部品</a> %s</td>`, esc(v.DetailURL), rowButtons))
			sb.WriteString(`</tr>`)
		}
	}
	sb.WriteString(`</tbody>`)

	return sb.String()
}

// RenderPartsTableHTML は部品情報のテーブルを生成します。
func RenderPartsTableHTML(parts []mappers.PartView) string {
	var sb strings.Builder

	sb.WriteString(`
    <thead>
        <tr>
            <th class="col-line">行</th>
            <th class="col-part-number">部品番号</th>
            <th class="col-part-name">部品名</th>
            <th class="col-qty">数量</th>
            <th class="col-unitprice">売上単価</th>
            <th class="col-amount">売上金額</th>
            <th class="col-action"></th>
        </tr>
    </thead>`)

	sb.WriteString(`<tbody>`)
	if len(parts) == 0 {
		sb.WriteString(`<tr><td colspan="7">部品情報はありません。</td></tr>`)
	} else {
		for i, p := range parts {
			sb.WriteString(fmt.Sprintf(
				`<tr data-id="%d" data-part_number="%s" data-part_name="%s" data-quantity="%d" data-unit_price="%d" data-sales_amount="%d">`,
				p.ID, esc(p.PartNumber), esc(p.PartName), p.Quantity, p.UnitPrice, p.SalesAmount))
			sb.WriteString(fmt.Sprintf(`<td class="center col-line">%d</td>`, i+1))
			sb.WriteString(fmt.Sprintf(`<td class="col-part-number">%s</td>`, esc(p.PartNumber)))
			sb.WriteString(fmt.Sprintf(`<td class="col-part-name">%s</td>`, esc(p.PartName)))
			sb.WriteString(fmt.Sprintf(`<td class="right col-qty">%s</td>`, p.QuantityText))
			sb.WriteString(fmt.Sprintf(`<td class="right col-unitprice">%s</td>`, p.UnitPriceText))
			sb.WriteString(fmt.Sprintf(`<td class="right col-amount">%s</td>`, p.SalesAmountText))
			sb.WriteString(`<td class="center col-action">` + rowButtons + `</td>`)
			sb.WriteString(`</tr>`)
		}
	}
	sb.WriteString(`</tbody>`)

	return sb.String()
}
