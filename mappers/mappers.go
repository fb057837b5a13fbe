package mappers

import "purchases/model"

// GroupPartsByHeader は部品情報を基本情報IDごとにまとめます。各グループ内の順序は保たれます。
func GroupPartsByHeader(parts []model.PartsInfo) map[int64][]model.PartsInfo {
	grouped := make(map[int64][]model.PartsInfo)
	for _, p := range parts {
		grouped[p.BasicInfoID] = append(grouped[p.BasicInfoID], p)
	}
	return grouped
}

// SumSalesAmount は売上金額の合計です。
func SumSalesAmount(parts []model.PartsInfo) int64 {
	var total int64
	for _, p := range parts {
		total += p.SalesAmount
	}
	return total
}
