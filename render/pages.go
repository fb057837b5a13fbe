package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"purchases/mappers"
)

//go:embed templates/*.html
var templatesFS embed.FS

// PageData は各画面テンプレートに渡す値です。
type PageData struct {
	Title   string
	Message string
	Table   template.HTML
	Header  *mappers.HeaderView
}

// Pages は埋め込みテンプレートから作った画面一式です。
type Pages struct {
	tmpl *template.Template
}

func LoadPages() (*Pages, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}
	return &Pages{tmpl: tmpl}, nil
}

// Execute は name（例: "basic_info.html"）の画面を書き出します。
func (p *Pages) Execute(w io.Writer, name string, data PageData) error {
	return p.tmpl.ExecuteTemplate(w, name, data)
}

// BatchPage は最新取込分の画面データです。
func BatchPage(views []mappers.HeaderView) PageData {
	return PageData{Title: "最新取込分", Table: template.HTML(RenderHeaderTableHTML(views, true))}
}

// PurchaseListPage は全期間一覧の画面データです。
func PurchaseListPage(views []mappers.HeaderView) PageData {
	return PageData{Title: "仕入一覧", Table: template.HTML(RenderHeaderTableHTML(views, false))}
}

// PartsPage は部品詳細の画面データです。
func PartsPage(header mappers.HeaderView, parts []mappers.PartView) PageData {
	return PageData{
		Title:  fmt.Sprintf("部品情報 (受注番号 %s)", header.OrderNumber),
		Table:  template.HTML(RenderPartsTableHTML(parts)),
		Header: &header,
	}
}
