package main

import (
	"log"
	"net/http"
	"strconv"

	"purchases/apperrors"
	"purchases/database"
	"purchases/mappers"
	"purchases/render"

	"github.com/jmoiron/sqlx"
)

// SetupPages はサーバー側で描画する画面を登録します。
func SetupPages(mux *http.ServeMux, dbConn *sqlx.DB, pages *render.Pages) {
	mux.HandleFunc("GET /{$}", staticPage(pages, "index.html", "納品書データ管理"))
	mux.HandleFunc("GET /import", staticPage(pages, "import.html", "データ取込"))

	mux.HandleFunc("GET /basic_info", func(w http.ResponseWriter, r *http.Request) {
		headers, err := database.GetLatestBatchHeaders(dbConn)
		if err != nil {
			log.Printf("Error fetching latest batch: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		executePage(w, pages, "basic_info.html", render.BatchPage(mappers.ToSummaryViews(headers)))
	})

	mux.HandleFunc("GET /purchase_list", func(w http.ResponseWriter, r *http.Request) {
		headers, err := database.GetAllHeaders(dbConn)
		if err != nil {
			log.Printf("Error fetching purchase list: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		executePage(w, pages, "purchase_list.html", render.PurchaseListPage(mappers.ToHeaderViews(headers)))
	})

	mux.HandleFunc("GET /parts_info/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		header, err := database.GetBasicInfoByID(dbConn, id)
		if err != nil {
			if apperrors.KindOf(err) == apperrors.NotFound {
				http.NotFound(w, r)
				return
			}
			log.Printf("Error fetching basic_info %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		parts, err := database.GetPartsByBasicInfoID(dbConn, id)
		if err != nil {
			log.Printf("Error fetching parts for basic_info %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		executePage(w, pages, "parts_info.html", render.PartsPage(mappers.ToHeaderView(*header), mappers.ToPartViews(parts)))
	})
}

func staticPage(pages *render.Pages, name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		executePage(w, pages, name, render.PageData{Title: title})
	}
}

func executePage(w http.ResponseWriter, pages *render.Pages, name string, data render.PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.Execute(w, name, data); err != nil {
		log.Printf("Error executing template %s: %v", name, err)
	}
}
