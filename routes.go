package main

import (
	"net/http"

	"purchases/dify"
	"purchases/export"
	"purchases/purchase"

	"github.com/jmoiron/sqlx"
)

func SetupRoutes(mux *http.ServeMux, dbConn *sqlx.DB, extractor dify.Extractor) {
	mux.HandleFunc("POST /upload", purchase.UploadHandler())
	mux.HandleFunc("POST /api/import", purchase.ImportHandler(dbConn))
	mux.HandleFunc("POST /api/save_data", purchase.SaveDataHandler(dbConn))

	mux.HandleFunc("GET /api/basic_info", purchase.LatestBasicInfoHandler(dbConn))
	mux.HandleFunc("PUT /api/basic_info/{id}", purchase.UpdateBasicInfoHandler(dbConn))
	mux.HandleFunc("DELETE /api/basic_info/{id}", purchase.DeleteBasicInfoHandler(dbConn))
	mux.HandleFunc("GET /api/purchase_list", purchase.PurchaseListHandler(dbConn))

	mux.HandleFunc("GET /api/parts_info/{basic_id}", purchase.PartsHandler(dbConn))
	mux.HandleFunc("PUT /api/parts_info/{part_id}", purchase.UpdatePartsInfoHandler(dbConn))
	mux.HandleFunc("DELETE /api/parts_info/{part_id}", purchase.DeletePartsInfoHandler(dbConn))

	mux.HandleFunc("POST /api/delete_all", purchase.DeleteAllHandler(dbConn))

	mux.HandleFunc("POST /api/dify/fetch-data", dify.FetchDataHandler(extractor))
	mux.HandleFunc("POST /api/dify/fetch-data-multiple", dify.FetchDataMultipleHandler(extractor))

	mux.HandleFunc("GET /api/export/purchase_list.csv", export.PurchaseListCSVHandler(dbConn))
	mux.HandleFunc("GET /api/export/purchase_list.xlsx", export.PurchaseListXLSXHandler(dbConn))

	mux.HandleFunc("GET /api/config", GetConfigHandler())
	mux.HandleFunc("POST /api/config", SaveConfigHandler())
}
