package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"purchases/config"
	"purchases/dify"
	"purchases/loader"
	"purchases/render"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Printf("WARN: .env file not loaded: %v. Using system environment variables.", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("WARN: Failed to load config file: %v. Using defaults.", err)
		cfg = config.GetConfig()
	}

	log.Println("Connecting to database...")
	dbConn, err := loader.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer dbConn.Close()
	log.Println("Database connection successful.")

	if err := loader.InitDatabase(dbConn); err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	log.Println("Database initialization complete.")

	pages, err := render.LoadPages()
	if err != nil {
		log.Fatalf("Failed to parse page templates: %v", err)
	}
	log.Println("HTML templates loaded and parsed.")

	if cfg.DifyAPIKey == "" {
		log.Printf("WARN: %s is not set. Image import will fail until it is configured.", config.EnvDifyAPIKey)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	extractor := newConfiguredExtractor(logger)

	mux := http.NewServeMux()
	SetupPages(mux, dbConn, pages)
	SetupRoutes(mux, dbConn, extractor)

	port := strings.TrimPrefix(cfg.Port, ":")
	serverURL := "http://localhost:" + port
	log.Printf("Starting server on %s", serverURL)

	if os.Getenv("PURCHASES_NO_BROWSER") == "" {
		openBrowser(serverURL)
	}

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("server start error: %v", err)
	}
}

// configuredExtractor は呼び出しごとに現在の設定でクライアントを作ります。
// 設定画面でAPIキーを変えた場合も再起動なしで反映されます。
type configuredExtractor struct {
	logger *slog.Logger
}

func newConfiguredExtractor(logger *slog.Logger) *configuredExtractor {
	return &configuredExtractor{logger: logger}
}

func (e *configuredExtractor) client() *dify.Client {
	cfg := config.GetConfig()
	return dify.NewClient(dify.Config{
		BaseURL:   cfg.DifyBaseURL,
		APIKey:    cfg.DifyAPIKey,
		User:      cfg.DifyUser,
		InputName: cfg.DifyInputName,
	}, nil, e.logger)
}

func (e *configuredExtractor) Extract(ctx context.Context, name string, data []byte) (map[string]interface{}, error) {
	return e.client().Extract(ctx, name, data)
}

func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = exec.Command("xdg-open", url).Start()
	}
	if err != nil {
		log.Printf("failed to open browser: %v", err)
	}
}
