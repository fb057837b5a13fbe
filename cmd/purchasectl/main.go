package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"purchases/config"
	"purchases/database"
	"purchases/dify"
	"purchases/export"
	"purchases/loader"
	"purchases/model"
	"purchases/parsers"
	"purchases/purchase"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "purchasectl",
	Short: "納品書データの取込・抽出・出力を行うコマンドラインツール",
	Long: `purchasectl は Web 画面と同じデータベースに対して取込や出力を行います。

例:
  purchasectl import data.json
  purchasectl extract --save page1.png page2.png
  purchasectl export --format xlsx --out 仕入一覧.xlsx
  purchasectl reset --yes`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := config.LoadEnv(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		} else {
			_ = config.LoadEnv()
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath == "" {
			dbPath = cfg.DatabasePath
		}
		return nil
	},
}

func openDB() (*sqlx.DB, error) {
	db, err := loader.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	if err := loader.InitDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func printResult(cmd *cobra.Command, label string, result model.ImportResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: session %s, %d headers, %d parts\n",
		label, result.SessionID, result.HeaderCount, result.PartsCount)
}

var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "JSONファイルを取込みます（1ファイル = 1回の取込）",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			records, err := parsers.ParsePurchaseJSON(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			result, err := purchase.ImportRecords(db, records, database.ImportOptions{})
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			printResult(cmd, path, result)
		}
		return nil
	},
}

var saveExtracted bool

var extractCmd = &cobra.Command{
	Use:   "extract IMAGE...",
	Short: "納品書画像からデータを抽出して JSON で出力します",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if cfg.DifyAPIKey == "" {
			return fmt.Errorf("%s is not set", config.EnvDifyAPIKey)
		}
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
		client := dify.NewClient(dify.Config{
			BaseURL:   cfg.DifyBaseURL,
			APIKey:    cfg.DifyAPIKey,
			User:      cfg.DifyUser,
			InputName: cfg.DifyInputName,
		}, nil, logger)

		all := []model.CanonicalRecord{}
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			name := filepath.Base(path)
			envelope, err := client.Extract(context.Background(), name, data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			records, err := parsers.NormalizePurchaseData(envelope)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			for i := range records {
				if records[i].Page == "" {
					records[i].Page = name
				}
			}
			all = append(all, records...)
		}

		if saveExtracted {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			result, err := purchase.ImportRecords(db, all, database.ImportOptions{})
			if err != nil {
				return err
			}
			printResult(cmd, "extract", result)
			return nil
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	},
}

var confirmReset bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "基本情報と部品情報をすべて削除します",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmReset {
			return fmt.Errorf("refusing to delete all data without --yes")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		headers, parts, err := database.DeleteAllData(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d headers, %d parts\n", headers, parts)
		return nil
	},
}

var (
	exportFormat   string
	exportOut      string
	exportEncoding string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "仕入一覧を CSV または Excel で出力します",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		headers, err := database.GetAllHeaders(db)
		if err != nil {
			return err
		}
		parts, err := database.GetAllParts(db)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		switch exportFormat {
		case "csv":
			enc := export.ShiftJIS
			if exportEncoding == "utf8" {
				enc = export.UTF8BOM
			}
			if err := export.WritePurchaseListCSV(&buf, headers, parts, enc); err != nil {
				return err
			}
		case "xlsx":
			data, err := export.PurchaseListXLSX(headers, parts)
			if err != nil {
				return err
			}
			buf.Write(data)
		default:
			return fmt.Errorf("unknown format %q (csv or xlsx)", exportFormat)
		}

		if exportOut == "" || exportOut == "-" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(exportOut, buf.Bytes(), 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d headers to %s\n", len(headers), exportOut)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default from config)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", ".env file to load")

	extractCmd.Flags().BoolVar(&saveExtracted, "save", false, "import the extracted records instead of printing them")
	resetCmd.Flags().BoolVar(&confirmReset, "yes", false, "confirm deleting all data")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportEncoding, "encoding", "sjis", "CSV encoding: sjis or utf8")

	rootCmd.AddCommand(importCmd, extractCmd, resetCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
