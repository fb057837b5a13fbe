package config

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabasePath  string `json:"databasePath"`
	Port          string `json:"port"`
	DifyBaseURL   string `json:"difyBaseURL"`
	DifyAPIKey    string `json:"difyAPIKey"`
	DifyUser      string `json:"difyUser"`
	DifyInputName string `json:"difyInputName"`
}

const (
	defaultDatabasePath = "./purchases.db"
	defaultPort         = "8080"
	defaultDifyBaseURL  = "https://api.dify.ai"
)

// 環境変数の値は設定ファイルより優先する
const (
	EnvDifyAPIKey   = "DIFY_API_KEY"
	EnvDifyBaseURL  = "DIFY_BASE_URL"
	EnvDatabasePath = "PURCHASES_DB"
	EnvPort         = "PORT"
)

var (
	cfg Config
	mu  sync.RWMutex

	// 設定ファイルに保存されているAPIキー（環境変数での上書き前）
	fileAPIKey string

	configFilePath = "./purchases_config.json"
)

// SetFilePath は設定ファイルの場所を変更します。
func SetFilePath(path string) {
	mu.Lock()
	defer mu.Unlock()
	configFilePath = path
}

func withDefaults(c Config) Config {
	if c.DatabasePath == "" {
		c.DatabasePath = defaultDatabasePath
	}
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.DifyBaseURL == "" {
		c.DifyBaseURL = defaultDifyBaseURL
	}
	return c
}

func applyEnv(c Config) Config {
	if v := os.Getenv(EnvDifyAPIKey); v != "" {
		c.DifyAPIKey = v
	}
	if v := os.Getenv(EnvDifyBaseURL); v != "" {
		c.DifyBaseURL = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		c.Port = v
	}
	return c
}

// LoadEnv は .env ファイルを読み込みます。既に設定されている環境変数は上書きしません。
func LoadEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// LoadConfig は設定ファイルを読み込み、環境変数で上書きした設定を返します。
// ファイルがなければ既定値を使います。
func LoadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	file, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			fileAPIKey = ""
			cfg = applyEnv(withDefaults(Config{}))
			return cfg, nil
		}
		return Config{}, err
	}

	var tempCfg Config
	if err := json.Unmarshal(file, &tempCfg); err != nil {
		return Config{}, err
	}
	fileAPIKey = tempCfg.DifyAPIKey
	cfg = applyEnv(withDefaults(tempCfg))
	return cfg, nil
}

// SaveConfig は設定をファイルに保存します。APIキーが空の場合はファイルに保存済みの値を残します。
// 環境変数で与えられたAPIキーはファイルに書き出しません。
func SaveConfig(newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if newCfg.DifyAPIKey == "" {
		newCfg.DifyAPIKey = fileAPIKey
	}
	newCfg = withDefaults(newCfg)

	file, err := json.MarshalIndent(newCfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(configFilePath, file, 0600); err != nil {
		return err
	}
	fileAPIKey = newCfg.DifyAPIKey
	cfg = applyEnv(newCfg)
	return nil
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// MaskedAPIKey は画面表示用に末尾4文字以外を伏せたAPIキーです。
func (c Config) MaskedAPIKey() string {
	if c.DifyAPIKey == "" {
		return ""
	}
	if len(c.DifyAPIKey) <= 4 {
		return "****"
	}
	return "****" + c.DifyAPIKey[len(c.DifyAPIKey)-4:]
}
