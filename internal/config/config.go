// internal/config/config.go
//
// 設定來源優先序：環境變數 > 命令列旗標 > 預設值。
// 有旗標的欄位不設 env-default，預設值由旗標提供。
// 啟動時若存在 .env 檔會先載入（不存在時忽略）。
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultTokenSecret 為 TOKEN_SECRET 未設定時的預設值，只適合本機開發。
const DefaultTokenSecret = "change-me"

type Config struct {
	Addr           string        `env:"RUN_ADDRESS"`
	DatabaseURL    string        `env:"DATABASE_URI"`
	SnapshotPath   string        `env:"SNAPSHOT_PATH"`
	RedisURL       string        `env:"REDIS_URL"`
	NATSURL        string        `env:"NATS_URL"`
	EventSubject   string        `env:"EVENT_SUBJECT" env-default:"ledger.entry"`
	TokenSecret    string        `env:"TOKEN_SECRET" env-default:"change-me"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" env-default:"24h"`
	LogLevel       string        `env:"LOG_LEVEL" env-default:"info"`
}

// Load 解析 args（不含程式名稱）與環境變數。envFiles 為空時嘗試載入 ".env"。
func Load(args []string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("couldn't load env file: %w", err)
	}

	cfg := &Config{}
	flags := flag.NewFlagSet("ledger", flag.ContinueOnError)
	flags.StringVar(&cfg.Addr, "a", ":8080", "HTTP listen address")
	flags.StringVar(&cfg.DatabaseURL, "d", "", "Postgres connection URL (empty: JSON snapshot store)")
	flags.StringVar(&cfg.SnapshotPath, "s", "data.json", "JSON snapshot path for the in-memory store")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("couldn't read environment variables: %w", err)
	}
	return cfg, nil
}

// InsecureTokenSecret 回報是否仍使用預設或空白的 token 金鑰；此時任何人都能簽出有效 token。
func (c *Config) InsecureTokenSecret() bool {
	return c.TokenSecret == "" || c.TokenSecret == DefaultTokenSecret
}
