package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
//
// 優先順序（低 → 高）：
//
//	DefaultConfig → YAML 檔 → 環境變數（含 .env）→ 命令列參數
type Config struct {
	Server struct {
		Port           int           `yaml:"port"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		IdleTimeout    time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	WebSocket struct {
		MaxMessageSize int64         `yaml:"max_message_size"`
		SendBuffer     int           `yaml:"send_buffer"`
		PongWait       time.Duration `yaml:"pong_wait"`
		WriteWait      time.Duration `yaml:"write_wait"`
	} `yaml:"websocket"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3001
	cfg.Server.AllowedOrigins = []string{
		"https://front4p.vercel.app",
		"http://localhost:3000",
	}
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second

	cfg.WebSocket.MaxMessageSize = 4096
	cfg.WebSocket.SendBuffer = 256
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.WriteWait = 10 * time.Second

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 載入配置
//
// path 為空或檔案不存在時只使用預設值；
// 接著讀取 .env（不存在不算錯誤）並套用環境變數。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 - path 來自啟動參數，非使用者輸入
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 沒有配置檔就用預設值
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv 套用環境變數
//
//   - PORT
//   - ALLOWED_ORIGINS（逗號分隔）
//   - LOG_LEVEL / LOG_FORMAT
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}

	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return errors.New("allowed_origins must not be empty")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid websocket.max_message_size: %d", c.WebSocket.MaxMessageSize)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("invalid websocket.send_buffer: %d", c.WebSocket.SendBuffer)
	}
	if c.WebSocket.PongWait <= 0 || c.WebSocket.WriteWait <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	return nil
}

// ParseLogLevel 解析日誌級別
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
