package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/system-design/connect-four/internal"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "config.yaml", "配置檔路徑（不存在則使用預設值）")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置與 PORT 環境變數）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	// 載入配置
	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		config.Server.Port = *port
	}
	if *logLevel != "" {
		config.Log.Level = *logLevel
	}
	if *logFormat != "" {
		config.Log.Format = *logFormat
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// 設置日誌
	logger := setupLogger(config.Log.Level, config.Log.Format)
	slog.SetDefault(logger)

	// 房間註冊表 → WebSocket Hub → Gateway
	registry := internal.NewRegistry(logger)
	wsHub := internal.NewWebSocketHub(internal.HubOptionsFromConfig(config), logger)
	gateway := internal.NewGateway(registry, wsHub, logger)
	wsHub.SetDispatcher(gateway)

	handler := internal.NewHandler(registry, config.Server.AllowedOrigins, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      internal.NewRouter(handler, wsHub),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	// 啟動服務器
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("四子棋服務器啟動",
			"port", config.Server.Port,
			"allowed_origins", config.Server.AllowedOrigins,
			"log_level", config.Log.Level,
			"log_format", config.Log.Format)
		serverErrors <- server.ListenAndServe()
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("收到關閉信號，開始優雅關閉...", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接（WebSocket 已被 hijack，不受 Shutdown 影響）
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 關閉所有 WebSocket 連線，斷線指令會清空房間
	wsHub.Stop()
	registry.Close()

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	logLevel := internal.ParseLogLevel(level)

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug, // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
