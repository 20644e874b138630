package main

import (
	"backpack-grid-bot-go/internal/config"
	"backpack-grid-bot-go/internal/downloader"
	"backpack-grid-bot-go/internal/exchange"
	"backpack-grid-bot-go/internal/grid"
	"backpack-grid-bot-go/internal/logger"
	"backpack-grid-bot-go/internal/models"
	"backpack-grid-bot-go/internal/persistence"
	"backpack-grid-bot-go/internal/reporter"
	"backpack-grid-bot-go/internal/stream"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	mode := flag.String("mode", "live", "running mode: live or range")
	rangeSymbol := flag.String("symbol", "", "binance symbol for range mode (e.g. SOLUSDT)")
	rangeDays := flag.Int("days", 7, "lookback days for range mode")
	rangeMargin := flag.Float64("margin", 0.02, "margin ratio added around the observed range")
	flag.Parse()

	// 在加载 .env 和配置前先用默认配置初始化一个临时logger
	logger.Init(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	switch *mode {
	case "live":
		runLiveMode()
	case "range":
		runRangeMode(*rangeSymbol, *rangeDays, *rangeMargin)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'live' 或 'range'。", *mode)
	}
}

// runLiveMode 连接 Backpack 并运行网格引擎直到收到退出信号。
func runLiveMode() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.S().Fatalf("无法加载配置: %v", err)
	}

	// 使用配置中的日志选项重新初始化
	logger.Init(cfg.LogConfig)
	defer logger.S().Sync()
	logger.S().Info("--- 启动网格交易模式 ---")

	signer, err := exchange.NewSigner(os.Getenv("BACKPACK_API_KEY"), os.Getenv("BACKPACK_API_SECRET"))
	if err != nil {
		logger.S().Fatalf("初始化签名器失败: %v", err)
	}

	backpack := exchange.NewBackpackExchange(
		cfg.APIBaseURL, signer, cfg.PriceDecimals, cfg.QuantityDecimals, logger.Named("exchange"))

	var journal persistence.Journal = persistence.NopJournal{}
	if cfg.JournalPath != "" {
		journal, err = persistence.NewBadgerJournal(cfg.JournalPath)
		if err != nil {
			logger.S().Fatalf("打开事件日志失败: %v", err)
		}
		defer journal.Close()
	}

	ctrl := grid.NewController(cfg, backpack, backpack, backpack, journal, logger.Named("grid"))
	reconciler := grid.NewReconciler(ctrl, logger.Named("reconciler"))
	guard := grid.NewForceCloseGuard(ctrl, logger.Named("forceclose"))

	private := stream.NewConn(stream.KindPrivate, cfg.WSBaseURL,
		stream.PrivateHandshake(signer), reconciler.HandleFrame, logger.Named("ws-private"))
	public := stream.NewConn(stream.KindPublic, cfg.WSBaseURL,
		stream.PublicHandshake(cfg.Symbol), guard.HandleFrame, logger.Named("ws-public"))
	supervisor := stream.NewSupervisor(logger.Named("supervisor"), private, public)
	ctrl.AttachStreams(private, public, supervisor)

	if err := ctrl.Start(); err != nil {
		logger.S().Fatalf("网格引擎启动失败: %v", err)
	}

	// 等待中断信号以实现优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctrl.Stop()
	if entries, err := journal.Recent(50); err != nil {
		logger.S().Warnf("读取事件日志失败: %v", err)
	} else {
		reporter.PrintSessionSummary(entries)
	}
	logger.S().Info("机器人已成功停止。")
}

// runRangeMode 下载近期K线并打印建议的网格区间。
func runRangeMode(symbol string, days int, margin float64) {
	if symbol == "" {
		logger.S().Fatal("range 模式需要通过 --symbol 指定币安交易对，例如 SOLUSDT")
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	filePath := fmt.Sprintf("data/%s-%s-%s.csv",
		symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))

	d := downloader.NewKlineDownloader()
	logger.S().Infof("开始下载 %s 最近 %d 天的K线数据...", symbol, days)
	if err := d.DownloadKlines(symbol, filePath, start, end); err != nil {
		logger.S().Fatalf("下载数据失败: %v", err)
	}

	suggestion, err := downloader.SuggestRange(filePath, margin)
	if err != nil {
		logger.S().Fatalf("分析K线失败: %v", err)
	}

	logger.S().Infof("观察区间: 最低 %.6f, 最高 %.6f (%d 根K线)",
		suggestion.Low, suggestion.High, suggestion.Samples)
	logger.S().Infof("建议配置: LOWER_PRICE=%.6f UPPER_PRICE=%.6f",
		suggestion.SuggestedLower, suggestion.SuggestedUpper)
}
