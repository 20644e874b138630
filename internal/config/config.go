package config

import (
	"backpack-grid-bot-go/internal/models"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
)

// ErrInvalidConfig 表示网格参数非法，是引擎唯一的致命启动错误。
var ErrInvalidConfig = errors.New("invalid grid config")

const (
	defaultSymbol     = "SOL_USDC_PERP"
	defaultAPIBaseURL = "https://api.backpack.exchange"
	defaultWSBaseURL  = "wss://ws.backpack.exchange"
)

// LoadFromEnv 从环境变量加载配置。必填项缺失或无法解析时返回错误，
// 其余选项缺省时使用默认值。
func LoadFromEnv() (*models.Config, error) {
	cfg := &models.Config{
		Symbol:           envOrDefault("GRID_MARKET", defaultSymbol),
		APIBaseURL:       envOrDefault("BACKPACK_API_URL", defaultAPIBaseURL),
		WSBaseURL:        envOrDefault("BACKPACK_WS_URL", defaultWSBaseURL),
		JournalPath:      os.Getenv("GRID_JOURNAL_PATH"),
		PriceDecimals:    6,
		QuantityDecimals: 4,
		LogConfig: models.LogConfig{
			Level:      envOrDefault("LOG_LEVEL", "info"),
			Output:     envOrDefault("LOG_OUTPUT", "console"),
			File:       envOrDefault("LOG_FILE", "grid_bot.log"),
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		},
	}

	var err error
	if cfg.LowerPrice, err = requiredFloat("LOWER_PRICE"); err != nil {
		return nil, err
	}
	if cfg.UpperPrice, err = requiredFloat("UPPER_PRICE"); err != nil {
		return nil, err
	}
	if cfg.NumGrids, err = requiredInt("NUMBER_OF_GRIDS"); err != nil {
		return nil, err
	}
	// 未配置的强平条件以无穷大表示，永远不会触发。
	if cfg.UpperClose, err = optionalFloat("UPPER_FORCE_CLOSE", math.Inf(1)); err != nil {
		return nil, err
	}
	if cfg.LowerClose, err = optionalFloat("LOWER_FORCE_CLOSE", math.Inf(-1)); err != nil {
		return nil, err
	}
	if cfg.PnlThreshold, err = optionalFloat("GRID_PNL", math.Inf(1)); err != nil {
		return nil, err
	}
	if cfg.PriceDecimals, err = optionalInt("PRICE_DECIMALS", cfg.PriceDecimals); err != nil {
		return nil, err
	}
	if cfg.QuantityDecimals, err = optionalInt("QUANTITY_DECIMALS", cfg.QuantityDecimals); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.GridStep = (cfg.UpperPrice - cfg.LowerPrice) / float64(cfg.NumGrids)
	return cfg, nil
}

// Validate 校验网格参数。只有这里的失败会终止进程。
func Validate(cfg *models.Config) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("%w: symbol is empty", ErrInvalidConfig)
	}
	if cfg.NumGrids <= 0 {
		return fmt.Errorf("%w: NUMBER_OF_GRIDS must be positive, got %d", ErrInvalidConfig, cfg.NumGrids)
	}
	if cfg.LowerPrice <= 0 {
		return fmt.Errorf("%w: LOWER_PRICE must be positive, got %f", ErrInvalidConfig, cfg.LowerPrice)
	}
	if cfg.UpperPrice <= cfg.LowerPrice {
		return fmt.Errorf("%w: UPPER_PRICE %f must exceed LOWER_PRICE %f",
			ErrInvalidConfig, cfg.UpperPrice, cfg.LowerPrice)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requiredFloat(key string) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidConfig, key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v)
	}
	return f, nil
}

func requiredInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidConfig, key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
	}
	return n, nil
}

func optionalFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v)
	}
	return f, nil
}

func optionalInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
	}
	return n, nil
}
