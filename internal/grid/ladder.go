package grid

import (
	"backpack-grid-bot-go/internal/config"
	"backpack-grid-bot-go/internal/models"
	"fmt"
	"math"
)

// GenerateLadder 根据配置和参考价生成一代网格档位。纯计算，无副作用。
// 档位方向在生成时刻一次性确定：价格低于参考价挂买、否则挂卖；
// 对账补单时会基于当时的参考价重新计算方向。
func GenerateLadder(cfg *models.Config, referencePrice float64) (*models.Ladder, error) {
	if cfg.NumGrids <= 0 {
		return nil, fmt.Errorf("%w: grid count %d", config.ErrInvalidConfig, cfg.NumGrids)
	}
	if cfg.UpperPrice <= cfg.LowerPrice {
		return nil, fmt.Errorf("%w: bounds [%f, %f]", config.ErrInvalidConfig, cfg.LowerPrice, cfg.UpperPrice)
	}

	step := (cfg.UpperPrice - cfg.LowerPrice) / float64(cfg.NumGrids)
	levels := make([]models.GridLevel, 0, cfg.NumGrids)
	for i := 0; i < cfg.NumGrids; i++ {
		price := roundTo(cfg.LowerPrice+float64(i)*step, cfg.PriceDecimals)
		levels = append(levels, models.GridLevel{
			Index:    i,
			Price:    price,
			Side:     sideForPrice(price, referencePrice),
			ClientID: i,
		})
	}

	return &models.Ladder{Levels: levels}, nil
}

// sideForPrice 返回某价格档位相对参考价的挂单方向。
func sideForPrice(price, referencePrice float64) models.Side {
	if price < referencePrice {
		return models.Bid
	}
	return models.Ask
}

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
