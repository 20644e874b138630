package downloader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
)

// KlineDownloader 从币安公共接口下载K线。Backpack 没有历史K线接口，
// 离线选取网格区间时用同标的的币安行情近似。
type KlineDownloader struct {
	client *binance.Client
}

// NewKlineDownloader 创建一个新的下载器实例。公共接口不需要API Key。
func NewKlineDownloader() *KlineDownloader {
	return &KlineDownloader{
		client: binance.NewClient("", ""),
	}
}

// DownloadKlines 下载指定交易对和时间范围内的1分钟K线并保存到CSV文件。
// 文件已存在时跳过下载，直接作为缓存使用。
func (d *KlineDownloader) DownloadKlines(symbol, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); err == nil {
		return nil // 缓存命中
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create file %s: %w", filePath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"open_time", "open", "high", "low", "close", "volume", "close_time"}); err != nil {
		return err
	}

	// 币安单次最多返回1000根K线，按时间窗口分页。
	current := startTime
	for current.Before(endTime) {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval("1m").
			StartTime(current.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(1000).
			Do(context.Background())
		if err != nil {
			return fmt.Errorf("fetch klines for %s: %w", symbol, err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			record := []string{
				strconv.FormatInt(k.OpenTime, 10),
				k.Open, k.High, k.Low, k.Close, k.Volume,
				strconv.FormatInt(k.CloseTime, 10),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}

		current = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		time.Sleep(200 * time.Millisecond) // 限速，避免触发币安风控
	}

	return nil
}

// RangeSuggestion 是根据历史行情得出的网格区间建议。
type RangeSuggestion struct {
	Low            float64 // 观察期最低价
	High           float64 // 观察期最高价
	SuggestedLower float64 // 建议 LOWER_PRICE
	SuggestedUpper float64 // 建议 UPPER_PRICE
	Samples        int
}

// SuggestRange 读取下载好的K线文件，返回观察期的价格区间，
// 并在两侧留出 margin 比例的余量作为建议网格边界。
func SuggestRange(filePath string, margin float64) (*RangeSuggestion, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open kline file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read kline file: %w", err)
	}
	if len(records) <= 1 {
		return nil, fmt.Errorf("kline file %s has no data rows", filePath)
	}

	suggestion := &RangeSuggestion{}
	for _, record := range records[1:] {
		if len(record) < 5 {
			continue
		}
		high, errH := strconv.ParseFloat(record[2], 64)
		low, errL := strconv.ParseFloat(record[3], 64)
		if errH != nil || errL != nil {
			continue
		}
		if suggestion.Samples == 0 || low < suggestion.Low {
			suggestion.Low = low
		}
		if suggestion.Samples == 0 || high > suggestion.High {
			suggestion.High = high
		}
		suggestion.Samples++
	}
	if suggestion.Samples == 0 {
		return nil, fmt.Errorf("kline file %s has no parsable rows", filePath)
	}

	suggestion.SuggestedLower = suggestion.Low * (1 - margin)
	suggestion.SuggestedUpper = suggestion.High * (1 + margin)
	return suggestion, nil
}
