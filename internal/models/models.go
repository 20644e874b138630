package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Side 表示订单方向，与 Backpack API 的取值保持一致。
type Side string

const (
	Bid Side = "Bid"
	Ask Side = "Ask"
)

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Symbol           string    // 交易对，如 "SOL_USDC_PERP"
	LowerPrice       float64   // 网格价格下限
	UpperPrice       float64   // 网格价格上限
	NumGrids         int       // 网格数量
	GridStep         float64   // 网格间距 = (upper - lower) / numGrids
	UpperClose       float64   // 强平价格上限
	LowerClose       float64   // 强平价格下限
	PnlThreshold     float64   // 强平盈亏阈值（已实现+未实现-手续费 >= 阈值即触发）
	PriceDecimals    int       // 价格精度
	QuantityDecimals int       // 数量精度
	APIBaseURL       string    // REST API 基础地址
	WSBaseURL        string    // WebSocket 基础地址
	JournalPath      string    // 事件日志数据库路径，为空则不持久化
	LogConfig        LogConfig // 日志配置
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string // 输出模式: "console", "file", "both"
	File       string // 日志文件路径
	MaxSize    int    // 单个日志文件的最大大小 (MB)
	MaxBackups int    // 保留的旧日志文件最大数量
	MaxAge     int    // 旧日志文件的最大保留天数
	Compress   bool   // 是否压缩旧日志文件
}

// GridLevel 代表网格中的一个价格档位。ClientID 在一代网格的生命周期内
// 固定等于档位序号，是引擎与交易所订单状态之间的关联键。
type GridLevel struct {
	Index    int     `json:"index"`
	Price    float64 `json:"price"`
	Side     Side    `json:"side"`
	ClientID int     `json:"client_id"`
}

// Ladder 是一代完整的网格档位。只有 GridController 可以整体替换它，
// Generation 在每次重建时单调递增。
type Ladder struct {
	Generation int64       `json:"generation"`
	Levels     []GridLevel `json:"levels"`
}

// AccountSnapshot 定义了下单所需的账户快照。手续费为小数费率而非基点。
type AccountSnapshot struct {
	CapitalAvailable float64
	MakerFee         float64
	TakerFee         float64
}

// Order 定义了交易所返回的订单信息
type Order struct {
	ID        string `json:"id"`
	ClientID  int    `json:"clientId"`
	Symbol    string `json:"symbol"`
	Side      Side   `json:"side"`
	OrderType string `json:"orderType"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// Position 定义了持仓信息
type Position struct {
	Symbol               string `json:"symbol"`
	NetQuantity          string `json:"netQuantity"`
	NetExposureNotional  string `json:"netExposureNotional"`
	MarkPrice            string `json:"markPrice"`
	EntryPrice           string `json:"entryPrice"`
	PnlRealized          string `json:"pnlRealized"`
	PnlUnrealized        string `json:"pnlUnrealized"`
	EstLiquidationPrice  string `json:"estLiquidationPrice"`
	PositionID           string `json:"positionId"`
	CumulativeFundingPay string `json:"cumulativeFundingPayment"`
}

// MarkPrice 定义了标记价格查询的响应条目
type MarkPrice struct {
	Symbol      string `json:"symbol"`
	MarkPrice   string `json:"markPrice"`
	IndexPrice  string `json:"indexPrice"`
	FundingRate string `json:"fundingRate"`
}

// StreamFrame 是 WebSocket 推送的通用外层结构
type StreamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// OrderUpdateData 包含了私有流订单更新事件的具体信息
type OrderUpdateData struct {
	EventType string `json:"e"` // 事件类型, e.g. "orderFill", "orderCancel"
	EventTime int64  `json:"E"` // 事件时间（微秒）
	Symbol    string `json:"s"` // 交易对
	ClientID  int    `json:"c"` // 客户端订单ID
	Side      string `json:"S"` // 方向
	OrderID   string `json:"i"` // 订单ID
	Price     string `json:"p"` // 价格
	Quantity  string `json:"q"` // 数量
	FillQty   string `json:"l"` // 本次成交数量
	Status    string `json:"X"` // 订单状态
}

// PositionUpdateData 包含了私有流仓位更新事件的具体信息
type PositionUpdateData struct {
	EventType     string `json:"e"` // 事件类型, "positionUpdate"
	EventTime     int64  `json:"E"` // 事件时间（微秒）
	Symbol        string `json:"s"` // 交易对
	NetQuantity   string `json:"q"` // 净持仓数量
	EntryPrice    string `json:"B"` // 开仓均价
	MarkPrice     string `json:"M"` // 标记价格
	PnlRealized   string `json:"rp"`
	PnlUnrealized string `json:"up"`
}

// MarkPriceData 包含了公有流标记价格事件的具体信息
type MarkPriceData struct {
	EventType   string `json:"e"` // 事件类型, "markPrice"
	EventTime   int64  `json:"E"` // 事件时间（微秒）
	Symbol      string `json:"s"` // 交易对
	MarkPrice   string `json:"p"` // 标记价格
	IndexPrice  string `json:"i"` // 指数价格
	FundingRate string `json:"r"` // 资金费率
}

// JournalEntry 记录一次引擎动作，用于事后还原网格与连接的历史。
type JournalEntry struct {
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"` // ladderRebuilt / orderPlaced / orderRecreated / forceClose
	Generation int64     `json:"generation"`
	ClientID   int       `json:"client_id,omitempty"`
	Side       Side      `json:"side,omitempty"`
	Price      float64   `json:"price,omitempty"`
	Quantity   float64   `json:"quantity,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// APIError 定义了 Backpack API 返回的错误信息结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error 方法使得 APIError 实现了 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: code=%s, msg=%s", e.Code, e.Message)
}
