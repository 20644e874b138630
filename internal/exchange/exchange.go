package exchange

import "backpack-grid-bot-go/internal/models"

// OrderGateway 定义了网格引擎用到的订单与仓位操作。
// 拆分成窄接口是为了让回测和单元测试可以只替换需要的部分。
type OrderGateway interface {
	CancelAllOpenOrders(symbol string) error
	PlaceLimitOrder(symbol string, side models.Side, price, quantity float64, clientID int) error
	// FindOpenOrder 查询指定 clientID 的挂单，不存在时返回 (nil, nil)。
	FindOpenOrder(symbol string, clientID int) (*models.Order, error)
	ClosePosition(pos models.Position) error
	GetOpenPositions() ([]models.Position, error)
}

// AccountProvider 提供下单所需的账户快照。
type AccountProvider interface {
	GetSnapshot() (*models.AccountSnapshot, error)
}

// MarketDataProvider 提供标记价格查询。
type MarketDataProvider interface {
	GetMarkPrice(symbol string) (float64, error)
}
