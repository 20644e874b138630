package exchange

import (
	"backpack-grid-bot-go/internal/models"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BackpackExchange 实现了 OrderGateway、AccountProvider 和 MarketDataProvider，
// 用于与真实的 Backpack 交易所进行交互。
type BackpackExchange struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
	logger     *zap.SugaredLogger
	priceDec   int
	qtyDec     int
}

// NewBackpackExchange 创建一个新的 BackpackExchange 实例。
func NewBackpackExchange(baseURL string, signer *Signer, priceDecimals, quantityDecimals int, logger *zap.SugaredLogger) *BackpackExchange {
	return &BackpackExchange{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		priceDec:   priceDecimals,
		qtyDec:     quantityDecimals,
	}
}

// doRequest 是通用的请求处理函数。GET 请求将参数编码到查询串，
// 其余方法编码为 JSON 请求体；签名请求附带交易所要求的四个签名头。
func (e *BackpackExchange) doRequest(method, endpoint, instruction string, params map[string]interface{}) ([]byte, error) {
	fullURL := e.baseURL + endpoint

	sortedParams := encodeSorted(params)

	var req *http.Request
	var err error
	if method == http.MethodGet {
		if sortedParams != "" {
			fullURL = fullURL + "?" + sortedParams
		}
		req, err = http.NewRequest(method, fullURL, nil)
	} else {
		var body []byte
		if len(params) > 0 {
			if body, err = json.Marshal(params); err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
		}
		req, err = http.NewRequest(method, fullURL, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if instruction != "" {
		timestamp := time.Now().UnixMilli()
		signature := e.signer.SignInstruction(instruction, sortedParams, timestamp, DefaultSignatureWindow)
		req.Header.Set("X-API-Key", e.signer.APIKey())
		req.Header.Set("X-Signature", signature)
		req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
		req.Header.Set("X-Window", strconv.FormatInt(DefaultSignatureWindow, 10))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr models.APIError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return body, &apiErr
		}
		return body, fmt.Errorf("request %s %s failed with status %d: %s", method, endpoint, resp.StatusCode, string(body))
	}

	return body, nil
}

// errNotFound 标记 404 响应，FindOpenOrder 用它区分"无此挂单"和真实错误。
var errNotFound = fmt.Errorf("resource not found")

// encodeSorted 按键的字典序编码参数，签名载荷与查询串共用该格式。
func encodeSorted(params map[string]interface{}) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(paramString(params[k])))
	}
	return sb.String()
}

func paramString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// --- MarketDataProvider 实现 ---

// GetMarkPrice 获取指定交易对的标记价格。
func (e *BackpackExchange) GetMarkPrice(symbol string) (float64, error) {
	data, err := e.doRequest(http.MethodGet, "/api/v1/markPrices", "", map[string]interface{}{
		"symbol": symbol,
	})
	if err != nil {
		return 0, err
	}

	var prices []models.MarkPrice
	if err := json.Unmarshal(data, &prices); err != nil {
		return 0, fmt.Errorf("decode mark prices: %w", err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return strconv.ParseFloat(p.MarkPrice, 64)
		}
	}
	return 0, fmt.Errorf("no mark price returned for %s", symbol)
}

// --- AccountProvider 实现 ---

// GetSnapshot 获取账户可用资金与手续费率。交易所以基点返回费率，
// 这里统一换算为小数。
func (e *BackpackExchange) GetSnapshot() (*models.AccountSnapshot, error) {
	accData, err := e.doRequest(http.MethodGet, "/api/v1/account", "accountQuery", nil)
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	var acc struct {
		FuturesMakerFee string `json:"futuresMakerFee"`
		FuturesTakerFee string `json:"futuresTakerFee"`
	}
	if err := json.Unmarshal(accData, &acc); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	colData, err := e.doRequest(http.MethodGet, "/api/v1/capital/collateral", "collateralQuery", nil)
	if err != nil {
		return nil, fmt.Errorf("query collateral: %w", err)
	}
	var col struct {
		NetEquityAvailable string `json:"netEquityAvailable"`
	}
	if err := json.Unmarshal(colData, &col); err != nil {
		return nil, fmt.Errorf("decode collateral: %w", err)
	}

	capital, err := strconv.ParseFloat(col.NetEquityAvailable, 64)
	if err != nil {
		return nil, fmt.Errorf("parse netEquityAvailable %q: %w", col.NetEquityAvailable, err)
	}
	makerBps, _ := strconv.ParseFloat(acc.FuturesMakerFee, 64)
	takerBps, _ := strconv.ParseFloat(acc.FuturesTakerFee, 64)

	return &models.AccountSnapshot{
		CapitalAvailable: capital,
		MakerFee:         makerBps / 10000,
		TakerFee:         takerBps / 10000,
	}, nil
}

// --- OrderGateway 实现 ---

// CancelAllOpenOrders 取消指定交易对的所有挂单。
func (e *BackpackExchange) CancelAllOpenOrders(symbol string) error {
	_, err := e.doRequest(http.MethodDelete, "/api/v1/orders", "orderCancelAll", map[string]interface{}{
		"symbol": symbol,
	})
	return err
}

// PlaceLimitOrder 挂一个带 clientID 的限价单。
func (e *BackpackExchange) PlaceLimitOrder(symbol string, side models.Side, price, quantity float64, clientID int) error {
	params := map[string]interface{}{
		"symbol":      symbol,
		"side":        string(side),
		"orderType":   "Limit",
		"timeInForce": "GTC",
		"price":       formatDecimal(price, e.priceDec),
		"quantity":    formatDecimal(quantity, e.qtyDec),
		"clientId":    clientID,
	}
	data, err := e.doRequest(http.MethodPost, "/api/v1/order", "orderExecute", params)
	if err != nil {
		e.logger.Errorw("下单请求失败",
			"symbol", symbol, "side", side, "price", price, "clientId", clientID,
			"error", err, "raw_response", string(data))
		return err
	}
	return nil
}

// FindOpenOrder 查询指定 clientID 的挂单。订单不存在时返回 (nil, nil)，
// 调用方据此判断该档位需要补单。
func (e *BackpackExchange) FindOpenOrder(symbol string, clientID int) (*models.Order, error) {
	data, err := e.doRequest(http.MethodGet, "/api/v1/order", "orderQuery", map[string]interface{}{
		"symbol":   symbol,
		"clientId": clientID,
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		var apiErr *models.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "RESOURCE_NOT_FOUND" {
			return nil, nil
		}
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &order, nil
}

// GetOpenPositions 获取当前所有持仓。
func (e *BackpackExchange) GetOpenPositions() ([]models.Position, error) {
	data, err := e.doRequest(http.MethodGet, "/api/v1/position", "positionQuery", nil)
	if err != nil {
		return nil, err
	}

	var positions []models.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return positions, nil
}

// ClosePosition 以市价单平掉给定仓位。
func (e *BackpackExchange) ClosePosition(pos models.Position) error {
	netQty, err := strconv.ParseFloat(pos.NetQuantity, 64)
	if err != nil {
		return fmt.Errorf("parse netQuantity %q: %w", pos.NetQuantity, err)
	}
	if netQty == 0 {
		return nil
	}

	side := models.Ask
	if netQty < 0 {
		side = models.Bid
	}
	params := map[string]interface{}{
		"symbol":     pos.Symbol,
		"side":       string(side),
		"orderType":  "Market",
		"quantity":   formatDecimal(math.Abs(netQty), e.qtyDec),
		"reduceOnly": true,
	}
	data, err := e.doRequest(http.MethodPost, "/api/v1/order", "orderExecute", params)
	if err != nil {
		e.logger.Errorw("平仓请求失败", "symbol", pos.Symbol, "error", err, "raw_response", string(data))
		return err
	}
	return nil
}

// formatDecimal 向下取整到指定小数位，避免超过交易所精度被拒单。
func formatDecimal(value float64, decimals int) string {
	factor := math.Pow(10, float64(decimals))
	return strconv.FormatFloat(math.Floor(value*factor)/factor, 'f', decimals, 64)
}
