package stream

import (
	"backpack-grid-bot-go/internal/exchange"
	"backpack-grid-bot-go/internal/models"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// 私有流订阅的频道。
const (
	ChannelPositionUpdate = "account.positionUpdate"
	ChannelOrderUpdate    = "account.orderUpdate"
)

// MarkPriceChannel 返回指定交易对的标记价格频道名。
func MarkPriceChannel(symbol string) string {
	return "markPrice." + symbol
}

// EventType 枚举了引擎识别的入站事件。未识别的帧归入 EventUnrecognized，
// 由调用方丢弃而不是作为错误向上传播。
type EventType int

const (
	EventUnrecognized EventType = iota
	EventPositionUpdate
	EventOrderFill
	EventOrderCancel
	EventMarkPrice
)

// Event 是入站帧解码后的封闭变体集合，Type 决定哪个负载字段有效。
type Event struct {
	Type      EventType
	Position  *models.PositionUpdateData
	Order     *models.OrderUpdateData
	MarkPrice *models.MarkPriceData
}

// Decode 将原始帧解析为事件。JSON损坏时返回错误（调用方记日志后丢弃），
// 结构完整但频道或子类型未知时返回 EventUnrecognized。
func Decode(raw []byte, symbol string) (Event, error) {
	var frame models.StreamFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Event{}, fmt.Errorf("malformed stream frame: %w", err)
	}

	switch frame.Stream {
	case ChannelPositionUpdate:
		var data models.PositionUpdateData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return Event{}, fmt.Errorf("malformed position update: %w", err)
		}
		return Event{Type: EventPositionUpdate, Position: &data}, nil

	case ChannelOrderUpdate:
		var data models.OrderUpdateData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return Event{}, fmt.Errorf("malformed order update: %w", err)
		}
		switch data.EventType {
		case "orderFill":
			return Event{Type: EventOrderFill, Order: &data}, nil
		case "orderCancel":
			return Event{Type: EventOrderCancel, Order: &data}, nil
		}
		// 其余订单子事件（orderAccepted 等）对网格无影响。
		return Event{Type: EventUnrecognized}, nil

	case MarkPriceChannel(symbol):
		var data models.MarkPriceData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return Event{}, fmt.Errorf("malformed mark price update: %w", err)
		}
		return Event{Type: EventMarkPrice, MarkPrice: &data}, nil
	}

	return Event{Type: EventUnrecognized}, nil
}

// subscribeRequest 是两条流共用的订阅帧结构。
type subscribeRequest struct {
	Method    string   `json:"method"`
	Params    []string `json:"params"`
	Signature []string `json:"signature,omitempty"`
}

// PrivateHandshake 构造带签名的私有流订阅握手。每次调用生成新的时间戳，
// 签名指令固定为 subscribe、参数为空。
func PrivateHandshake(signer *exchange.Signer) Handshake {
	return func() (interface{}, error) {
		timestamp := time.Now().UnixMilli()
		window := exchange.DefaultSignatureWindow
		signature := signer.SignInstruction("subscribe", "", timestamp, window)

		return subscribeRequest{
			Method: "SUBSCRIBE",
			Params: []string{ChannelPositionUpdate, ChannelOrderUpdate},
			Signature: []string{
				signer.APIKey(),
				signature,
				strconv.FormatInt(timestamp, 10),
				strconv.FormatInt(window, 10),
			},
		}, nil
	}
}

// PublicHandshake 构造公有流的标记价格订阅握手，无需签名。
func PublicHandshake(symbol string) Handshake {
	return func() (interface{}, error) {
		return subscribeRequest{
			Method: "SUBSCRIBE",
			Params: []string{MarkPriceChannel(symbol)},
		}, nil
	}
}
