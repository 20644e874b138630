package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Kind 区分私有流（账户事件）和公有流（行情事件）。
type Kind string

const (
	KindPrivate Kind = "private"
	KindPublic  Kind = "public"
)

// Status 是连接状态机的三个状态。
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusOpen
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	default:
		return "disconnected"
	}
}

const (
	reconnectDelay   = 3 * time.Second
	handshakeTimeout = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10 // 必须小于 pongWait
)

// Handshake 在传输层建立后构造要发送的订阅帧。
// 每次重连都会重新调用，私有流借此拿到新鲜的签名时间戳。
type Handshake func() (interface{}, error)

// Conn 管理一条持久的 WebSocket 连接：连接、订阅握手、消息分发、
// 断线检测和固定间隔的自动重连。
type Conn struct {
	kind      Kind
	url       string
	handshake Handshake
	handler   func(raw []byte)
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	ws       *websocket.Conn
	status   Status
	lastOpen time.Time
	closed   bool

	writeMu sync.Mutex
}

// NewConn 创建一个尚未连接的流连接。handler 在读循环的goroutine中被调用。
func NewConn(kind Kind, url string, handshake Handshake, handler func([]byte), logger *zap.SugaredLogger) *Conn {
	return &Conn{
		kind:      kind,
		url:       url,
		handshake: handshake,
		handler:   handler,
		logger:    logger,
	}
}

// Kind 返回连接类型。
func (c *Conn) Kind() Kind {
	return c.kind
}

// IsOpen 报告连接是否处于 Open 状态。
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusOpen
}

// State 返回当前状态及最近一次成功建立连接的时间。
func (c *Conn) State() (Status, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.lastOpen
}

// Connect 发起连接。对 Connecting/Open 状态的连接调用是无操作，
// 因此关闭回调的定时重连和监督器的周期检查可以安全地竞争。
func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.closed || c.status != StatusDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	go c.run()
	return nil
}

func (c *Conn) run() {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Warnw("连接失败", "kind", c.kind, "url", c.url, "error", err)
		c.onDisconnect(nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.status = StatusOpen
	c.lastOpen = time.Now()
	c.mu.Unlock()
	c.logger.Infow("连接已建立", "kind", c.kind)

	// 建立后立即发送订阅帧；私有流的握手内含签名。
	if c.handshake != nil {
		payload, err := c.handshake()
		if err != nil {
			c.logger.Errorw("构造订阅帧失败", "kind", c.kind, "error", err)
			ws.Close()
			c.onDisconnect(ws)
			return
		}
		if err := c.Send(payload); err != nil {
			c.logger.Errorw("发送订阅帧失败", "kind", c.kind, "error", err)
			ws.Close()
			c.onDisconnect(ws)
			return
		}
		c.logger.Infow("订阅帧已发送", "kind", c.kind)
	}

	c.readLoop(ws)
}

// readLoop 阻塞读取消息直到连接损坏，并通过Ping/Pong维持心跳。
func (c *Conn) readLoop(ws *websocket.Conn) {
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.writeMu.Lock()
				err := ws.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-pingStop:
				return
			}
		}
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			c.logger.Warnw("读取消息失败", "kind", c.kind, "error", err)
			break
		}
		c.handler(message)
		// 处理函数同步执行，对账/重建中的REST调用可能耗掉大半个pongWait，
		// 返回后重置读超时，慢处理不会被误判成连接卡死。
		ws.SetReadDeadline(time.Now().Add(pongWait))
	}

	ws.Close()
	c.onDisconnect(ws)
}

// onDisconnect 将状态机转回 Disconnected。非主动关闭时安排固定延迟重连，
// 重试永不放弃。
func (c *Conn) onDisconnect(ws *websocket.Conn) {
	c.mu.Lock()
	if ws != nil && c.ws == ws {
		c.ws = nil
	}
	c.status = StatusDisconnected
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	c.logger.Warnw("连接已断开，准备重连", "kind", c.kind, "delay", reconnectDelay)
	time.AfterFunc(reconnectDelay, func() {
		c.Connect()
	})
}

// Send 以JSON帧发送消息。连接未打开时直接返回错误。
func (c *Conn) Send(v interface{}) error {
	c.mu.Lock()
	ws := c.ws
	open := c.status == StatusOpen
	c.mu.Unlock()

	if !open || ws == nil {
		return fmt.Errorf("%s stream is not open", c.kind)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteJSON(v)
}

// Close 主动关闭连接并禁止后续重连。
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.status = StatusDisconnected
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		ws.Close()
	}
	c.logger.Infow("连接已关闭", "kind", c.kind)
}
