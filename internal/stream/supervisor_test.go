package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubConn 是 Connection 的测试桩。
type stubConn struct {
	sync.Mutex
	kind         Kind
	open         bool
	connectCalls int
}

func (s *stubConn) Kind() Kind { return s.kind }

func (s *stubConn) IsOpen() bool {
	s.Lock()
	defer s.Unlock()
	return s.open
}

func (s *stubConn) Connect() error {
	s.Lock()
	defer s.Unlock()
	s.connectCalls++
	return nil
}

func TestTickSkipsOpenConnections(t *testing.T) {
	private := &stubConn{kind: KindPrivate, open: true}
	public := &stubConn{kind: KindPublic, open: true}
	sup := NewSupervisor(zap.NewNop().Sugar(), private, public)

	sup.tick()

	assert.Zero(t, private.connectCalls, "open connection must not be reconnected")
	assert.Zero(t, public.connectCalls, "open connection must not be reconnected")
}

func TestTickReconnectsStalledConnections(t *testing.T) {
	private := &stubConn{kind: KindPrivate, open: false}
	public := &stubConn{kind: KindPublic, open: true}
	sup := NewSupervisor(zap.NewNop().Sugar(), private, public)

	sup.tick()
	sup.tick()

	assert.Equal(t, 2, private.connectCalls, "stalled connection is reconnected every tick")
	assert.Zero(t, public.connectCalls)
}

func TestConnConnectIsIdempotent(t *testing.T) {
	// 对 Connecting/Open 状态的连接重复调用 Connect 是无操作：
	// 直接把状态机置为 Open，再 Connect 不应该改变状态。
	c := NewConn(KindPublic, "ws://127.0.0.1:0", nil, func([]byte) {}, zap.NewNop().Sugar())
	c.mu.Lock()
	c.status = StatusOpen
	c.mu.Unlock()

	assert.NoError(t, c.Connect())
	status, _ := c.State()
	assert.Equal(t, StatusOpen, status)
}

func TestConnCloseBlocksReconnect(t *testing.T) {
	c := NewConn(KindPublic, "ws://127.0.0.1:0", nil, func([]byte) {}, zap.NewNop().Sugar())
	c.Close()

	assert.NoError(t, c.Connect())
	assert.False(t, c.IsOpen())
	status, _ := c.State()
	assert.Equal(t, StatusDisconnected, status, "closed connection never reconnects")
}
