package stream

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const supervisorInterval = 30 * time.Second

// Connection 是监督器看到的连接表面。`Conn` 实现它；
// 测试用桩实现替换。
type Connection interface {
	Kind() Kind
	IsOpen() bool
	Connect() error
}

// Supervisor 周期性检查所有受管连接的活性。连接自身的断线重连
// 覆盖不了静默卡死（传输层没有发出close事件）的情况，这里是兜底。
type Supervisor struct {
	conns    []Connection
	interval time.Duration
	logger   *zap.SugaredLogger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewSupervisor 创建一个监督器，检查间隔为30秒。
func NewSupervisor(logger *zap.SugaredLogger, conns ...Connection) *Supervisor {
	return &Supervisor{
		conns:    conns,
		interval: supervisorInterval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start 启动后台检查循环。
func (s *Supervisor) Start() {
	go s.loop()
	s.logger.Infow("连接监督器已启动", "interval", s.interval)
}

// Stop 停止检查循环。
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Supervisor) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick 对每个非Open的连接触发一次重连。Connect 对 Connecting/Open
// 状态是无操作，与连接自身的定时重连竞争是安全的。
func (s *Supervisor) tick() {
	for _, conn := range s.conns {
		if conn.IsOpen() {
			continue
		}
		s.logger.Warnw("检测到连接不在线，触发重连", "kind", conn.Kind())
		if err := conn.Connect(); err != nil {
			s.logger.Errorw("重连失败", "kind", conn.Kind(), "error", err)
		}
	}
}
