package grid

import (
	"backpack-grid-bot-go/internal/models"
	"backpack-grid-bot-go/internal/persistence"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockGateway 模拟交易所的挂单簿。用 clientId 作为键记录当前挂单，
// 并把"对已存在的 clientId 重复挂单"记为违规，供并发测试断言。
type mockGateway struct {
	sync.Mutex
	open        map[int]models.Order
	placed      []models.Order
	positions   []models.Position
	closeCalls  int
	cancelCalls int
	duplicates  []int
	callDelay   time.Duration
}

func newMockGateway() *mockGateway {
	return &mockGateway{open: make(map[int]models.Order)}
}

func (m *mockGateway) delay() {
	if m.callDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(m.callDelay))))
	}
}

func (m *mockGateway) CancelAllOpenOrders(symbol string) error {
	m.delay()
	m.Lock()
	defer m.Unlock()
	m.cancelCalls++
	m.open = make(map[int]models.Order)
	return nil
}

func (m *mockGateway) PlaceLimitOrder(symbol string, side models.Side, price, quantity float64, clientID int) error {
	m.delay()
	m.Lock()
	defer m.Unlock()
	if _, exists := m.open[clientID]; exists {
		m.duplicates = append(m.duplicates, clientID)
	}
	order := models.Order{
		ClientID: clientID,
		Symbol:   symbol,
		Side:     side,
		Price:    fmt.Sprintf("%f", price),
		Quantity: fmt.Sprintf("%f", quantity),
		Status:   "New",
	}
	m.open[clientID] = order
	m.placed = append(m.placed, order)
	return nil
}

func (m *mockGateway) FindOpenOrder(symbol string, clientID int) (*models.Order, error) {
	m.delay()
	m.Lock()
	defer m.Unlock()
	if order, ok := m.open[clientID]; ok {
		cp := order
		return &cp, nil
	}
	return nil, nil
}

func (m *mockGateway) ClosePosition(pos models.Position) error {
	m.Lock()
	defer m.Unlock()
	m.closeCalls++
	m.positions = nil
	return nil
}

func (m *mockGateway) GetOpenPositions() ([]models.Position, error) {
	m.Lock()
	defer m.Unlock()
	out := make([]models.Position, len(m.positions))
	copy(out, m.positions)
	return out, nil
}

// removeOrder 模拟一笔成交把挂单从交易所移除。
func (m *mockGateway) removeOrder(clientID int) {
	m.Lock()
	defer m.Unlock()
	delete(m.open, clientID)
}

func (m *mockGateway) placedCount() int {
	m.Lock()
	defer m.Unlock()
	return len(m.placed)
}

func (m *mockGateway) openOrders() map[int]models.Order {
	m.Lock()
	defer m.Unlock()
	out := make(map[int]models.Order, len(m.open))
	for k, v := range m.open {
		out[k] = v
	}
	return out
}

func (m *mockGateway) setPositions(positions []models.Position) {
	m.Lock()
	defer m.Unlock()
	m.positions = positions
}

type mockAccount struct {
	snapshot models.AccountSnapshot
}

func (m *mockAccount) GetSnapshot() (*models.AccountSnapshot, error) {
	cp := m.snapshot
	return &cp, nil
}

type mockMarket struct {
	sync.Mutex
	price float64
}

func (m *mockMarket) GetMarkPrice(symbol string) (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.price, nil
}

func (m *mockMarket) setPrice(price float64) {
	m.Lock()
	defer m.Unlock()
	m.price = price
}

func newTestController(cfg *models.Config) (*Controller, *mockGateway, *mockMarket) {
	gateway := newMockGateway()
	market := &mockMarket{price: 105}
	account := &mockAccount{snapshot: models.AccountSnapshot{
		CapitalAvailable: 1000,
		MakerFee:         0.0002,
		TakerFee:         0.0005,
	}}
	ctrl := NewController(cfg, gateway, account, market, persistence.NopJournal{}, zap.NewNop().Sugar())
	return ctrl, gateway, market
}

func guardConfig() *models.Config {
	cfg := testConfig()
	cfg.UpperClose = 112
	cfg.LowerClose = 98
	cfg.PnlThreshold = math.Inf(1)
	return cfg
}

func TestStartPlacesFullLadder(t *testing.T) {
	ctrl, gateway, _ := newTestController(testConfig())

	require.NoError(t, ctrl.Start())

	open := gateway.openOrders()
	require.Len(t, open, 5)
	for i := 0; i < 5; i++ {
		require.Contains(t, open, i)
	}
	assert.Equal(t, 1, gateway.cancelCalls, "stale orders are cancelled before placing")
	assert.Equal(t, int64(1), ctrl.Generation())
}

func TestReconcileRecreatesOnlyMissingLevel(t *testing.T) {
	ctrl, gateway, market := newTestController(testConfig())
	require.NoError(t, ctrl.Start())

	// clientId=3 (价格106) 的挂单成交后消失，价格同时越过该档位。
	gateway.removeOrder(3)
	market.setPrice(107)

	before := gateway.placedCount()
	require.NoError(t, ctrl.Reconcile())

	placed := gateway.placed[before:]
	require.Len(t, placed, 1, "exactly one order is recreated")
	assert.Equal(t, 3, placed[0].ClientID)
	// 方向按对账时的参考价重新计算：106 < 107 ⇒ 买单。
	assert.Equal(t, models.Bid, placed[0].Side)
}

func TestReconcileIsNoopWhenAllLevelsResting(t *testing.T) {
	ctrl, gateway, _ := newTestController(testConfig())
	require.NoError(t, ctrl.Start())

	before := gateway.placedCount()
	require.NoError(t, ctrl.Reconcile())
	assert.Equal(t, before, gateway.placedCount())
}

func TestForceCloseOnUpperBound(t *testing.T) {
	ctrl, gateway, _ := newTestController(guardConfig())
	require.NoError(t, ctrl.Start())
	firstGen := ctrl.Generation()

	gateway.setPositions([]models.Position{{
		Symbol:              "SOL_USDC_PERP",
		MarkPrice:           "112.5",
		NetQuantity:         "4.2",
		NetExposureNotional: "470",
		PnlRealized:         "1.0",
		PnlUnrealized:       "-0.4",
	}})

	guard := NewForceCloseGuard(ctrl, zap.NewNop().Sugar())
	require.NoError(t, guard.Check())

	assert.Equal(t, 1, gateway.closeCalls, "exactly one closePosition call")
	assert.Equal(t, firstGen+1, ctrl.Generation(), "ladder is rebuilt with a new generation")
	assert.Len(t, gateway.openOrders(), 5, "new ladder is fully placed")
}

func TestForceCloseIgnoresOtherSymbols(t *testing.T) {
	ctrl, gateway, _ := newTestController(guardConfig())
	require.NoError(t, ctrl.Start())

	gateway.setPositions([]models.Position{{
		Symbol:    "ETH_USDC_PERP",
		MarkPrice: "9999",
	}})

	guard := NewForceCloseGuard(ctrl, zap.NewNop().Sugar())
	require.NoError(t, guard.Check())
	assert.Zero(t, gateway.closeCalls)
}

func TestForceClosePnlThresholdIsClosedInterval(t *testing.T) {
	cfg := guardConfig()
	cfg.UpperClose = math.Inf(1)
	cfg.LowerClose = math.Inf(-1)
	cfg.PnlThreshold = 10

	position := func(realized string) models.Position {
		return models.Position{
			Symbol:              "SOL_USDC_PERP",
			MarkPrice:           "105",
			NetQuantity:         "1",
			NetExposureNotional: "1000", // 往返手续费 1000*(0.0002+0.0005) = 0.7
			PnlRealized:         realized,
			PnlUnrealized:       "0",
		}
	}

	t.Run("just below threshold", func(t *testing.T) {
		ctrl, gateway, _ := newTestController(cfg)
		require.NoError(t, ctrl.Start())
		gateway.setPositions([]models.Position{position("10.69")}) // pnl = 9.99

		guard := NewForceCloseGuard(ctrl, zap.NewNop().Sugar())
		require.NoError(t, guard.Check())
		assert.Zero(t, gateway.closeCalls)
	})

	t.Run("exactly at threshold", func(t *testing.T) {
		ctrl, gateway, _ := newTestController(cfg)
		require.NoError(t, ctrl.Start())
		gateway.setPositions([]models.Position{position("10.7")}) // pnl = 10.0

		guard := NewForceCloseGuard(ctrl, zap.NewNop().Sugar())
		require.NoError(t, guard.Check())
		assert.Equal(t, 1, gateway.closeCalls)
	})
}

// TestConcurrentReconcileAndReset 随机交错对账和整体重建，
// 断言网格锁阻止了对同一 clientId 的重复挂单。
func TestConcurrentReconcileAndReset(t *testing.T) {
	cfg := testConfig()
	cfg.NumGrids = 10
	ctrl, gateway, market := newTestController(cfg)
	gateway.callDelay = 500 * time.Microsecond
	require.NoError(t, ctrl.Start())

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			gateway.removeOrder(rand.Intn(cfg.NumGrids))
			market.setPrice(100 + rand.Float64()*10)
			if err := ctrl.Reconcile(); err != nil {
				t.Errorf("reconcile: %v", err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			if err := ctrl.ResetLadder(); err != nil {
				t.Errorf("reset: %v", err)
				return
			}
		}
	}()

	wg.Wait()

	// 收尾补齐：最后一次成交模拟可能发生在最终一轮对账之后。
	require.NoError(t, ctrl.Reconcile())

	assert.Empty(t, gateway.duplicates, "no clientId may ever be double-placed")
	open := gateway.openOrders()
	require.Len(t, open, cfg.NumGrids)
	for i := 0; i < cfg.NumGrids; i++ {
		assert.Contains(t, open, i)
	}
}
