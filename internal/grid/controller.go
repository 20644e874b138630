package grid

import (
	"backpack-grid-bot-go/internal/config"
	"backpack-grid-bot-go/internal/exchange"
	"backpack-grid-bot-go/internal/models"
	"backpack-grid-bot-go/internal/persistence"
	"backpack-grid-bot-go/internal/reporter"
	"backpack-grid-bot-go/internal/stream"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StreamConn 是控制器管理的连接表面，由 stream.Conn 实现。
type StreamConn interface {
	Kind() stream.Kind
	Connect() error
	IsOpen() bool
	Close()
}

// Controller 是网格引擎的编排者：独占持有当前一代网格，
// 负责启动序列和强平后的整体重建。
type Controller struct {
	cfg     *models.Config
	gateway exchange.OrderGateway
	account exchange.AccountProvider
	market  exchange.MarketDataProvider
	journal persistence.Journal
	logger  *zap.SugaredLogger

	// ladderMu 序列化所有网格变更操作。逐档对账和整体重建都要在持锁
	// 状态下跑完全部网络调用，否则两个事件源的处理会交错出重复挂单。
	ladderMu   sync.Mutex
	ladder     *models.Ladder
	generation int64

	private    StreamConn
	public     StreamConn
	supervisor *stream.Supervisor
}

// NewController 创建控制器。流连接与监督器通过 AttachStreams 注入，
// 因为它们的消息处理函数需要先引用控制器。
func NewController(
	cfg *models.Config,
	gateway exchange.OrderGateway,
	account exchange.AccountProvider,
	market exchange.MarketDataProvider,
	journal persistence.Journal,
	logger *zap.SugaredLogger,
) *Controller {
	return &Controller{
		cfg:     cfg,
		gateway: gateway,
		account: account,
		market:  market,
		journal: journal,
		logger:  logger,
	}
}

// AttachStreams 注入两条流连接与监督器，必须在 Start 之前调用。
func (c *Controller) AttachStreams(private, public StreamConn, supervisor *stream.Supervisor) {
	c.private = private
	c.public = public
	c.supervisor = supervisor
}

// Start 执行启动序列：校验配置，建网格并挂单，然后拉起两条流和监督器。
// 只有配置非法或首次参考价获取失败会让启动失败；单档挂单失败只记日志，
// 缺失的档位由后续对账补齐。
func (c *Controller) Start() error {
	if err := config.Validate(c.cfg); err != nil {
		return err
	}

	if err := c.ResetLadder(); err != nil {
		return fmt.Errorf("initial ladder build: %w", err)
	}

	// Connect 对已在连接中的实例是无操作，重复 Start 不会重建连接。
	if c.private != nil {
		c.private.Connect()
	}
	if c.public != nil {
		c.public.Connect()
	}
	if c.supervisor != nil {
		c.supervisor.Start()
	}

	c.logger.Infow("网格引擎已启动",
		"symbol", c.cfg.Symbol,
		"grids", c.cfg.NumGrids,
		"range", fmt.Sprintf("[%v, %v]", c.cfg.LowerPrice, c.cfg.UpperPrice))
	return nil
}

// ResetLadder 在持有网格锁的情况下整体重建：取参考价、生成新一代网格、
// 清掉旧挂单、逐档重新挂单。强平守卫在平仓后调用它，流连接保持不动。
func (c *Controller) ResetLadder() error {
	c.ladderMu.Lock()
	defer c.ladderMu.Unlock()

	referencePrice, err := c.market.GetMarkPrice(c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch reference price: %w", err)
	}

	ladder, err := GenerateLadder(c.cfg, referencePrice)
	if err != nil {
		return err
	}
	c.generation++
	ladder.Generation = c.generation
	c.ladder = ladder

	c.logger.Infow("网格已生成",
		"generation", ladder.Generation,
		"reference_price", referencePrice,
		"levels", len(ladder.Levels))

	// 清旧挂单是尽力而为：失败的残留订单会在对账时被识别为已存在档位。
	if err := c.gateway.CancelAllOpenOrders(c.cfg.Symbol); err != nil {
		c.logger.Warnw("取消现有挂单失败", "symbol", c.cfg.Symbol, "error", err)
	} else {
		c.logger.Infow("已取消现有挂单", "symbol", c.cfg.Symbol)
	}

	snapshot, err := c.account.GetSnapshot()
	if err != nil {
		return fmt.Errorf("fetch account snapshot: %w", err)
	}

	for _, level := range ladder.Levels {
		c.placeLevel(level, snapshot, "orderPlaced")
	}

	c.recordJournal(models.JournalEntry{
		Kind:       "ladderRebuilt",
		Generation: ladder.Generation,
		Price:      referencePrice,
		Detail:     fmt.Sprintf("%d levels", len(ladder.Levels)),
	})
	reporter.PrintLadder(c.cfg.Symbol, ladder, referencePrice)
	return nil
}

// Reconcile 在持有网格锁的情况下做一轮对账：对当前一代的每个档位，
// 查询 clientID 对应的挂单是否还在；缺失的档位按最新参考价重算方向并补单。
// 单档失败跳过，等下一个触发事件重试。
func (c *Controller) Reconcile() error {
	c.ladderMu.Lock()
	defer c.ladderMu.Unlock()

	if c.ladder == nil {
		return nil
	}

	referencePrice, err := c.market.GetMarkPrice(c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch reference price: %w", err)
	}
	snapshot, err := c.account.GetSnapshot()
	if err != nil {
		return fmt.Errorf("fetch account snapshot: %w", err)
	}

	for i := range c.ladder.Levels {
		level := &c.ladder.Levels[i]

		existing, err := c.gateway.FindOpenOrder(c.cfg.Symbol, level.ClientID)
		if err != nil {
			c.logger.Warnw("查询挂单失败，该档位留到下轮重试",
				"client_id", level.ClientID, "error", err)
			continue
		}
		if existing != nil {
			continue
		}

		// 价格可能已经越过该档位，方向按当前参考价重新计算。
		level.Side = sideForPrice(level.Price, referencePrice)
		c.placeLevel(*level, snapshot, "orderRecreated")
	}
	return nil
}

// placeLevel 为单个档位挂限价单。调用方必须持有 ladderMu。
func (c *Controller) placeLevel(level models.GridLevel, snapshot *models.AccountSnapshot, journalKind string) {
	quantity := snapshot.CapitalAvailable / float64(c.cfg.NumGrids) / level.Price
	if quantity <= 0 {
		c.logger.Warnw("可用资金不足，跳过档位", "client_id", level.ClientID, "price", level.Price)
		return
	}

	if err := c.gateway.PlaceLimitOrder(c.cfg.Symbol, level.Side, level.Price, quantity, level.ClientID); err != nil {
		c.logger.Warnw("挂单失败，该档位留到下轮重试",
			"client_id", level.ClientID, "side", level.Side, "price", level.Price, "error", err)
		return
	}

	c.logger.Infow("挂单成功",
		"kind", journalKind,
		"generation", c.ladder.Generation,
		"client_id", level.ClientID,
		"side", level.Side,
		"price", level.Price,
		"quantity", quantity)

	c.recordJournal(models.JournalEntry{
		Kind:       journalKind,
		Generation: c.ladder.Generation,
		ClientID:   level.ClientID,
		Side:       level.Side,
		Price:      level.Price,
		Quantity:   quantity,
	})
}

// recordJournal 尽力记录日志，失败不影响交易流程。
func (c *Controller) recordJournal(entry models.JournalEntry) {
	entry.Time = time.Now()
	if err := c.journal.Record(entry); err != nil {
		c.logger.Warnw("写入事件日志失败", "kind", entry.Kind, "error", err)
	}
}

// Ladder 返回当前一代网格的副本，供报表和测试读取。
func (c *Controller) Ladder() *models.Ladder {
	c.ladderMu.Lock()
	defer c.ladderMu.Unlock()

	if c.ladder == nil {
		return nil
	}
	levels := make([]models.GridLevel, len(c.ladder.Levels))
	copy(levels, c.ladder.Levels)
	return &models.Ladder{Generation: c.ladder.Generation, Levels: levels}
}

// Generation 返回当前网格代号。
func (c *Controller) Generation() int64 {
	c.ladderMu.Lock()
	defer c.ladderMu.Unlock()
	return c.generation
}

// Stop 优雅停机：停监督器、关两条流，并尽力撤掉所有挂单。
func (c *Controller) Stop() {
	if c.supervisor != nil {
		c.supervisor.Stop()
	}
	if c.private != nil {
		c.private.Close()
	}
	if c.public != nil {
		c.public.Close()
	}
	if err := c.gateway.CancelAllOpenOrders(c.cfg.Symbol); err != nil {
		c.logger.Warnw("停机撤单失败，可能需要手动检查", "symbol", c.cfg.Symbol, "error", err)
	}
	c.logger.Info("网格引擎已停止")
}
