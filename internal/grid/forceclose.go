package grid

import (
	"backpack-grid-bot-go/internal/models"
	"backpack-grid-bot-go/internal/stream"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// ForceCloseGuard 消费公有流的标记价格事件，评估强平条件。
// 触发时市价平仓并整体重建网格，流连接保持不动。
type ForceCloseGuard struct {
	ctrl   *Controller
	logger *zap.SugaredLogger
}

// NewForceCloseGuard 创建强平守卫。
func NewForceCloseGuard(ctrl *Controller, logger *zap.SugaredLogger) *ForceCloseGuard {
	return &ForceCloseGuard{ctrl: ctrl, logger: logger}
}

// HandleFrame 是公有流连接的消息处理函数。
func (g *ForceCloseGuard) HandleFrame(raw []byte) {
	event, err := stream.Decode(raw, g.ctrl.cfg.Symbol)
	if err != nil {
		g.logger.Warnw("丢弃无法解析的公有流消息", "error", err)
		return
	}
	if event.Type != stream.EventMarkPrice {
		return
	}

	if err := g.Check(); err != nil {
		g.logger.Errorw("强平检查失败，等待下一个价格事件重试", "error", err)
	}
}

// Check 拉取当前持仓，评估强平条件；满足则平仓并重建网格。
// 重建对本次触发是同步的：后续价格事件要等网格锁释放后才会被处理。
func (g *ForceCloseGuard) Check() error {
	positions, err := g.ctrl.gateway.GetOpenPositions()
	if err != nil {
		return fmt.Errorf("fetch open positions: %w", err)
	}

	var position *models.Position
	for i := range positions {
		if positions[i].Symbol == g.ctrl.cfg.Symbol {
			position = &positions[i]
			break
		}
	}
	if position == nil {
		return nil
	}

	snapshot, err := g.ctrl.account.GetSnapshot()
	if err != nil {
		return fmt.Errorf("fetch account snapshot: %w", err)
	}

	markPrice, err := strconv.ParseFloat(position.MarkPrice, 64)
	if err != nil {
		return fmt.Errorf("parse markPrice %q: %w", position.MarkPrice, err)
	}
	notional, _ := strconv.ParseFloat(position.NetExposureNotional, 64)
	realized, _ := strconv.ParseFloat(position.PnlRealized, 64)
	unrealized, _ := strconv.ParseFloat(position.PnlUnrealized, 64)

	// 往返手续费：开仓吃单 + 平仓挂单。
	totalFee := notional * (snapshot.MakerFee + snapshot.TakerFee)
	pnl := realized + unrealized - totalFee

	if !shouldForceClose(g.ctrl.cfg, markPrice, pnl) {
		return nil
	}

	g.logger.Warnw("触发强平",
		"mark_price", markPrice,
		"pnl_after_fees", pnl,
		"upper_close", g.ctrl.cfg.UpperClose,
		"lower_close", g.ctrl.cfg.LowerClose,
		"pnl_threshold", g.ctrl.cfg.PnlThreshold)

	if err := g.ctrl.gateway.ClosePosition(*position); err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	g.ctrl.recordJournal(models.JournalEntry{
		Kind:       "forceClose",
		Generation: g.ctrl.Generation(),
		Price:      markPrice,
		Detail:     fmt.Sprintf("pnl_after_fees=%.6f", pnl),
	})
	g.logger.Infow("仓位已强制平仓", "mark_price", markPrice)

	if err := g.ctrl.ResetLadder(); err != nil {
		return fmt.Errorf("rebuild ladder after force close: %w", err)
	}
	return nil
}

// shouldForceClose 评估强平条件：价格越界或扣费后盈亏达到阈值（闭区间）。
func shouldForceClose(cfg *models.Config, markPrice, pnl float64) bool {
	return markPrice >= cfg.UpperClose || markPrice <= cfg.LowerClose || pnl >= cfg.PnlThreshold
}
