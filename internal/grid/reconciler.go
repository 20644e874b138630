package grid

import (
	"backpack-grid-bot-go/internal/stream"

	"go.uber.org/zap"
)

// Reconciler 消费私有流的仓位/订单事件，驱动网格对账。
// 事件本身只作为触发信号，对账总是对整代网格做全量检查，
// 所以乱序或丢失的单条通知不会让状态发散。
type Reconciler struct {
	ctrl   *Controller
	logger *zap.SugaredLogger
}

// NewReconciler 创建对账引擎。
func NewReconciler(ctrl *Controller, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{ctrl: ctrl, logger: logger}
}

// HandleFrame 是私有流连接的消息处理函数。
func (r *Reconciler) HandleFrame(raw []byte) {
	event, err := stream.Decode(raw, r.ctrl.cfg.Symbol)
	if err != nil {
		r.logger.Warnw("丢弃无法解析的私有流消息", "error", err)
		return
	}

	switch event.Type {
	case stream.EventPositionUpdate:
		r.logger.Debugw("收到仓位更新", "symbol", event.Position.Symbol)
	case stream.EventOrderFill:
		r.logger.Infow("订单成交",
			"client_id", event.Order.ClientID,
			"side", event.Order.Side,
			"price", event.Order.Price,
			"fill_qty", event.Order.FillQty)
	case stream.EventOrderCancel:
		r.logger.Infow("订单被取消", "client_id", event.Order.ClientID)
	default:
		return
	}

	if err := r.ctrl.Reconcile(); err != nil {
		r.logger.Errorw("对账失败，等待下一个事件重试", "error", err)
	}
}
