package notify

import (
	"context"

	"go.uber.org/zap"
)

// Outcome carries what a player needs to hear about their settlement.
type Outcome struct {
	PollID         string
	PollTitle      string
	PlayerID       string
	PayoutAmount   int64
	RefundAmount   int64
	TotalBetAmount int64
}

// Notifier is best-effort delivery. Callers treat every error as
// log-and-continue; a failed notification never fails a settlement.
type Notifier interface {
	NotifyWin(ctx context.Context, out Outcome) error
	NotifyLoss(ctx context.Context, out Outcome) error
	NotifyRefund(ctx context.Context, out Outcome) error
}

// LogNotifier writes notifications to the service log. Stands in for the
// real push/mail channel in dev and tests.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) NotifyWin(ctx context.Context, out Outcome) error {
	n.log("notify win", out, zap.Int64("payout", out.PayoutAmount))
	return nil
}

func (n *LogNotifier) NotifyLoss(ctx context.Context, out Outcome) error {
	n.log("notify loss", out, zap.Int64("lost", out.TotalBetAmount))
	return nil
}

func (n *LogNotifier) NotifyRefund(ctx context.Context, out Outcome) error {
	n.log("notify refund", out, zap.Int64("refund", out.RefundAmount))
	return nil
}

func (n *LogNotifier) log(msg string, out Outcome, fields ...zap.Field) {
	if n == nil || n.Logger == nil {
		return
	}
	n.Logger.Info(msg, append([]zap.Field{
		zap.String("poll_id", out.PollID),
		zap.String("player_id", out.PlayerID),
	}, fields...)...)
}
