package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// parseReply 解析操作员回复：yes/sì → 默认目标，no → 拒绝，
// 1..100 的整数 → 自定义目标，其他内容视为拒绝
func parseReply(reply string, defaultTarget int) (int, bool) {
	text := strings.ToLower(strings.TrimSpace(reply))
	switch text {
	case "yes", "y", "sì", "si", "ok":
		return defaultTarget, true
	case "no", "n":
		return 0, false
	}

	text = strings.TrimSuffix(text, "%")
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > 100 {
		return 0, false
	}
	return n, true
}

// negotiateTarget 询问操作员目标电量，超时或无法识别的回复视为拒绝
func (m *Monitor) negotiateTarget(ctx context.Context, current int) (int, bool) {
	cc := m.cfg.Charging
	prompt := fmt.Sprintf("🔌 Battery at %d%%. Charge to %d%%? Reply yes / no or a target percentage (within %s).",
		current, cc.DefaultTarget, formatDuration(cc.ReplyTimeout))
	m.notify(ctx, prompt, true)

	reply, ok, err := m.notifier.AwaitReply(ctx, cc.ReplyTimeout)
	if err != nil {
		m.logger.Warn("Failed to read operator reply", zap.Error(err))
		return 0, false
	}
	if !ok {
		m.logger.Info("No operator reply before timeout", zap.Duration("timeout", cc.ReplyTimeout))
		return 0, false
	}

	target, accepted := parseReply(reply, cc.DefaultTarget)
	m.logger.Info("Operator replied", zap.String("reply", reply), zap.Bool("accepted", accepted), zap.Int("target", target))
	return target, accepted
}
