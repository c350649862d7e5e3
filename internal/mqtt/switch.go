package mqtt

import (
	"context"
	"fmt"

	"github.com/langchou/chargepilot/internal/config"
)

// Switch 通过 MQTT 命令主题控制的插座（Tasmota 风格 cmnd/<name>/POWER）
type Switch struct {
	pub        Publisher
	topic      string
	onPayload  string
	offPayload string
}

// NewSwitch 创建 MQTT 插座
func NewSwitch(pub Publisher, cfg config.SwitchConfig) *Switch {
	return &Switch{
		pub:        pub,
		topic:      cfg.MQTTTopic,
		onPayload:  cfg.OnPayload,
		offPayload: cfg.OffPayload,
	}
}

// SetOn 以 QoS 1 发布命令，重复发布同一命令是幂等的
func (s *Switch) SetOn(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := s.offPayload
	if on {
		payload = s.onPayload
	}
	if err := s.pub.Publish(s.topic, 1, false, []byte(payload)); err != nil {
		return fmt.Errorf("switch %s: %w", payload, err)
	}
	return nil
}
