package outlet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/langchou/chargepilot/internal/config"
)

// HTTPSwitch 通过 HTTP 命令控制的智能插座（Shelly/Tasmota 等固件）
type HTTPSwitch struct {
	httpClient *http.Client
	onURL      string
	offURL     string
}

// NewHTTPSwitch 创建 HTTP 插座
func NewHTTPSwitch(cfg config.SwitchConfig) *HTTPSwitch {
	return &HTTPSwitch{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		onURL:  cfg.OnURL,
		offURL: cfg.OffURL,
	}
}

// SetOn 发送开/关命令，插座固件保证重复命令幂等
func (s *HTTPSwitch) SetOn(ctx context.Context, on bool) error {
	u := s.offURL
	if on {
		u = s.onURL
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("switch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("switch failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
