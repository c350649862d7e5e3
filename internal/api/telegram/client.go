package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/service"
)

// 单次 getUpdates 长轮询上限
const maxLongPoll = 25 * time.Second

// Client Telegram Bot API 客户端，实现 service.Notifier
type Client struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger

	mu     sync.Mutex
	offset int
	now    func() time.Time
}

// NewClient 创建 Telegram 客户端并用 getMe 校验 token
func NewClient(cfg config.TelegramConfig, logger *zap.Logger) (*Client, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}

	httpClient := &http.Client{
		Timeout: maxLongPoll + 15*time.Second,
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, cfg.APIURL+"/bot%s/%s", httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	logger.Info("Telegram bot ready", zap.String("username", bot.Self.UserName))

	return &Client{
		bot:    bot,
		chatID: chatID,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Send 发送消息。非强制消息静默送达
func (c *Client) Send(ctx context.Context, text string, opts service.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.DisableNotification = !opts.ForceDeliver
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// AwaitReply 等待本会话聊天中的下一条文本消息。调用之前的消息被忽略
func (c *Client) AwaitReply(ctx context.Context, timeout time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	since := c.now().Unix()
	deadline := c.now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return "", false, nil
		}
		if remaining > maxLongPoll {
			remaining = maxLongPoll
		}

		updates, err := c.getUpdates(ctx, remaining)
		if err != nil {
			return "", false, err
		}
		for _, u := range updates {
			if u.UpdateID >= c.offset {
				c.offset = u.UpdateID + 1
			}
			m := u.Message
			if m == nil || m.Chat == nil || m.Text == "" || int64(m.Date) < since {
				continue
			}
			if m.Chat.ID != c.chatID {
				c.logger.Debug("Ignoring message from other chat", zap.Int64("chat_id", m.Chat.ID))
				continue
			}
			return m.Text, true, nil
		}
	}
}

type updatesResult struct {
	updates []tgbotapi.Update
	err     error
}

// getUpdates 长轮询。库调用不接受 context，取消时放弃等待中的请求，
// 未确认的更新会在下次调用时重新下发
func (c *Client) getUpdates(ctx context.Context, wait time.Duration) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.UpdateConfig{
		Offset:         c.offset,
		Timeout:        int(wait.Seconds()),
		AllowedUpdates: []string{"message"},
	}

	done := make(chan updatesResult, 1)
	go func() {
		updates, err := c.bot.GetUpdates(cfg)
		done <- updatesResult{updates: updates, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("get updates: %w", r.err)
		}
		return r.updates, nil
	}
}
