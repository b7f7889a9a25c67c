package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Button is one inline keyboard button (label + URL).
type Button struct {
	Label string
	URL   string
}

// TelegramConfig holds bot credentials and target chats.
type TelegramConfig struct {
	Enabled       bool
	Token         string
	NewsChatID    int64
	ServiceChatID int64
}

// LoadTelegramConfigFromEnv reads TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID and
// TELEGRAM_SERVICE_CHAT_ID. The channel is disabled when token or news chat
// are missing.
func LoadTelegramConfigFromEnv() TelegramConfig {
	cfg := TelegramConfig{
		Token: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.NewsChatID = id
		}
	}
	if raw := os.Getenv("TELEGRAM_SERVICE_CHAT_ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.ServiceChatID = id
		}
	}
	cfg.Enabled = cfg.Token != "" && cfg.NewsChatID != 0
	return cfg
}

// Telegram is the bot facade used by the digest dispatch.
type Telegram struct {
	bot    *bot.Bot
	cfg    TelegramConfig
	logger *slog.Logger
}

// NewTelegram creates the facade. Returns an error when the token is
// rejected by the bot API client.
func NewTelegram(cfg TelegramConfig, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b, err := bot.New(cfg.Token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, cfg: cfg, logger: logger}, nil
}

// SendDigestPart sends one digest message part to the news chat with HTML
// parse mode and an optional inline keyboard. The HTML is sanitized against
// the allowed tag set before sending.
func (t *Telegram) SendDigestPart(ctx context.Context, htmlBody string, buttons []Button) error {
	sanitized := SanitizeHTML(htmlBody)
	if sanitized != htmlBody {
		t.logger.Warn("digest HTML required sanitation before send")
	}
	sanitized = TruncateHTML(sanitized, maxMessageLength)

	params := &bot.SendMessageParams{
		ChatID:    t.cfg.NewsChatID,
		Text:      sanitized,
		ParseMode: models.ParseModeHTML,
	}
	if len(buttons) > 0 {
		row := make([]models.InlineKeyboardButton, 0, len(buttons))
		for _, btn := range buttons {
			row = append(row, models.InlineKeyboardButton{Text: btn.Label, URL: btn.URL})
		}
		params.ReplyMarkup = &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{row},
		}
	}

	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send digest part: %w", err)
	}
	return nil
}

// SendServiceMessage sends an operational notice to the service chat when
// one is configured.
func (t *Telegram) SendServiceMessage(ctx context.Context, message string) error {
	if t.cfg.ServiceChatID == 0 {
		return nil
	}
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.cfg.ServiceChatID,
		Text:   message,
	})
	if err != nil {
		return fmt.Errorf("send service message: %w", err)
	}
	return nil
}
