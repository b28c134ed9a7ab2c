// Package notify sends sweep-completion summaries via the Telegram Bot API.
// Production sweeps run for tens of minutes; the notifier reports the final
// result table to a chat so nobody has to watch the terminal. Delivery uses
// a bounded retry loop with linear backoff.
package notify

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/epistoch/seirsweep/internal/sweep"
)

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendSummary sends the finished sweep's result table.
func (c *Client) SendSummary(sweepID string, rows []sweep.Row, elapsed time.Duration) error {
	msg := tgbotapi.NewMessage(c.chatID, FormatSummary(sweepID, rows, elapsed))
	msg.ParseMode = tgbotapi.ModeMarkdown

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed to send summary after %d retries: %w", c.maxRetries, lastErr)
}

// FormatSummary renders the notification body: a header plus the result
// table in a monospace block so columns stay aligned in the chat.
func FormatSummary(sweepID string, rows []sweep.Row, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Sweep complete* — %d coverage levels in %s\n", len(rows), elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Sweep ID: `%s`\n", sweepID)

	failures := 0
	for _, row := range rows {
		failures += row.Failures
	}
	if failures > 0 {
		fmt.Fprintf(&b, "⚠ %d replication failures across the sweep\n", failures)
	}

	b.WriteString("```\n")
	fmt.Fprintf(&b, "%-8s %-9s %-12s\n", "p", "prob_epi", "mean_size")
	for _, row := range rows {
		meanSize := "n/a"
		if !math.IsNaN(row.MeanSize) {
			meanSize = fmt.Sprintf("%.1f", row.MeanSize)
		}
		fmt.Fprintf(&b, "%-8.3f %-9.4f %-12s\n", row.Coverage, row.Probability, meanSize)
	}
	b.WriteString("```")
	return b.String()
}
