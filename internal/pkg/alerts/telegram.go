// Package alerts sends operational notifications about source health to Telegram.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Min interval between any two Telegram messages to the same chat to avoid 429 Too Many Requests (~30/min limit).
const telegramSendInterval = 2 * time.Second

// Alerter is notified about platforms whose feed stops answering and comes back.
type Alerter interface {
	SourceDown(ctx context.Context, platform string, failures int, lastErr error) error
	SourceRecovered(ctx context.Context, platform string, downFor time.Duration) error
}

// Nop drops every alert.
type Nop struct{}

func (Nop) SourceDown(context.Context, string, int, error) error         { return nil }
func (Nop) SourceRecovered(context.Context, string, time.Duration) error { return nil }

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier queues alerts and sends them from one goroutine with rate limiting.
type TelegramNotifier struct {
	bot      sender
	chatID   int64
	interval time.Duration
	mu       sync.Mutex
	lastSend time.Time

	queue     chan string
	queueDone chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewTelegramNotifier creates a notifier and checks the token with getMe.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false

	me, err := bot.GetMe()
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}

	slog.Info("Telegram notifier initialized", "chat_id", chatID, "bot", me.UserName)
	return newNotifier(bot, chatID, telegramSendInterval), nil
}

func newNotifier(bot sender, chatID int64, interval time.Duration) *TelegramNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &TelegramNotifier{
		bot:       bot,
		chatID:    chatID,
		interval:  interval,
		queue:     make(chan string, 100),
		queueDone: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	go n.messageSender()
	return n
}

func (n *TelegramNotifier) SourceDown(ctx context.Context, platform string, failures int, lastErr error) error {
	text := fmt.Sprintf("🔴 *Source down*\n\nPlatform: %s\nConsecutive failures: %d\nLast error: %s\n\n_Time: %s_",
		escapeMarkdown(platform), failures, escapeMarkdown(truncateString(errString(lastErr), 300)), formatTime(time.Now()))
	return n.enqueue(ctx, text)
}

func (n *TelegramNotifier) SourceRecovered(ctx context.Context, platform string, downFor time.Duration) error {
	text := fmt.Sprintf("🟢 *Source recovered*\n\nPlatform: %s\nDown for: %s\n\n_Time: %s_",
		escapeMarkdown(platform), downFor.Round(time.Second), formatTime(time.Now()))
	return n.enqueue(ctx, text)
}

// QueueLen returns current number of messages in the send queue.
func (n *TelegramNotifier) QueueLen() int {
	return len(n.queue)
}

// Stop stops the notifier and waits for all queued messages to be sent
func (n *TelegramNotifier) Stop() {
	n.cancel()
	<-n.queueDone
}

func (n *TelegramNotifier) enqueue(ctx context.Context, text string) error {
	if n.ctx.Err() != nil {
		return fmt.Errorf("notifier stopped")
	}
	select {
	case <-n.ctx.Done():
		return fmt.Errorf("notifier stopped")
	case <-ctx.Done():
		return ctx.Err()
	case n.queue <- text:
		return nil
	default:
		slog.Warn("Telegram message queue is full, dropping message", "message_preview", truncateString(text, 50))
		return fmt.Errorf("message queue is full")
	}
}

// messageSender runs in background and sends queued messages with proper intervals
func (n *TelegramNotifier) messageSender() {
	for {
		select {
		case <-n.ctx.Done():
			// Drain remaining messages before exit
			for {
				select {
				case text := <-n.queue:
					n.send(text, false)
				default:
					close(n.queueDone)
					return
				}
			}
		case text := <-n.queue:
			n.send(text, true)
		}
	}
}

func (n *TelegramNotifier) send(text string, wait bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if elapsed := time.Since(n.lastSend); wait && elapsed < n.interval {
		select {
		case <-n.ctx.Done():
		case <-time.After(n.interval - elapsed):
		}
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	n.lastSend = time.Now()
	if _, err := n.bot.Send(msg); err != nil {
		slog.Error("Telegram send: failed", "error", err, "message_preview", truncateString(text, 50))
		return
	}
	slog.Info("Telegram send: success", "queue_length", len(n.queue))
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// escapeMarkdown escapes the characters legacy Markdown mode treats as markup.
func escapeMarkdown(text string) string {
	return strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`").Replace(text)
}
