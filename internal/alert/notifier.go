// Package alert handles sending notifications to the operator.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/your-org/trigger-trader/internal/config"
)

// Notifier is the interface for sending alert messages.
type Notifier interface {
	Send(message string) error
	Close() error
}

// NoOpNotifier is a notifier that does nothing. It is used when alerting is disabled.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing and returns nil.
func (n *NoOpNotifier) Send(message string) error {
	return nil
}

// Close does nothing and returns nil.
func (n *NoOpNotifier) Close() error {
	return nil
}

// New returns a TelegramNotifier when credentials are configured and a
// NoOpNotifier otherwise.
func New(cfg config.AlertConfig, logger *zap.Logger) (Notifier, error) {
	if !cfg.Enabled() {
		return NewNoOpNotifier(), nil
	}
	return NewTelegramNotifier(cfg, logger)
}

// telegramSender is the part of *tgbotapi.BotAPI the notifier uses.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier batches messages and sends them to one chat every
// bufferInterval, so a burst of executions becomes one message.
type TelegramNotifier struct {
	sender         telegramSender
	chatID         int64
	logger         *zap.Logger
	bufferInterval time.Duration

	mu     sync.Mutex
	buffer []string
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewTelegramNotifier connects to the Bot API.
func NewTelegramNotifier(cfg config.AlertConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		return nil, errors.New("telegram bot token and chat ID must be configured")
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram notifier connected", zap.String("username", api.Self.UserName))
	return newTelegramNotifier(api, cfg.TelegramChatID, cfg.BufferInterval, logger), nil
}

func newTelegramNotifier(sender telegramSender, chatID int64, interval time.Duration, logger *zap.Logger) *TelegramNotifier {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	n := &TelegramNotifier{
		sender:         sender,
		chatID:         chatID,
		logger:         logger,
		bufferInterval: interval,
		done:           make(chan struct{}),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// Send queues message for the next flush.
func (n *TelegramNotifier) Send(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errors.New("notifier is closed")
	}
	n.buffer = append(n.buffer, message)
	return nil
}

// Close sends whatever is buffered and stops the flush loop.
func (n *TelegramNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
	return nil
}

func (n *TelegramNotifier) run() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.bufferInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.flush()
		case <-n.done:
			n.flush()
			return
		}
	}
}

func (n *TelegramNotifier) flush() {
	n.mu.Lock()
	if len(n.buffer) == 0 {
		n.mu.Unlock()
		return
	}
	text := strings.Join(n.buffer, "\n")
	n.buffer = nil
	n.mu.Unlock()

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error("failed to send telegram alert", zap.Error(err))
	}
}
