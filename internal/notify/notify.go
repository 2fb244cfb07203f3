// Package notify delivers analysis signals and summaries to external
// channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/config"
	errs "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendSignal(ctx context.Context, symbol string, spot float64, sig *analysis.Signal) error
	SendDailySummary(ctx context.Context, summary *DailySummary) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationSignal  NotificationType = "signal"
	NotificationError   NotificationType = "error"
	NotificationSummary NotificationType = "summary"
	NotificationInfo    NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll         NotificationLevel = "all"
	LevelSignalsOnly NotificationLevel = "signals_only"
	LevelErrorsOnly  NotificationLevel = "errors_only"
)

// DailySummary represents one session's analysis summary.
type DailySummary struct {
	Date           string
	Symbol         string
	Ticks          int
	Signals        int
	TradeEntries   int
	ReversalAlerts int
	ExpirySignals  int
	FinalVerdict   string
	SpotOpen       float64
	SpotClose      float64
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a new MultiNotifier with the given configuration.
func NewMultiNotifier(cfg *config.NotificationConfig) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	// Add enabled channels
	if cfg.Terminal {
		mn.channels = append(mn.channels, NewTerminalNotifier())
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// shouldSend checks if a notification should be sent based on the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelSignalsOnly:
		return notifType == NotificationSignal
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendSignal sends one signal notification.
func (mn *MultiNotifier) SendSignal(ctx context.Context, symbol string, spot float64, sig *analysis.Signal) error {
	var emoji, headline string
	switch sig.Kind {
	case analysis.SignalTradeEntry:
		if sig.Side == models.CallSide {
			emoji, headline = "🟢", "CALL Entry"
		} else {
			emoji, headline = "🔴", "PUT Entry"
		}
	case analysis.SignalReversalAlert:
		emoji, headline = "🔄", "Reversal Alert"
	case analysis.SignalLiquiditySpike:
		emoji, headline = "⚡", "Liquidity Spike"
	case analysis.SignalExpiry:
		emoji, headline = "📅", "Expiry Day Signal"
	default:
		emoji, headline = "🔔", string(sig.Kind)
	}

	title := fmt.Sprintf("%s %s: %s %.0f %s", emoji, headline, symbol, sig.Strike, sig.Side)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Spot: %.2f\n", spot))
	sb.WriteString(fmt.Sprintf("Strike: %.0f %s\n", sig.Strike, sig.Side))
	if sig.EntryPrice > 0 {
		sb.WriteString(fmt.Sprintf("Entry: ₹%.2f\n", sig.EntryPrice))
	}
	if sig.TargetPrice > 0 {
		sb.WriteString(fmt.Sprintf("🎯 Target: ₹%.2f\n", sig.TargetPrice))
	}
	if sig.StopLossPrice > 0 {
		sb.WriteString(fmt.Sprintf("🛑 SL: ₹%.2f\n", sig.StopLossPrice))
	}
	sb.WriteString(fmt.Sprintf("Bias: %.1f (%s)\n", sig.BiasTotal, sig.Classification))
	if sig.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s", sig.Reason))
	}

	return mn.Send(ctx, Notification{
		Type:      NotificationSignal,
		Title:     title,
		Message:   sb.String(),
		Timestamp: sig.Timestamp,
		Data: map[string]interface{}{
			"signal_id":      sig.ID,
			"kind":           sig.Kind,
			"symbol":         symbol,
			"strike":         sig.Strike,
			"side":           sig.Side,
			"entry":          sig.EntryPrice,
			"target":         sig.TargetPrice,
			"stop_loss":      sig.StopLossPrice,
			"bias_total":     sig.BiasTotal,
			"classification": sig.Classification,
		},
	})
}

// SendDailySummary sends an end-of-session summary.
func (mn *MultiNotifier) SendDailySummary(ctx context.Context, summary *DailySummary) error {
	move := summary.SpotClose - summary.SpotOpen
	emoji := "📊"
	if move > 0 {
		emoji = "📈"
	} else if move < 0 {
		emoji = "📉"
	}

	title := fmt.Sprintf("%s Session Summary - %s %s", emoji, summary.Symbol, summary.Date)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Spot: %.2f → %.2f (%+.2f)\n", summary.SpotOpen, summary.SpotClose, move))
	sb.WriteString(fmt.Sprintf("Ticks Processed: %d\n", summary.Ticks))
	sb.WriteString(fmt.Sprintf("Signals: %d\n", summary.Signals))
	sb.WriteString(fmt.Sprintf("Entries: %d | Reversals: %d | Expiry: %d\n",
		summary.TradeEntries, summary.ReversalAlerts, summary.ExpirySignals))
	sb.WriteString(fmt.Sprintf("Final Verdict: %s", summary.FinalVerdict))

	return mn.Send(ctx, Notification{
		Type:    NotificationSummary,
		Title:   title,
		Message: sb.String(),
		Data: map[string]interface{}{
			"date":    summary.Date,
			"symbol":  summary.Symbol,
			"ticks":   summary.Ticks,
			"signals": summary.Signals,
			"verdict": summary.FinalVerdict,
		},
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	title := "❌ Error Occurred"
	message := fmt.Sprintf("Context: %s\nError: %v\nTime: %s",
		errContext, err, time.Now().Format("15:04:05"))

	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send sends a notification via webhook.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "OptionsAnalyzer/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return errs.NewNotifyError("webhook", "sending request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.NewNotifyError("webhook", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	return nil
}

// TelegramNotifier sends notifications via Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	// Format message for Telegram (using HTML parse mode)
	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errs.NewNotifyError("telegram", "sending message", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.NewNotifyError("telegram", fmt.Sprintf("API status %d", resp.StatusCode), nil)
	}

	return nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// NoOpNotifier is a notifier that does nothing (for testing or disabled notifications).
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) error {
	return nil
}

// SendSignal does nothing.
func (n *NoOpNotifier) SendSignal(ctx context.Context, symbol string, spot float64, sig *analysis.Signal) error {
	return nil
}

// SendDailySummary does nothing.
func (n *NoOpNotifier) SendDailySummary(ctx context.Context, summary *DailySummary) error {
	return nil
}

// SendError does nothing.
func (n *NoOpNotifier) SendError(ctx context.Context, err error, context string) error {
	return nil
}
