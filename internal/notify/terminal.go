package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// TerminalNotifier prints notifications to the terminal. It implements
// NotificationChannel so it can be registered alongside webhook and
// Telegram channels.
type TerminalNotifier struct {
	out          io.Writer
	mu           sync.RWMutex
	enabled      bool
	bellEnabled  bool
	colorEnabled bool
}

// NewTerminalNotifier creates a new TerminalNotifier writing to stdout.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{
		out:          os.Stdout,
		enabled:      true,
		bellEnabled:  true,
		colorEnabled: true,
	}
}

// SetOutput redirects terminal output, mainly for tests.
func (tn *TerminalNotifier) SetOutput(w io.Writer) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.out = w
}

// SetBellEnabled enables or disables the terminal bell.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.bellEnabled = enabled
}

// SetColorEnabled enables or disables colored output.
func (tn *TerminalNotifier) SetColorEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.colorEnabled = enabled
}

// SetEnabled enables or disables the notifier.
func (tn *TerminalNotifier) SetEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.enabled = enabled
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool {
	tn.mu.RLock()
	defer tn.mu.RUnlock()
	return tn.enabled
}

// Send prints a notification to the terminal.
func (tn *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	tn.mu.RLock()
	out := tn.out
	bell := tn.bellEnabled
	color := tn.colorEnabled
	enabled := tn.enabled
	tn.mu.RUnlock()

	if !enabled {
		return nil
	}

	if bell && n.Type == NotificationSignal {
		fmt.Fprint(out, "\a")
	}

	_, err := fmt.Fprintln(out, FormatNotification(n, color))
	return err
}

// FormatNotification formats a notification for terminal display.
func FormatNotification(n Notification, colorEnabled bool) string {
	var sb strings.Builder

	timestamp := n.Timestamp.Format("15:04:05")

	var typeIndicator, color, resetColor string
	if colorEnabled {
		resetColor = "\033[0m"
	}

	switch n.Type {
	case NotificationSignal:
		typeIndicator = "🔔 SIGNAL"
		if colorEnabled {
			color = "\033[36m" // Cyan
		}
	case NotificationError:
		typeIndicator = "❌ ERROR"
		if colorEnabled {
			color = "\033[31m" // Red
		}
	case NotificationSummary:
		typeIndicator = "📊 SUMMARY"
		if colorEnabled {
			color = "\033[32m" // Green
		}
	default:
		typeIndicator = "ℹ️  INFO"
		if colorEnabled {
			color = "\033[37m" // White
		}
	}

	sb.WriteString(fmt.Sprintf("%s[%s] %s%s", color, timestamp, typeIndicator, resetColor))
	sb.WriteString(fmt.Sprintf(" | %s", n.Title))

	if n.Message != "" {
		for _, line := range strings.Split(n.Message, "\n") {
			sb.WriteString(fmt.Sprintf("\n    %s", line))
		}
	}

	return sb.String()
}
