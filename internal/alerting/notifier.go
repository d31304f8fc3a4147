package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"guardian-amm/internal/domain"
)

// Notification carries the context an operator needs to understand a
// committed (or attempted) defense action.
type Notification struct {
	At       time.Time
	Action   domain.Action
	Severity string
	Record   domain.ActionRecord
	Message  string
}

// Notifier delivers a Notification to an operator-facing channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram-backed Notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API with a rendered text summary.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram responded ok=false")
		}
	}

	n.logger.Info().Time("at", note.At).
		Str("action", string(note.Action)).
		Str("severity", note.Severity).
		Msg("alert delivered")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[guardian-amm]\n")
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Action: %s (%s)\n", note.Action, note.Severity))
	builder.WriteString(fmt.Sprintf("Rationale: %s\n", note.Record.Intent.Rationale))
	if note.Record.Success {
		builder.WriteString(fmt.Sprintf("Result: success, tx %s\n", note.Record.TxHash))
	} else {
		builder.WriteString(fmt.Sprintf("Result: FAILED — %s\n", note.Record.FailureReason))
	}
	if note.Message != "" {
		builder.WriteString(note.Message)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)

// MultiNotifier fans a single Notification out to every configured
// channel, logging (but not failing) on a per-channel delivery error.
type MultiNotifier struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewMultiNotifier builds a fan-out Notifier.
func NewMultiNotifier(logger zerolog.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: logger.With().Str("component", "alerting").Logger()}
}

// Notify delivers to every configured channel independently.
func (m *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Msg("channel delivery failed")
		}
	}
	return nil
}

// SeverityFor classifies an Action's operator-facing urgency.
func SeverityFor(action domain.Action) string {
	switch action {
	case domain.ActionPauseVault:
		return "critical"
	case domain.ActionPauseAMM:
		return "high"
	case domain.ActionBlockLiquidations:
		return "high"
	case domain.ActionRestore:
		return "info"
	default:
		return "info"
	}
}
