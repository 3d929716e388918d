package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/holyloy/komarce/internal/models"
)

// AdminNotifier pushes back-office alerts. Delivery is best effort; the engine
// logs failures and carries on.
type AdminNotifier interface {
	CashOutRequested(ctx context.Context, request models.CashOutRequest) error
	InfinityCycleUnlocked(ctx context.Context, cycle models.InfinityCycle) error
}

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends admin alerts to a Telegram chat through the Bot API.
type TelegramNotifier struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
}

// NewTelegramNotifier returns nil when the bot token or chat id is missing,
// which disables notifications.
func NewTelegramNotifier(botToken, adminChatID string) *TelegramNotifier {
	if botToken == "" || adminChatID == "" {
		return nil
	}
	return &TelegramNotifier{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     telegramAPI,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:    n.adminChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// CashOutRequested tells the admins a voucher cash-out awaits review.
func (n *TelegramNotifier) CashOutRequested(ctx context.Context, request models.CashOutRequest) error {
	return n.send(ctx, fmt.Sprintf("<b>Voucher cash-out requested</b>\nRequest: %s\nCustomer: %s\nAmount: %s",
		request.ID, request.CustomerID, FormatPoints(request.Amount)))
}

// InfinityCycleUnlocked reports a newly created Infinity cycle.
func (n *TelegramNotifier) InfinityCycleUnlocked(ctx context.Context, cycle models.InfinityCycle) error {
	return n.send(ctx, fmt.Sprintf("<b>Infinity cycle %d unlocked</b>\nCustomer: %s\nNumbers: %d\nIncome: %s",
		cycle.CycleNumber, cycle.CustomerID, cycle.NumbersCount, FormatPoints(cycle.TotalPoints)))
}

// FormatPoints renders points with thousand separators, e.g. "780,000 pts".
func FormatPoints(points int64) string {
	sign := ""
	if points < 0 {
		sign = "-"
		points = -points
	}
	str := fmt.Sprintf("%d", points)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return sign + result.String() + " pts"
}

// notify runs fn against the configured notifier outside any transaction.
func (e *Engine) notify(ctx context.Context, what string, fn func(AdminNotifier) error) {
	if e.notifier == nil {
		return
	}
	if err := fn(e.notifier); err != nil {
		e.log.Warn("admin notification failed", zap.String("event", what), zap.Error(err))
	}
}
