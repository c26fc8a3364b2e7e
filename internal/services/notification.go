package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/adpulse/adpulse-go/internal/config"
	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/orchestrator"
)

// minDispatchInterval throttles alert bursts per account.
const minDispatchInterval = 5 * time.Minute

// AnomalyNotifier pushes high-severity anomaly alerts to a Telegram chat.
// Dispatch is best-effort: a send failure is logged, never propagated.
type AnomalyNotifier struct {
	bot     *bot.Bot
	chatID  int64
	enabled bool
	logger  *logrus.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewAnomalyNotifier creates the notifier. A missing or invalid token
// disables dispatch without failing startup.
func NewAnomalyNotifier(cfg config.TelegramConfig, logger *logrus.Logger) *AnomalyNotifier {
	n := &AnomalyNotifier{
		logger:   logger,
		lastSent: make(map[string]time.Time),
	}
	if !cfg.Enabled || cfg.BotToken == "" {
		return n
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		logger.WithError(err).Warn("Invalid Telegram chat id, anomaly notifications disabled")
		return n
	}

	telegramBot, err := bot.New(cfg.BotToken)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize Telegram bot, anomaly notifications disabled")
		return n
	}

	n.bot = telegramBot
	n.chatID = chatID
	n.enabled = true
	return n
}

// NotifyAnomalies sends one alert message covering the high and critical
// anomalies of the batch. Low and medium severities are not alert-worthy.
func (n *AnomalyNotifier) NotifyAnomalies(ctx context.Context, anomalies []models.AnomalyRecord) {
	if !n.enabled {
		return
	}

	alertable := make([]models.AnomalyRecord, 0, len(anomalies))
	for _, a := range anomalies {
		if a.Severity == models.SeverityHigh || a.Severity == models.SeverityCritical {
			alertable = append(alertable, a)
		}
	}
	if len(alertable) == 0 {
		return
	}

	accountID := alertable[0].AccountID
	if !n.shouldDispatch(accountID) {
		n.logger.WithField("account_id", accountID).Debug("Anomaly alert suppressed by dispatch throttle")
		return
	}

	message := formatAnomalyMessage(accountID, alertable)
	if _, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      message,
		ParseMode: tgmodels.ParseModeMarkdown,
	}); err != nil {
		n.logger.WithField("account_id", accountID).WithError(err).Warn("Failed to send anomaly alert")
	}
}

func (n *AnomalyNotifier) shouldDispatch(accountID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[accountID]; ok && time.Since(last) < minDispatchInterval {
		return false
	}
	n.lastSent[accountID] = time.Now()
	return true
}

func formatAnomalyMessage(accountID string, anomalies []models.AnomalyRecord) string {
	titler := cases.Title(language.English)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚨 *Ad anomalies detected* (account `%s`)\n\n", accountID))
	for i, a := range anomalies {
		if i >= 10 {
			b.WriteString(fmt.Sprintf("…and %d more\n", len(anomalies)-i))
			break
		}
		typeName := titler.String(strings.ReplaceAll(string(a.Type), "_", " "))
		b.WriteString(fmt.Sprintf("• *%s* %s, ad `%s` (%s)\n  %s\n",
			strings.ToUpper(string(a.Severity)), typeName, a.AdID,
			a.DateRange.End.Format("2006-01-02"), a.Message))
	}
	return b.String()
}

// NotifierFanout dispatches anomalies to multiple notifiers.
type NotifierFanout []orchestrator.Notifier

// NotifyAnomalies forwards the batch to every notifier in order.
func (f NotifierFanout) NotifyAnomalies(ctx context.Context, anomalies []models.AnomalyRecord) {
	for _, n := range f {
		n.NotifyAnomalies(ctx, anomalies)
	}
}
