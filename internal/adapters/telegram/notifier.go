package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
	"github.com/yhwang-dev/tradeshield/pkg/templates"
)

// Notifier sends pipeline notifications to the operator chat
type Notifier struct {
	api      *tgbotapi.BotAPI
	cfg      *config.TelegramConfig
	renderer templates.Renderer
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig, renderer templates.Renderer) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat ID is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api:      bot,
		cfg:      cfg,
		renderer: renderer,
	}, nil
}

// SendProposal notifies the operator about an approved trade proposal
func (n *Notifier) SendProposal(ctx context.Context, p *models.Proposal) error {
	data := map[string]interface{}{
		"Emoji":      actionEmoji(p.Action),
		"Ticker":     p.Ticker,
		"Action":     string(p.Action),
		"Shares":     p.Shares,
		"Price":      p.TargetPrice,
		"OrderValue": p.OrderValue,
		"Confidence": p.Confidence,
		"Regime":     string(p.MarketRegime),
		"VIX":        p.VIX,
		"Rationale":  p.Rationale,
		"ExpiresAt":  p.ExpiresAt.Format("2006-01-02 15:04 MST"),
	}

	msg, err := n.renderer.ExecuteTemplate("proposal.tmpl", data)
	if err != nil {
		return err
	}

	return n.sendMarkdown(msg)
}

// SendRejection notifies the operator that a proposal was vetoed.
// Cited articles ride along so the operator sees which rules fired.
func (n *Notifier) SendRejection(ctx context.Context, p *models.Proposal) error {
	data := map[string]interface{}{
		"Ticker":   p.Ticker,
		"Action":   string(p.Action),
		"Shares":   p.Shares,
		"Price":    p.TargetPrice,
		"Reason":   p.RejectionReason,
		"Articles": strings.Join(p.ViolatedArticles, ", "),
	}

	msg, err := n.renderer.ExecuteTemplate("rejection.tmpl", data)
	if err != nil {
		return err
	}

	return n.sendMarkdown(msg)
}

// SendShieldReport sends the weekly defensive-value report
func (n *Notifier) SendShieldReport(ctx context.Context, report *models.ShieldReport) error {
	saves := make([]map[string]interface{}, 0, len(report.TopSaves))
	for _, s := range report.TopSaves {
		saves = append(saves, map[string]interface{}{
			"Ticker":      s.Ticker,
			"Action":      string(s.Action),
			"AvoidedLoss": s.VirtualPnL.Neg(),
			"Reason":      s.RejectionReason,
		})
	}

	data := map[string]interface{}{
		"GeneratedAt":      report.GeneratedAt.Format("2006-01-02"),
		"PeriodDays":       report.PeriodDays,
		"RejectedCount":    report.RejectedCount,
		"DefensiveWins":    report.DefensiveWins,
		"DefensiveWinRate": report.DefensiveWinRate,
		"TotalAvoidedLoss": report.TotalAvoidedLoss,
		"StillTracking":    report.StillTracking,
		"TopSaves":         saves,
	}

	msg, err := n.renderer.ExecuteTemplate("shield_report.tmpl", data)
	if err != nil {
		return err
	}

	return n.sendMarkdown(msg)
}

// SendKillSwitchAlert notifies the operator that trading is halted
func (n *Notifier) SendKillSwitchAlert(ctx context.Context, reason string) error {
	data := map[string]interface{}{
		"Reason": reason,
		"Time":   time.Now().Format("2006-01-02 15:04:05 MST"),
	}

	msg, err := n.renderer.ExecuteTemplate("kill_switch.tmpl", data)
	if err != nil {
		return err
	}

	return n.sendMarkdown(msg)
}

func (n *Notifier) sendMarkdown(text string) error {
	msg := tgbotapi.NewMessage(n.cfg.ChatID, text)
	msg.ParseMode = "Markdown"

	if _, err := n.api.Send(msg); err != nil {
		logger.Error("failed to send telegram message",
			zap.Int64("chat_id", n.cfg.ChatID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

func actionEmoji(action models.SignalAction) string {
	switch action {
	case models.ActionBuy:
		return "📈"
	case models.ActionSell:
		return "📉"
	default:
		return "⏸️"
	}
}
