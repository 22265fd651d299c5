package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/internal/adapters/database"
	"github.com/yhwang-dev/tradeshield/internal/adapters/market"
	"github.com/yhwang-dev/tradeshield/internal/adapters/telegram"
	"github.com/yhwang-dev/tradeshield/internal/proposals"
	"github.com/yhwang-dev/tradeshield/internal/shadow"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
	"github.com/yhwang-dev/tradeshield/pkg/templates"
)

func main() {
	// Parse flags
	var (
		days     = flag.Int("days", 7, "Report window in days")
		approve  = flag.String("approve", "", "Approve the pending proposal with this ID")
		reject   = flag.String("reject", "", "Reject the pending proposal with this ID and shadow-track it")
		reason   = flag.String("reason", "", "Rejection reason recorded with -reject")
		mark     = flag.Bool("mark", false, "Run mark-to-market on active shadow trades first")
		send     = flag.Bool("send", false, "Deliver the report via Telegram")
		asJSON   = flag.Bool("json", false, "Print raw JSON instead of the rendered report")
		tmplDir  = flag.String("templates", "./templates", "Templates directory")
		timeout  = flag.Duration("timeout", 2*time.Minute, "Overall run timeout")
		logLevel = flag.String("log-level", "warn", "Log level")
	)

	flag.Parse()

	// Initialize logger
	if err := logger.Init(*logLevel, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Connect database
	db, err := database.New(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	tracker := shadow.NewTracker(
		shadow.NewRepository(db.DB()),
		market.NewHTTPClient(&cfg.MarketData),
		&cfg.Shadow,
	)

	// Apply operator verdicts before any reporting so a fresh
	// rejection shows up in the same run
	if *approve != "" || *reject != "" {
		decider := proposals.NewDecider(proposals.NewRepository(db.DB()), tracker, cfg.Shadow.TrackingDays)
		if *approve != "" {
			if err := decider.Approve(ctx, *approve); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to approve proposal: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Proposal %s approved\n", *approve)
		}
		if *reject != "" {
			if err := decider.Reject(ctx, *reject, *reason); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to reject proposal: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Proposal %s rejected, shadow tracking opened\n", *reject)
		}
	}

	// Refresh virtual P&L before reporting
	if *mark {
		updated, closed, err := tracker.UpdateAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Mark-to-market failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Marked %d shadow trades, closed %d\n", updated, closed)
	}

	report, err := tracker.ShieldReport(ctx, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build shield report: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	} else {
		rendered, err := renderReport(*tmplDir, report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(rendered)
	}

	if *send {
		if !cfg.Telegram.Enabled {
			fmt.Fprintln(os.Stderr, "Telegram is not enabled in config, skipping send")
			return
		}

		renderer, err := templates.NewManagerWithValidation(*tmplDir, []string{"shield_report.tmpl"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load templates: %v\n", err)
			os.Exit(1)
		}

		notifier, err := telegram.NewNotifier(&cfg.Telegram, renderer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create notifier: %v\n", err)
			os.Exit(1)
		}

		if err := notifier.SendShieldReport(ctx, report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to send report: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Report sent")
	}
}

// renderReport formats the report with the same template Telegram uses
func renderReport(tmplDir string, report *models.ShieldReport) (string, error) {
	renderer, err := templates.NewManagerWithValidation(tmplDir, []string{"shield_report.tmpl"})
	if err != nil {
		return "", err
	}

	saves := make([]map[string]interface{}, 0, len(report.TopSaves))
	for _, s := range report.TopSaves {
		saves = append(saves, map[string]interface{}{
			"Ticker":      s.Ticker,
			"Action":      string(s.Action),
			"AvoidedLoss": s.VirtualPnL.Neg(),
			"Reason":      s.RejectionReason,
		})
	}

	return renderer.ExecuteTemplate("shield_report.tmpl", map[string]interface{}{
		"GeneratedAt":      report.GeneratedAt.Format("2006-01-02"),
		"PeriodDays":       report.PeriodDays,
		"RejectedCount":    report.RejectedCount,
		"DefensiveWins":    report.DefensiveWins,
		"DefensiveWinRate": report.DefensiveWinRate,
		"TotalAvoidedLoss": report.TotalAvoidedLoss,
		"StillTracking":    report.StillTracking,
		"TopSaves":         saves,
	})
}
