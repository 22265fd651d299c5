package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/internal/adapters/market"
	"github.com/yhwang-dev/tradeshield/internal/cluster"
	"github.com/yhwang-dev/tradeshield/internal/constitution"
	"github.com/yhwang-dev/tradeshield/internal/risk"
	"github.com/yhwang-dev/tradeshield/internal/shadow"
	"github.com/yhwang-dev/tradeshield/internal/signals"
	"github.com/yhwang-dev/tradeshield/internal/sources"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/metrics"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

const (
	// Per-signal quality floor, independent of the generator thresholds
	qualityMinConfidence = 0.60
	qualityMinPosition   = 0.01

	// Articles older than this are left for the cleanup job
	articleLookback = 24 * time.Hour

	llmTimeout    = 60 * time.Second
	marketTimeout = 10 * time.Second
)

// ArticleStore is the article persistence surface the pipeline consumes
type ArticleStore interface {
	FindUnprocessed(ctx context.Context, limit int, since time.Duration) ([]models.Article, error)
	MarkAnalyzed(ctx context.Context, articleID string, analysis *models.Analysis) error
	MarkFailed(ctx context.Context, articleID string) error
}

// ProposalStore persists proposals and answers trade counters
type ProposalStore interface {
	Save(ctx context.Context, p *models.Proposal) error
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
	CountExecutedSince(ctx context.Context, since time.Time) (int, error)
	CountExecutedTotal(ctx context.Context) (int, error)
}

// Evaluator turns one article into a structured analysis
type Evaluator interface {
	Evaluate(ctx context.Context, article *models.Article) (*models.Analysis, error)
}

// ContextBuilder snapshots the market regime for constitutional review
type ContextBuilder interface {
	Build(ctx context.Context) (*models.MarketContext, error)
}

// NotificationSink receives proposals, vetoes and halt alerts.
// Sends are fire-and-forget: failures are logged, never fatal.
type NotificationSink interface {
	SendProposal(ctx context.Context, p *models.Proposal) error
	SendRejection(ctx context.Context, p *models.Proposal) error
	SendKillSwitchAlert(ctx context.Context, reason string) error
}

// Leader gates the cycle loop in multi-replica deployments
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Held() bool
}

// Deps carries everything the pipeline needs. Notifier, Audit, Leader
// and Metrics are optional.
type Deps struct {
	Config       *config.Config
	Articles     ArticleStore
	Proposals    ProposalStore
	Evaluator    Evaluator
	Clusters     *cluster.Engine
	Generator    *signals.Generator
	Validator    *risk.Validator
	Constitution *constitution.Constitution
	Shadows      *shadow.Tracker
	Market       market.DataClient
	Regime       ContextBuilder
	Classifier   *sources.Classifier
	Notifier     NotificationSink
	Audit        metrics.Buffer
	Leader       Leader
	Metrics      *Metrics
}

// Pipeline is the supervisor that drives one news-to-proposal cycle per
// tick. It implements worker.Worker so the worker group owns scheduling.
type Pipeline struct {
	cfg          *config.Config
	articles     ArticleStore
	proposals    ProposalStore
	evaluator    Evaluator
	clusters     *cluster.Engine
	generator    *signals.Generator
	validator    *risk.Validator
	constitution *constitution.Constitution
	shadows      *shadow.Tracker
	market       market.DataClient
	regime       ContextBuilder
	classifier   *sources.Classifier
	notifier     NotificationSink
	audit        metrics.Buffer
	leader       Leader
	metrics      *Metrics
	loc          *time.Location

	// Cycle-loop private state; the supervisor is the only writer
	dedup        map[string]time.Time
	killNotified bool
}

// New creates the pipeline supervisor
func New(deps Deps) *Pipeline {
	m := deps.Metrics
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = sources.NewClassifier()
	}

	return &Pipeline{
		cfg:          deps.Config,
		articles:     deps.Articles,
		proposals:    deps.Proposals,
		evaluator:    deps.Evaluator,
		clusters:     deps.Clusters,
		generator:    deps.Generator,
		validator:    deps.Validator,
		constitution: deps.Constitution,
		shadows:      deps.Shadows,
		market:       deps.Market,
		regime:       deps.Regime,
		classifier:   classifier,
		notifier:     deps.Notifier,
		audit:        deps.Audit,
		leader:       deps.Leader,
		metrics:      m,
		loc:          deps.Config.Risk.MarketLocation(),
		dedup:        make(map[string]time.Time),
	}
}

// Name implements worker.Worker
func (p *Pipeline) Name() string {
	return "pipeline"
}

// Run executes one leader-gated cycle; the periodic worker schedules it
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.isLeader(ctx) {
		logger.Debug("not the leader, skipping cycle")
		return nil
	}

	_, err := p.RunCycle(ctx)
	return err
}

// isLeader reports whether this replica may drive the cycle. Without a
// configured leader lock the process is assumed to be the only replica.
func (p *Pipeline) isLeader(ctx context.Context) bool {
	if p.leader == nil {
		return true
	}
	if p.leader.Held() {
		return true
	}
	acquired, err := p.leader.TryAcquire(ctx)
	if err != nil {
		logger.Warn("leader election failed", zap.Error(err))
		return false
	}
	return acquired
}

// RunCycle executes one full news-to-proposal cycle and returns its
// statistics. Per-article failures are isolated; a repository failure
// aborts the cycle and the next tick retries.
func (p *Pipeline) RunCycle(ctx context.Context) (*metrics.CycleStats, error) {
	started := time.Now()
	stats := &metrics.CycleStats{
		StartedAt: started.UTC(),
		CycleID:   uuid.New().String()[:8],
	}

	defer func() {
		stats.FinishedAt = time.Now().UTC()
		p.finishCycle(stats, started)
	}()

	if p.killNotified && !p.validator.GetStatus().KillSwitch {
		// Operator reset since the alert went out
		p.killNotified = false
	}

	if n, err := p.proposals.ExpirePending(ctx, started); err != nil {
		logger.Warn("failed to expire stale proposals", zap.Error(err))
		stats.Errors++
	} else if n > 0 {
		logger.Info("expired stale proposals", zap.Int64("count", n))
	}

	articles, err := p.articles.FindUnprocessed(ctx, p.cfg.Pipeline.MaxArticlesPerCycle, articleLookback)
	if err != nil {
		stats.Errors++
		return stats, fmt.Errorf("failed to fetch unprocessed articles: %w", err)
	}
	stats.ArticlesFetched = len(articles)
	p.metrics.ArticlesFetched.Add(float64(len(articles)))

	analyses := make([]*models.Analysis, 0, len(articles))
	for _, out := range p.analyzeBatch(ctx, articles) {
		if out.err != nil {
			stats.Errors++
			continue
		}
		stats.Analyzed++
		stats.TokensUsed += out.analysis.TokensUsed
		stats.CostUSD += out.analysis.CostUSD
		if out.analysis.FallbackUsed {
			stats.FallbackAnalyses++
			p.metrics.FallbackAnalyses.Inc()
		}
		p.metrics.ArticlesAnalyzed.Inc()
		p.recordAnalysisAudit(out.article, out.analysis)
		analyses = append(analyses, out.analysis)
	}

	if len(analyses) > 0 {
		mctx, err := p.buildMarketContext(ctx)
		if err != nil {
			// Without a market snapshot nothing can be validated
			// constitutionally, so signals wait for the next tick
			logger.Warn("market context unavailable, signals deferred", zap.Error(err))
			stats.Errors++
		} else {
			now := time.Now()
			for _, analysis := range analyses {
				p.processAnalysis(ctx, analysis, mctx, now, stats)
			}
		}
	}

	p.clusters.Evict(started)
	p.metrics.ActiveClusters.Set(float64(p.clusters.ActiveCount()))
	if n, err := p.shadows.ActiveCount(ctx); err != nil {
		logger.Warn("failed to count active shadows", zap.Error(err))
	} else {
		p.metrics.ActiveShadows.Set(float64(n))
	}
	p.sweepDedup(started)

	return stats, nil
}

type analyzeOutcome struct {
	article  models.Article
	analysis *models.Analysis
	err      error
}

// analyzeBatch fans the articles out over a bounded worker set. Each
// worker analyzes, clusters and persists one article at a time.
func (p *Pipeline) analyzeBatch(ctx context.Context, articles []models.Article) []analyzeOutcome {
	if len(articles) == 0 {
		return nil
	}

	workers := p.cfg.Pipeline.BatchSize
	if workers < 1 {
		workers = 1
	}
	if workers > len(articles) {
		workers = len(articles)
	}

	jobs := make(chan models.Article)
	results := make(chan analyzeOutcome, len(articles))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for article := range jobs {
				analysis, err := p.analyzeOne(ctx, article)
				results <- analyzeOutcome{article: article, analysis: analysis, err: err}
			}
		}()
	}

feed:
	for _, article := range articles {
		select {
		case jobs <- article:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	outcomes := make([]analyzeOutcome, 0, len(articles))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// analyzeOne evaluates a single article, attaches its cluster verdict
// and persists the analysis atomically with the processed mark
func (p *Pipeline) analyzeOne(ctx context.Context, article models.Article) (*models.Analysis, error) {
	actx, cancel := context.WithTimeout(ctx, llmTimeout)
	analysis, err := p.evaluator.Evaluate(actx, &article)
	cancel()
	if err != nil {
		logger.Warn("article analysis failed",
			zap.String("article_id", article.ID),
			zap.String("source", article.Source),
			zap.Error(err),
		)
		if markErr := p.articles.MarkFailed(ctx, article.ID); markErr != nil {
			logger.Warn("failed to mark article failed", zap.String("article_id", article.ID), zap.Error(markErr))
		}
		return nil, err
	}

	// Cluster verdicts adjust the analysis before it is persisted
	if cl := p.clusters.Add(article); cl != nil {
		analysis.ClusterKey = cl.Key
		analysis.VerdictMultiplier = cl.Multiplier
		analysis.CoolingUntil = cl.CoolingUntil
	}

	if err := p.articles.MarkAnalyzed(ctx, article.ID, analysis); err != nil {
		// Lost the race to another replica; the analysis is not ours
		logger.Warn("failed to mark article analyzed",
			zap.String("article_id", article.ID),
			zap.Error(err),
		)
		return nil, err
	}

	return analysis, nil
}

// processAnalysis walks one analysis through generation, dedup, quality,
// validator and constitution, forking approvals to the notifier and
// vetoes to the shadow tracker
func (p *Pipeline) processAnalysis(ctx context.Context, analysis *models.Analysis, mctx *models.MarketContext, now time.Time, stats *metrics.CycleStats) {
	signal, ok := p.generator.Generate(analysis, now)
	if !ok {
		return
	}
	stats.SignalsGenerated++
	p.metrics.SignalsGenerated.Inc()

	if p.isDuplicate(signal, now) {
		stats.Duplicates++
		p.metrics.DuplicatesDropped.Inc()
		logger.Debug("duplicate signal dropped",
			zap.String("ticker", signal.Ticker),
			zap.String("dedup_key", signal.DedupKey()),
		)
		return
	}

	if signal.Confidence < qualityMinConfidence || signal.PositionSize < qualityMinPosition {
		stats.LowQuality++
		p.metrics.LowQualityDropped.Inc()
		return
	}

	// The proposal is priced before the validator runs so that a veto
	// leaves a concrete rejected order for the shadow tracker
	proposal, err := p.buildProposal(ctx, signal, analysis, mctx, now)
	if err != nil {
		logger.Warn("failed to build proposal",
			zap.String("ticker", signal.Ticker),
			zap.Error(err),
		)
		stats.Errors++
		return
	}
	if proposal == nil {
		// Position budget below one share
		return
	}

	decision := p.validator.ValidateSignal(signal, proposal.OrderValue, mctx.TotalCapital, now)
	if !decision.Approved {
		stats.SignalsRejected++
		p.metrics.SignalsRejected.WithLabelValues("validator", decision.Gate).Inc()
		logger.Info("🛑 signal vetoed by validator",
			zap.String("ticker", signal.Ticker),
			zap.String("gate", decision.Gate),
			zap.String("reason", decision.Reason),
		)
		p.rejectProposal(ctx, proposal, decision.Reason, nil, now, stats)
		if decision.Gate == "kill_switch" {
			p.notifyKillSwitch(ctx, decision.Reason)
		}
		return
	}

	// The operator approves execution later; review assumes that
	// approval so only genuine rule breaches fire here
	review := *proposal
	review.IsApproved = true
	skipAllocation := !p.constitution.BootstrapExitConditions(mctx)
	result := p.constitution.ValidateProposal(&review, mctx, skipAllocation)

	proposal.IsConstitutional = result.IsValid
	if result.IsValid {
		if err := p.proposals.Save(ctx, proposal); err != nil {
			logger.Error("failed to save proposal", zap.String("ticker", proposal.Ticker), zap.Error(err))
			stats.Errors++
			return
		}
		stats.SignalsApproved++
		p.metrics.SignalsApproved.Inc()

		logger.Info("✅ proposal created",
			zap.String("proposal_id", proposal.ID),
			zap.String("ticker", proposal.Ticker),
			zap.String("action", string(proposal.Action)),
			zap.Int64("shares", proposal.Shares),
			zap.String("order_value", proposal.OrderValue.StringFixed(2)),
		)

		if p.notifier != nil {
			if err := p.notifier.SendProposal(ctx, proposal); err != nil {
				logger.Warn("failed to notify proposal", zap.Error(err))
			}
		}
		return
	}

	stats.SignalsRejected++
	p.metrics.SignalsRejected.WithLabelValues("constitution", "rules").Inc()
	logger.Info("🛡️ proposal vetoed by constitution",
		zap.String("ticker", proposal.Ticker),
		zap.String("reason", strings.Join(result.Violations, "; ")),
		zap.Strings("cited_articles", result.CitedArticles),
	)

	p.rejectProposal(ctx, proposal, strings.Join(result.Violations, "; "), result.CitedArticles, now, stats)
}

// rejectProposal stamps the veto onto the proposal, persists it, opens
// a shadow trade to track what the rejection cost or saved, and tells
// the operator
func (p *Pipeline) rejectProposal(ctx context.Context, proposal *models.Proposal, reason string, violatedArticles []string, now time.Time, stats *metrics.CycleStats) {
	decidedAt := now.UTC()
	proposal.Status = models.ProposalRejected
	proposal.DecidedAt = &decidedAt
	proposal.RejectionReason = reason
	proposal.ViolatedArticles = violatedArticles

	if err := p.proposals.Save(ctx, proposal); err != nil {
		logger.Error("failed to save rejected proposal", zap.String("ticker", proposal.Ticker), zap.Error(err))
		stats.Errors++
	}

	if _, err := p.shadows.Create(ctx, proposal, reason, violatedArticles, p.cfg.Shadow.TrackingDays); err != nil {
		logger.Warn("failed to open shadow trade", zap.String("ticker", proposal.Ticker), zap.Error(err))
		stats.Errors++
	}

	if p.notifier != nil {
		if err := p.notifier.SendRejection(ctx, proposal); err != nil {
			logger.Warn("failed to notify rejection", zap.Error(err))
		}
	}
}

// buildProposal prices the signal and turns it into a concrete order.
// A nil proposal means the budget does not buy a single share.
func (p *Pipeline) buildProposal(ctx context.Context, signal *models.TradingSignal, analysis *models.Analysis, mctx *models.MarketContext, now time.Time) (*models.Proposal, error) {
	pctx, cancel := context.WithTimeout(ctx, marketTimeout)
	defer cancel()

	price, err := p.market.GetCurrentPrice(pctx, signal.Ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to price %s: %w", signal.Ticker, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("non-positive price for %s", signal.Ticker)
	}

	budget := mctx.TotalCapital.Mul(decimal.NewFromFloat(signal.PositionSize))
	shares := budget.Div(price).IntPart()
	if shares <= 0 {
		logger.Debug("position budget below one share",
			zap.String("ticker", signal.Ticker),
			zap.String("budget", budget.StringFixed(2)),
			zap.String("price", price.StringFixed(2)),
		)
		return nil, nil
	}
	orderValue := price.Mul(decimal.NewFromInt(shares))

	consensus := ""
	if analysis.ClusterKey != "" {
		if cl, ok := p.clusters.Get(analysis.ClusterKey); ok {
			consensus = string(cl.Verdict)
		}
	}

	return &models.Proposal{
		ID:             uuid.New().String(),
		SignalID:       signal.ID,
		ArticleID:      signal.ArticleID,
		CreatedAt:      now.UTC(),
		ExpiresAt:      now.Add(p.cfg.Pipeline.ProposalTTL).UTC(),
		Ticker:         signal.Ticker,
		Action:         signal.Action,
		Rationale:      strings.Join(signal.Reasons, "; "),
		Status:         models.ProposalPending,
		ConsensusLevel: consensus,
		MarketRegime:   mctx.Regime,
		TargetPrice:    price,
		PositionValue:  orderValue,
		OrderValue:     orderValue,
		Shares:         shares,
		Confidence:     signal.Confidence,
		VIX:            mctx.VIX,
	}, nil
}

// buildMarketContext snapshots the regime and layers the operator-fed
// portfolio plus live trade counters on top
func (p *Pipeline) buildMarketContext(ctx context.Context) (*models.MarketContext, error) {
	mctx, err := p.regime.Build(ctx)
	if err != nil {
		return nil, err
	}

	pf := &p.cfg.Portfolio
	mctx.TotalCapital = decimal.NewFromFloat(pf.TotalCapital)
	mctx.DailyVolumeUSD = decimal.NewFromFloat(pf.DailyVolumeUSD)
	mctx.CurrentAllocation = map[string]float64{
		"stock": pf.StockRatio,
		"cash":  pf.CashRatio,
	}
	mctx.DrawdownPct = pf.DrawdownPct
	mctx.DailyLossPct = p.validator.GetStatus().DailyPnLPct

	if pf.InceptionDate != "" {
		inception, err := time.Parse("2006-01-02", pf.InceptionDate)
		if err != nil {
			logger.Warn("invalid inception date, bootstrap skip disabled",
				zap.String("value", pf.InceptionDate),
				zap.Error(err),
			)
		} else {
			mctx.InceptionDate = inception
		}
	}

	now := time.Now().In(p.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)

	daily, err := p.proposals.CountExecutedSince(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily trades: %w", err)
	}
	mctx.DailyTrades = daily

	weekly, err := p.proposals.CountExecutedSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("failed to count weekly trades: %w", err)
	}
	mctx.WeeklyTrades = weekly

	total, err := p.proposals.CountExecutedTotal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count executed trades: %w", err)
	}
	mctx.TotalTrades = total

	return mctx, nil
}

// isDuplicate records the signal's minute bucket and reports repeats
// inside the dedup window
func (p *Pipeline) isDuplicate(signal *models.TradingSignal, now time.Time) bool {
	key := signal.DedupKey()
	if seen, ok := p.dedup[key]; ok && now.Sub(seen) < p.cfg.Pipeline.DedupWindow {
		return true
	}
	p.dedup[key] = now
	return false
}

// sweepDedup drops dedup entries older than the window
func (p *Pipeline) sweepDedup(now time.Time) {
	cutoff := now.Add(-p.cfg.Pipeline.DedupWindow)
	for key, seen := range p.dedup {
		if seen.Before(cutoff) {
			delete(p.dedup, key)
		}
	}
}

// notifyKillSwitch alerts the operator once per latch
func (p *Pipeline) notifyKillSwitch(ctx context.Context, reason string) {
	if p.killNotified {
		return
	}
	p.killNotified = true
	if p.notifier == nil {
		return
	}
	if err := p.notifier.SendKillSwitchAlert(ctx, reason); err != nil {
		logger.Warn("failed to send kill switch alert", zap.Error(err))
	}
}

// recordAnalysisAudit queues one analysis row for the warehouse
func (p *Pipeline) recordAnalysisAudit(article models.Article, analysis *models.Analysis) {
	if p.audit == nil {
		return
	}

	info := p.classifier.Classify(article.Source, article.URL)

	row := &metrics.AnalysisAudit{
		Timestamp:      analysis.CreatedAt,
		ArticleID:      article.ID,
		Source:         article.Source,
		SourceTier:     string(info.Tier),
		Provider:       analysis.Provider,
		Model:          analysis.Model,
		Sentiment:      string(analysis.Sentiment),
		Urgency:        string(analysis.Urgency),
		ClusterKey:     analysis.ClusterKey,
		SentimentScore: analysis.SentimentScore,
		Confidence:     analysis.Confidence,
		Impact:         analysis.Impact,
		Multiplier:     analysis.VerdictMultiplier,
		CostUSD:        analysis.CostUSD,
		TokensUsed:     analysis.TokensUsed,
		FallbackUsed:   analysis.FallbackUsed,
	}

	if err := p.audit.Record(row); err != nil {
		logger.Warn("failed to record analysis audit row", zap.Error(err))
	}
}

// finishCycle flushes cycle accounting to Prometheus and the warehouse
func (p *Pipeline) finishCycle(stats *metrics.CycleStats, started time.Time) {
	p.metrics.CyclesTotal.Inc()
	p.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	p.metrics.TokensUsed.Add(float64(stats.TokensUsed))
	p.metrics.CostUSD.Add(stats.CostUSD)
	if stats.Errors > 0 {
		p.metrics.CycleErrors.Add(float64(stats.Errors))
	}

	if p.audit != nil {
		if err := p.audit.Record(stats); err != nil {
			logger.Warn("failed to record cycle stats row", zap.Error(err))
		}
	}

	logger.Info("📊 cycle complete",
		zap.String("cycle_id", stats.CycleID),
		zap.Int("fetched", stats.ArticlesFetched),
		zap.Int("analyzed", stats.Analyzed),
		zap.Int("fallbacks", stats.FallbackAnalyses),
		zap.Int("signals", stats.SignalsGenerated),
		zap.Int("approved", stats.SignalsApproved),
		zap.Int("rejected", stats.SignalsRejected),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("low_quality", stats.LowQuality),
		zap.Int("tokens", stats.TokensUsed),
		zap.Float64("cost_usd", stats.CostUSD),
		zap.Int("errors", stats.Errors),
		zap.Duration("took", time.Since(started)),
	)
}
