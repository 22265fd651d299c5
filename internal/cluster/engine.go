package cluster

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/calendar"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// Config bounds cluster growth and lifetime
type Config struct {
	Window      time.Duration // max distance from last_seen for a new member
	MinSize     int           // below this the cluster stays PENDING
	MaxAge      time.Duration // clusters idle longer than this are evicted
	EventWindow time.Duration // calendar match distance; zero uses the calendar default
}

// DefaultConfig mirrors the production pipeline settings
func DefaultConfig() Config {
	return Config{
		Window:  60 * time.Minute,
		MinSize: 2,
		MaxAge:  48 * time.Hour,
	}
}

// Engine groups incoming articles into fingerprint clusters and keeps
// their propagation verdicts current. All state lives behind one lock;
// callers receive snapshots, never live pointers.
type Engine struct {
	mu         sync.Mutex
	cfg        Config
	classifier Classifier
	calendar   *calendar.Calendar // optional, strengthens event locks
	active     map[string]*models.Cluster
	retired    []*models.Cluster
}

// NewEngine creates a clustering engine. The calendar may be nil.
func NewEngine(cfg Config, classifier Classifier, cal *calendar.Calendar) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Minute
	}
	if cfg.MinSize < 2 {
		cfg.MinSize = 2
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 48 * time.Hour
	}
	return &Engine{
		cfg:        cfg,
		classifier: classifier,
		calendar:   cal,
		active:     make(map[string]*models.Cluster),
	}
}

// Add routes an article into its cluster and returns a snapshot of the
// cluster it joined, or nil while the cluster is below the minimum size.
func (e *Engine) Add(article models.Article) *models.Cluster {
	key, keywords := Fingerprint(&article)

	e.mu.Lock()
	defer e.mu.Unlock()

	cl, ok := e.active[key]
	if ok && !withinWindow(article.PublishedAt, cl.LastSeen, e.cfg.Window) {
		// The burst went quiet; the old cluster is closed to additions
		// and a fresh one takes over the fingerprint
		e.retired = append(e.retired, cl)
		ok = false
	}

	if !ok {
		cl = e.newCluster(key, keywords, article)
		e.active[key] = cl
	} else {
		cl.Articles = append(cl.Articles, article)
		if article.PublishedAt.After(cl.LastSeen) {
			cl.LastSeen = article.PublishedAt
		}
		if article.PublishedAt.Before(cl.FirstSeen) {
			cl.FirstSeen = article.PublishedAt
		}
		cl.Tickers = mergeTickers(cl.Tickers, article.Tickers)
	}

	if cl.Size() < e.cfg.MinSize {
		return nil
	}

	e.rescore(cl)
	return snapshot(cl)
}

// Get returns a snapshot of the active cluster for a fingerprint
func (e *Engine) Get(key string) (*models.Cluster, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cl, ok := e.active[key]
	if !ok {
		return nil, false
	}
	return snapshot(cl), true
}

// Evict drops clusters whose last activity is older than max age and
// returns how many were removed
func (e *Engine) Evict(now time.Time) int {
	cutoff := now.Add(-e.cfg.MaxAge)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for key, cl := range e.active {
		if cl.LastSeen.Before(cutoff) {
			delete(e.active, key)
			removed++
		}
	}

	kept := e.retired[:0]
	for _, cl := range e.retired {
		if cl.LastSeen.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, cl)
	}
	e.retired = kept

	if removed > 0 {
		logger.Debug("evicted stale clusters",
			zap.Int("removed", removed),
			zap.Int("active", len(e.active)),
		)
	}
	return removed
}

// ActiveCount returns the number of open clusters
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Engine) newCluster(key string, keywords []string, article models.Article) *models.Cluster {
	return &models.Cluster{
		Key:        key,
		Theme:      themeOf(keywords),
		Keywords:   keywords,
		Tickers:    mergeTickers(nil, article.Tickers),
		Articles:   []models.Article{article},
		FirstSeen:  article.PublishedAt,
		LastSeen:   article.PublishedAt,
		Verdict:    models.VerdictPending,
		Multiplier: 1.0,
	}
}

// rescore recomputes the four signals and the verdict under the lock
func (e *Engine) rescore(cl *models.Cluster) {
	scores := ComputeScores(cl, e.classifier)

	// A calendar hit on the first-seen moment is stronger evidence than
	// keyword shape alone
	if e.calendar != nil {
		ticker := ""
		if len(cl.Tickers) > 0 {
			ticker = cl.Tickers[0]
		}
		if ev, ok := e.calendar.Match(cl.FirstSeen, ticker, cl.Keywords, e.cfg.EventWindow); ok {
			scores.Event.Matched = true
			scores.Event.EventName = ev.Name
			if scores.Event.Confidence < 0.92 {
				scores.Event.Confidence = 0.92
			}
		}
	}

	decision := ClassifyVerdict(scores)

	cl.Scores = scores
	cl.Verdict = decision.Verdict
	cl.Multiplier = decision.Multiplier
	cl.Intensity = decision.Intensity

	if decision.Cooling > 0 {
		until := cl.FirstSeen.Add(decision.Cooling)
		// Rescoring may only extend suppression, never shorten it
		if cl.CoolingUntil == nil || until.After(*cl.CoolingUntil) {
			cl.CoolingUntil = &until
		}
	}

	if decision.Verdict == models.VerdictManipulation || decision.Verdict == models.VerdictSuspiciousBurst {
		logger.Warn("⚠️ suspicious news burst",
			zap.String("cluster", cl.Key),
			zap.String("theme", cl.Theme),
			zap.String("verdict", string(cl.Verdict)),
			zap.Int("articles", cl.Size()),
			zap.Float64("nfpi", NFPI(scores)),
		)
	}
}

func withinWindow(t, lastSeen time.Time, window time.Duration) bool {
	d := t.Sub(lastSeen)
	if d < 0 {
		d = -d
	}
	return d <= window
}

func themeOf(keywords []string) string {
	n := len(keywords)
	if n > 3 {
		n = 3
	}
	return strings.Join(keywords[:n], " ")
}

func mergeTickers(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range incoming {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// snapshot deep-copies the cluster so callers never share engine state
func snapshot(cl *models.Cluster) *models.Cluster {
	cp := *cl
	cp.Articles = append([]models.Article(nil), cl.Articles...)
	cp.Keywords = append([]string(nil), cl.Keywords...)
	cp.Tickers = append([]string(nil), cl.Tickers...)
	if cl.CoolingUntil != nil {
		t := *cl.CoolingUntil
		cp.CoolingUntil = &t
	}
	return &cp
}
