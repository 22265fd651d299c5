package cluster

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// elMatchThreshold is the lowest confidence that still counts as an
// event lock; the verdict table requires strictly more than 0.7
const elMatchThreshold = 0.7

// eventFamily groups theme keywords that indicate a scheduled release
type eventFamily struct {
	name       string
	confidence float64
	tokens     []string
}

var eventFamilies = []eventFamily{
	{
		name:       "CENTRAL_BANK_DECISION",
		confidence: 0.95,
		tokens: []string{
			"fomc", "fed", "rate", "rates", "monetary", "central",
			"연준", "금리", "인하", "인상", "ecb", "boj",
		},
	},
	{
		name:       "QUARTERLY_EARNINGS",
		confidence: 0.90,
		tokens: []string{
			"earnings", "quarterly", "revenue", "profit", "eps",
			"guidance", "beat", "beats", "miss", "misses", "실적", "영업이익",
		},
	},
	{
		name:       "ECONOMIC_DATA_RELEASE",
		confidence: 0.85,
		tokens: []string{
			"cpi", "inflation", "payrolls", "unemployment", "employment",
			"jobs", "gdp", "물가", "고용", "소비자물가",
		},
	},
}

// Classifier resolves a source name to its credibility tier
type Classifier interface {
	Classify(name, articleURL string) models.SourceInfo
}

// ComputeScores derives the four propagation signals for a cluster
func ComputeScores(c *models.Cluster, classifier Classifier) models.ClusterScores {
	return models.ClusterScores{
		Diversity: diversityScore(c.Articles, classifier),
		Timing:    timingScore(c.Articles),
		Variety:   varietyScore(c.Articles),
		Event:     eventLock(c.Keywords, c.FirstSeen),
	}
}

// NFPI folds the four signals into a 0-100 fraud-probability index.
// Higher means the burst looks less like organic news flow.
func NFPI(s models.ClusterScores) float64 {
	eventTerm := 1.0
	if s.Event.Matched {
		eventTerm = 0.0
	}
	v := 0.3*(1-s.Diversity) + 0.3*(1-s.Variety) + 0.2*math.Max(0, -s.Timing) + 0.2*eventTerm
	return 100 * v
}

// diversityScore rewards many distinct, credible sources. Repeat
// occurrences of the same source earn half weight, and only credible
// outlets count toward the variety bonus.
func diversityScore(articles []models.Article, classifier Classifier) float64 {
	if len(articles) == 0 {
		return 0
	}

	occurrences := make(map[string]int, len(articles))
	credible := make(map[string]struct{})
	sum := 0.0
	anyMajor := false

	for i := range articles {
		a := &articles[i]
		info := classifier.Classify(a.Source, a.URL)
		name := strings.ToLower(strings.TrimSpace(a.Source))

		w := info.Tier.Weight()
		occurrences[name]++
		if occurrences[name] > 1 {
			w *= 0.5
		}
		sum += w

		switch info.Tier {
		case models.TierMajor:
			anyMajor = true
			credible[name] = struct{}{}
		case models.TierMinor:
			credible[name] = struct{}{}
		}
	}

	score := math.Min(1, sum/float64(len(articles)))
	if anyMajor {
		score += 0.2
	}
	score += math.Min(0.2, float64(len(credible))/10)

	return clamp01(score)
}

// timingScore inspects publication cadence. Negative values mean the
// burst looks scripted, positive values look like natural propagation.
func timingScore(articles []models.Article) float64 {
	if len(articles) < 2 {
		return 0
	}

	times := make([]time.Time, len(articles))
	for i := range articles {
		times[i] = articles[i].PublishedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	delta := times[len(times)-1].Sub(times[0]).Seconds()

	switch {
	case delta < 60:
		// A sub-minute burst is fine only when it starts exactly on a
		// scheduled half-hour boundary, i.e. an embargo lift
		if isCleanTime(times[0]) {
			return 0.8
		}
		return -0.8

	case delta < 600:
		gaps := make([]float64, 0, len(times)-1)
		for i := 1; i < len(times); i++ {
			gaps = append(gaps, times[i].Sub(times[i-1]).Seconds())
		}
		if variance(gaps) < 10 {
			return -0.5
		}
		return 0.3

	default:
		return 0.5
	}
}

// varietyScore measures content independence as one minus the average
// pairwise Jaccard overlap. Near-duplicate clusters take a severe
// copy-paste penalty.
func varietyScore(articles []models.Article) float64 {
	if len(articles) < 2 {
		return 1
	}

	sets := make([]map[string]struct{}, len(articles))
	for i := range articles {
		sets[i] = tokenSet(&articles[i])
	}

	var sum float64
	var pairs int
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	avg := sum / float64(pairs)

	variety := 1 - avg
	if avg > 0.9 {
		variety *= 0.3
	}
	return clamp01(variety)
}

// eventLock checks whether the cluster theme matches a scheduled release
// family and whether the burst started at a release-shaped moment
func eventLock(keywords []string, firstSeen time.Time) models.EventLock {
	family, ok := matchFamily(keywords)
	if !ok {
		return models.EventLock{}
	}

	confidence := 0.0
	switch {
	case isCleanTime(firstSeen):
		confidence = family.confidence
	case family.name == "QUARTERLY_EARNINGS" && isOffHours(firstSeen):
		// Earnings routinely drop pre-market or right after the close
		confidence = 0.75
	}

	if confidence < elMatchThreshold {
		return models.EventLock{}
	}
	return models.EventLock{
		Matched:    true,
		Confidence: confidence,
		EventName:  family.name,
	}
}

func matchFamily(keywords []string) (eventFamily, bool) {
	for _, family := range eventFamilies {
		for _, token := range family.tokens {
			for _, kw := range keywords {
				if matchToken(kw, token) {
					return family, true
				}
			}
		}
	}
	return eventFamily{}, false
}

// matchToken compares exactly for ASCII tokens and by containment for
// CJK tokens, where compounds such as 기준금리 embed the family word
func matchToken(keyword, token string) bool {
	if isASCII(token) {
		return keyword == token
	}
	return strings.Contains(keyword, token)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

// isCleanTime reports whether t sits exactly on a half-hour boundary
func isCleanTime(t time.Time) bool {
	return t.Second() == 0 && t.Minute()%30 == 0
}

// isOffHours reports pre-market (06:00-09:30) or post-market (16:00-20:00)
func isOffHours(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	pre := h >= 6 && (h < 9 || (h == 9 && m < 30))
	post := h >= 16 && h < 20
	return pre || post
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	v := 0.0
	for _, x := range xs {
		d := x - mean
		v += d * d
	}
	return v / float64(len(xs))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
