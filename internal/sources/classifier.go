package sources

import (
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// majorSource is one curated entry of a globally recognized outlet
type majorSource struct {
	name        string
	credibility float64
	country     string
	category    string
}

// Curated table of major outlets. Matching is case-insensitive and
// substring-based in both directions, so "Bloomberg Terminal News"
// still resolves to the bloomberg entry.
var majorSources = []majorSource{
	{"bloomberg", 0.95, "US", "financial"},
	{"reuters", 0.95, "UK", "wire"},
	{"wall street journal", 0.93, "US", "financial"},
	{"wsj", 0.93, "US", "financial"},
	{"financial times", 0.93, "UK", "financial"},
	{"cnbc", 0.88, "US", "financial"},
	{"marketwatch", 0.85, "US", "financial"},
	{"barron's", 0.87, "US", "financial"},
	{"associated press", 0.92, "US", "wire"},
	{"dow jones", 0.92, "US", "wire"},
	{"nikkei", 0.88, "JP", "financial"},
	{"the new york times", 0.90, "US", "general"},
	{"washington post", 0.88, "US", "general"},
	{"yonhap", 0.90, "KR", "wire"},
	{"연합뉴스", 0.90, "KR", "wire"},
	{"한국경제", 0.85, "KR", "financial"},
	{"매일경제", 0.85, "KR", "financial"},
	{"서울경제", 0.82, "KR", "financial"},
}

// socialTokens identify social and forum platforms by name or host
var socialTokens = []string{
	"twitter", "x.com", "reddit", "stocktwits", "youtube", "tiktok",
	"facebook", "instagram", "telegram", "discord", "blind", "dcinside",
}

// officialSuffixes mark government and academic domains as high-credibility
var officialSuffixes = []string{".gov", ".edu", ".mil", ".go.kr", ".ac.kr"}

// minorTokens suggest an established but second-tier outlet
var minorTokens = []string{"times", "post", "daily", "herald", "news", "journal", "일보", "신문"}

// socialNameTokens suggest personal or opinion content
var socialNameTokens = []string{"blog", "opinion", "rumor", "칼럼", "커뮤니티"}

// Classifier assigns a credibility tier to news sources
type Classifier struct {
	mu    sync.RWMutex
	cache map[string]models.SourceInfo
}

// NewClassifier creates a source classifier with an empty cache
func NewClassifier() *Classifier {
	return &Classifier{
		cache: make(map[string]models.SourceInfo),
	}
}

// Classify resolves a source name (and optional article URL) to a tier.
// Results are cached per name+url pair.
func (c *Classifier) Classify(name, articleURL string) models.SourceInfo {
	key := strings.ToLower(strings.TrimSpace(name)) + "|" + articleURL

	c.mu.RLock()
	if info, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return info
	}
	c.mu.RUnlock()

	info := c.classify(name, articleURL)

	c.mu.Lock()
	c.cache[key] = info
	c.mu.Unlock()

	return info
}

// IsMajor reports whether the name resolves to a curated major outlet
func (c *Classifier) IsMajor(name string) bool {
	_, ok := matchMajor(strings.ToLower(strings.TrimSpace(name)))
	return ok
}

// CacheSize returns the number of cached classifications
func (c *Classifier) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Classifier) classify(name, articleURL string) models.SourceInfo {
	norm := strings.ToLower(strings.TrimSpace(name))
	info := models.SourceInfo{Name: name, Tier: models.TierUnknown, Credibility: 0.3}

	if norm == "" {
		return info
	}

	// 1. Curated major outlets, exact or substring in either direction
	if entry, ok := matchMajor(norm); ok {
		info.Tier = models.TierMajor
		info.Credibility = entry.credibility
		info.Country = entry.country
		info.Category = entry.category
		return info
	}

	// 2. Social platforms by name
	for _, token := range socialTokens {
		if strings.Contains(norm, token) {
			info.Tier = models.TierSocial
			info.Credibility = 0.2
			info.Category = "social"
			return info
		}
	}

	// 3. Domain heuristics from the article URL
	if host := hostOf(articleURL); host != "" {
		for _, suffix := range officialSuffixes {
			if strings.HasSuffix(host, suffix) {
				info.Tier = models.TierMajor
				info.Credibility = 0.9
				info.Category = "official"
				return info
			}
		}
		for _, token := range socialTokens {
			if strings.Contains(host, token) {
				info.Tier = models.TierSocial
				info.Credibility = 0.2
				info.Category = "social"
				return info
			}
		}
	}

	// 4. Name patterns
	for _, token := range socialNameTokens {
		if strings.Contains(norm, token) {
			info.Tier = models.TierSocial
			info.Credibility = 0.25
			return info
		}
	}
	for _, token := range minorTokens {
		if strings.Contains(norm, token) {
			info.Tier = models.TierMinor
			info.Credibility = 0.5
			return info
		}
	}
	if containsDigit(norm) || len([]rune(norm)) < 5 {
		return info // UNKNOWN
	}

	return info
}

func matchMajor(norm string) (majorSource, bool) {
	if norm == "" {
		return majorSource{}, false
	}
	for _, entry := range majorSources {
		if norm == entry.name {
			return entry, true
		}
	}
	for _, entry := range majorSources {
		if strings.Contains(norm, entry.name) {
			return entry, true
		}
		// Reverse containment needs a few characters to avoid noise matches
		if len(norm) >= 4 && strings.Contains(entry.name, norm) {
			return entry, true
		}
	}
	return majorSource{}, false
}

func hostOf(articleURL string) string {
	if articleURL == "" {
		return ""
	}
	u, err := url.Parse(articleURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
